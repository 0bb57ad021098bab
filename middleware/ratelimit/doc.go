// Package ratelimit fornece adapters HTTP (net/http) para controle de admissão
// por janela fixa e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: policies, identidade, decisão e contratos (sem net/http)
//   - application: resolução de identidade e decisão allow/deny, acquire/timeout
//   - infra: Counter Store com janitor, stores de estatística, semáforo
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução
//     para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a identidade do cliente (header de chave, X-Forwarded-For ou "unknown")
//  2. Chama a camada application com a policy da rota
//  3. Publica X-RateLimit-Limit / X-RateLimit-Remaining / X-RateLimit-Reset
//  4. Se negado, responde 429 com Retry-After; se permitido, chama o próximo handler
//
// X-Forwarded-For é controlado pelo cliente. Sem um proxy confiável que o
// sobrescreva, um cliente pode escolher a própria identidade. Requisições sem o
// header dividem um único contador.
package ratelimit
