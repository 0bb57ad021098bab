// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - Store: contador de janela fixa por (identidade, policy) com janitor próprio
//   - MemoryStatsStore, RedisStatsStore, SQLiteStatsStore: estatísticas de decisão
//   - ChanPool: semáforo simples para limite de concorrência
package infra
