// Package requestid propaga um identificador por requisição entre gateway,
// upstream e logs.
package requestid

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const Header = "X-Request-Id"

// tamanho máximo aceito para um ID vindo do cliente
const maxInboundLen = 128

type ctxKey struct{}

// Middleware reaproveita o X-Request-Id recebido ou gera um UUIDv4, grava o
// valor na request (para o upstream), na response e no contexto.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(Header))
		if id == "" || len(id) > maxInboundLen {
			id = uuid.NewString()
		}

		r.Header.Set(Header, id)
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext retorna o ID da requisição, ou "" quando não houver.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
