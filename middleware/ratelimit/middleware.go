package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

type KeyFunc func(r *http.Request) domain.Key

// RouteFunc devolve o rótulo de rota gravado nas estatísticas.
type RouteFunc func(r *http.Request) string

type Options struct {
	Store  domain.CounterStore
	Policy domain.Policy
	Stats  domain.StatsStore
	KeyFn  KeyFunc
	// RouteFn rotula a request nas estatísticas. Padrão: DefaultRouteFunc.
	RouteFn RouteFunc
	// KeyHeader, quando preenchido e presente na request, vira a identidade
	// (ex: X-Api-Key). Caso contrário vale X-Forwarded-For / sentinela.
	KeyHeader           string
	RejectStatus        int
	AddRateLimitHeaders bool
	Logger              *zerolog.Logger
	// LogEvery limita a frequência dos logs de negação e falha de stats.
	LogEvery time.Duration
}

func DefaultKeyFunc(keyHeader string) KeyFunc {
	return func(r *http.Request) domain.Key {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return domain.Key(v)
			}
		}
		return application.ResolveIdentity(r.Header.Get(application.ForwardedForHeader))
	}
}

// DefaultRouteFunc usa o padrão de rota do chi (ex: "/api/*"). Fora de um
// router chi devolve "*": o path cru vem do cliente e não pode virar chave.
func DefaultRouteFunc(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "*"
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = DefaultRouteFunc
	}
	if opts.LogEvery <= 0 {
		opts.LogEvery = 5 * time.Second
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("policy", opts.Policy.Name).Logger()

	svc := application.Service{Store: opts.Store}
	deniedLog := &rate.Sometimes{First: 1, Interval: opts.LogEvery}
	statsLog := &rate.Sometimes{First: 1, Interval: opts.LogEvery}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			dec := svc.Decide(key, opts.Policy)

			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Policy:  opts.Policy.Name,
					Allowed: dec.Allowed,
					Method:  r.Method,
					Route:   opts.RouteFn(r),
					At:      time.Now(),
				})
				if err != nil {
					statsLog.Do(func() {
						logger.Warn().Err(err).Msg("failed to record admission stats")
					})
				}
			}

			if opts.AddRateLimitHeaders {
				SetHeaders(w.Header(), dec)
			}

			if !dec.Allowed {
				retryAfter := SetRetryAfter(w.Header(), dec)
				deniedLog.Do(func() {
					logger.Warn().
						Str("key", string(key)).
						Str("path", r.URL.Path).
						Int("limit", dec.Limit).
						Int("reset_seconds", retryAfter).
						Msg("request over quota")
				})
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders expõe a decisão como está: limite, restante e segundos
// até o reset (arredondado para cima).
func SetHeaders(h http.Header, dec domain.Decision) {
	h.Set(HeaderLimit, formatInt(dec.Limit))
	h.Set(HeaderRemaining, formatInt(dec.Remaining))
	h.Set(HeaderReset, formatInt(dec.ResetSeconds()))
}

// SetRetryAfter grava Retry-After (mínimo 1s) e devolve o valor usado.
func SetRetryAfter(h http.Header, dec domain.Decision) int {
	secs := dec.ResetSeconds()
	if secs < 1 {
		secs = 1
	}
	h.Set(HeaderRetryAfter, formatInt(secs))
	return secs
}
