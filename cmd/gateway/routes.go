package main

import (
	"encoding/json"
	"net/http"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/requestid"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// newRouter encaixa o proxy atrás das policies: prefixos estritos usam
// cfg.strictPolicy, todo o resto cfg.defaultPolicy. /healthz e o endpoint de
// stats não são limitados.
func newRouter(cfg config, store domain.CounterStore, stats domain.StatsStore, upstream http.Handler, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(accessLog(logger))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if reader, ok := stats.(domain.StatsReader); ok && cfg.statsPath != "" {
		r.Get(cfg.statsPath, statsHandler(cfg.policies, reader, logger))
	}

	limited := r.With(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		Logger:         &logger,
	}))

	if !cfg.rateEnabled {
		limited.Handle("/*", upstream)
		return r
	}

	admission := func(p domain.Policy) func(http.Handler) http.Handler {
		return ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Policy:              p,
			Stats:               stats,
			KeyHeader:           cfg.rateKeyHeader,
			AddRateLimitHeaders: cfg.addHeaders,
			Logger:              &logger,
		})
	}

	strict := limited.With(admission(cfg.strictPolicy))
	for _, prefix := range cfg.strictPrefixes {
		strict.Handle(prefix, upstream)
		strict.Handle(prefix+"/*", upstream)
	}
	limited.With(admission(cfg.defaultPolicy)).Handle("/*", upstream)

	return r
}

type statsResponse struct {
	Policies map[string]domain.Counters `json:"policies"`
}

// statsHandler devolve os contadores acumulados de cada policy da tabela.
func statsHandler(policies domain.PolicyTable, reader domain.StatsReader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := statsResponse{Policies: make(map[string]domain.Counters, policies.Len())}
		for _, name := range policies.Names() {
			c, err := reader.Totals(r.Context(), name)
			if err != nil {
				logger.Error().Err(err).Str("policy", name).Msg("failed to read admission stats")
				http.Error(w, "stats unavailable", http.StatusServiceUnavailable)
				return
			}
			out.Policies[name] = c
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}
