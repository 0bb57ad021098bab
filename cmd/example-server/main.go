package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
	"admission-gateway/middleware/requestid"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Exemplo: controle de admissão direto no seu webserver (sem proxy)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	log.Logger = logger

	policies, err := domain.NewPolicyTable(
		domain.Policy{Name: "strict", Window: time.Minute, Quota: 5},
		domain.Policy{Name: "relaxed", Window: time.Minute, Quota: 100},
	)
	if err != nil {
		logger.Error().Err(err).Msg("invalid policy table")
		return 1
	}

	store := infra.NewStore(infra.WithLogger(logger))
	defer store.Close()
	stats := infra.NewMemoryStatsStore()

	handler, err := newRouter(store, policies, stats, logger)
	if err != nil {
		logger.Error().Err(err).Msg("router setup failed")
		return 1
	}

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("listen failed")
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	logger.Info().Str("addr", ln.Addr().String()).Msg("example server listening")
	if err := serve(ctx, srv, ln, 5*time.Second); err != nil {
		logger.Error().Err(err).Msg("server error")
		return 1
	}
	return 0
}

// serve atende em ln até ctx ser cancelado e só retorna depois que o
// Shutdown terminou de drenar as requests em andamento (ou estourou o prazo).
func serve(ctx context.Context, srv *http.Server, ln net.Listener, drain time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type statsResponse struct {
	Total    domain.Counters            `json:"total"`
	ByPolicy map[string]domain.Counters `json:"by_policy"`
	ByRoute  map[string]domain.Counters `json:"by_route"`
	Tracked  int                       `json:"tracked_entries"`
}

func newRouter(store *infra.Store, policies domain.PolicyTable, stats *infra.MemoryStatsStore, logger zerolog.Logger) (http.Handler, error) {
	relaxed, err := policies.Lookup("relaxed")
	if err != nil {
		return nil, err
	}
	if _, err := policies.Lookup("strict"); err != nil {
		return nil, err
	}
	svc := application.Service{Store: store, Policies: policies}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)

	// /login decide no próprio handler, escolhendo a policy pelo nome.
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		key := application.ResolveIdentity(r.Header.Get(application.ForwardedForHeader))
		dec, err := svc.DecideByName(key, "strict")
		if err != nil {
			logger.Error().Err(err).Msg("admission check failed")
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		_ = stats.Record(r.Context(), domain.StatsEvent{
			Key: key, Policy: "strict", Allowed: dec.Allowed, Method: r.Method, Route: ratelimit.DefaultRouteFunc(r), At: time.Now(),
		})
		ratelimit.SetHeaders(w.Header(), dec)
		if !dec.Allowed {
			ratelimit.SetRetryAfter(w.Header(), dec)
			http.Error(w, "too many login attempts", http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statsResponse{
			Total:    stats.Total(),
			ByPolicy: stats.ByPolicy(),
			ByRoute:  stats.ByRoute(),
			Tracked:  store.Len(),
		})
	})

	r.With(ratelimit.Middleware(ratelimit.Options{
		Store:               store,
		Policy:              relaxed,
		Stats:               stats,
		KeyHeader:           "X-Api-Key", // ou vazio para usar X-Forwarded-For
		AddRateLimitHeaders: true,
		Logger:              &logger,
	})).Get("/*", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return r, nil
}
