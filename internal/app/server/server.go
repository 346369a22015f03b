package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"hrportal/internal/domain/session"
	"hrportal/internal/platform/config"
	"hrportal/internal/platform/jobs"
	"hrportal/internal/platform/metrics"
	"hrportal/internal/transport/http/api"
	portalhandler "hrportal/internal/transport/http/handlers/portal"
	sessionhandler "hrportal/internal/transport/http/handlers/session"
	"hrportal/internal/transport/http/middleware"
)

type App struct {
	Config   config.Config
	Router   http.Handler
	Registry *session.Registry
	Jobs     *jobs.Service
	Metrics  *metrics.Collector
	Logger   zerolog.Logger

	backends *backends
}

// New wires the portal from cfg: snapshot store, credential exchange,
// provider registry, background jobs and the HTTP router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	collector := metrics.New()
	opts := []session.Option{
		session.WithExchangeTimeout(cfg.Auth.ExchangeTimeout),
		session.WithLogger(logger.With().Str("component", "session").Logger()),
		session.WithObserver(collector),
	}
	if b.sealer != nil {
		opts = append(opts, session.WithSealer(b.sealer))
	}
	registry := session.NewRegistry(func(slot string) *session.Provider {
		return session.NewProvider(slot, b.store, b.exchange, opts...)
	}).WithLogger(logger.With().Str("component", "registry").Logger())

	var purger session.Purger
	if p, ok := b.store.(session.Purger); ok {
		purger = p
	}
	jobService := jobs.New(registry, purger, cfg.Jobs, cfg.Snapshot.TTL, collector, logger)

	app := &App{
		Config:   cfg,
		Registry: registry,
		Jobs:     jobService,
		Metrics:  collector,
		Logger:   logger,
		backends: b,
	}
	router, err := app.routes()
	if err != nil {
		b.close(context.Background())
		return nil, err
	}
	app.Router = router
	return app, nil
}

func (a *App) routes() (http.Handler, error) {
	cfg := a.Config
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.ClientHandle(middleware.ClientCookieOptions{
		Secret: cfg.ClientSecret,
		TTL:    cfg.ClientTokenTTL,
		Secure: cfg.CookieSecure || cfg.IsProduction(),
	}))
	router.Use(middleware.Logger(a.Logger))
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if cfg.MetricsEnabled {
		router.Use(middleware.Metrics(a.Metrics))
	}

	portal, err := portalhandler.NewHandler(a.Registry, a.Metrics, cfg.Auth.AllowSelfSignup)
	if err != nil {
		return nil, err
	}
	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return nil, err
	}
	limiter := middleware.NewRateLimiter(cfg.AuthRateLimitPerMinute,
		middleware.WithTrustedProxies(proxies),
		middleware.WithRejectHandler(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/api/") {
				api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", middleware.GetRequestID(r.Context()))
				return
			}
			portal.RejectForm(w, r)
		}),
	)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Get("/readyz", a.handleReady)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", a.Metrics.Handler())
	}

	assets := assetsHandler{dir: cfg.AssetsDir}
	router.Get("/assets/*", http.StripPrefix("/assets", assets).ServeHTTP)
	router.Get("/placeholder.svg", assets.ServeHTTP)

	router.Route("/api/v1", func(r chi.Router) {
		sessionhandler.NewHandler(a.Registry, a.Metrics, cfg.Auth.AllowSelfSignup).RegisterRoutes(r, limiter.Middleware)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			api.Fail(w, http.StatusNotFound, "not_found", "endpoint not found", middleware.GetRequestID(r.Context()))
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.NoStore)
		portal.RegisterRoutes(r, limiter.Middleware)
	})

	return router, nil
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.backends.ping(ctx); err != nil {
		middleware.GetLogger(r.Context()).Warn().Err(err).Msg("readiness check failed")
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Run serves HTTP and the background jobs until ctx is cancelled, then shuts
// the server down gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	a.Jobs.Start(gctx)

	g.Go(func() error {
		a.Logger.Info().
			Str("addr", a.Config.Addr).
			Str("authMode", a.Config.Auth.Mode).
			Str("snapshotBackend", a.Config.Snapshot.Backend).
			Msg("hr portal listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
		defer cancel()
		a.Logger.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Close() {
	a.backends.close(context.Background())
}
