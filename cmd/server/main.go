package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eudi-storefront/internal/platform/config"
	"eudi-storefront/internal/platform/health"
	"eudi-storefront/internal/platform/httpserver"
	"eudi-storefront/internal/platform/logger"
	"eudi-storefront/internal/platform/tracer"
	"eudi-storefront/internal/verification/authorizer"
	"eudi-storefront/internal/verification/events"
	"eudi-storefront/internal/verification/handler"
	"eudi-storefront/internal/verification/lifecycle"
	"eudi-storefront/internal/verification/metrics"
	"eudi-storefront/internal/verification/presentation"
	"eudi-storefront/internal/verification/request"
	"eudi-storefront/internal/verification/service"
	"eudi-storefront/pkg/platform/circuit"
	requestmw "eudi-storefront/pkg/platform/middleware/request"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	level := logger.ParseLevel(cfg.LogLevel)
	base := logger.NewHandler(os.Stdout, level)
	baseLog := slog.New(base)

	m := metrics.New()
	hub := events.NewHub(
		events.WithHubLogger(baseLog),
		events.WithSubscriberGauge(m.AddStreamSubscribers),
		events.WithHistoryTTL(cfg.StreamHistoryTTL),
	)
	// Records carrying a subject_id are mirrored onto that subject's debug channel.
	log := slog.New(events.NewDebugHandler(base, hub, slog.LevelDebug))
	slog.SetDefault(log)

	log.Info("initializing storefront",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"state_backend", cfg.State.Backend,
		"authorizer", cfg.Authorizer.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthHandler := health.New(cfg.Environment)
	infra, err := openBackends(ctx, cfg, m, healthHandler, log)
	if err != nil {
		log.Error("failed to open backends", "error", err)
		os.Exit(1)
	}
	defer infra.Close()

	machine := lifecycle.NewMachine(infra.store,
		lifecycle.WithLogger(log),
		lifecycle.WithListener(service.NewEventListener(hub, m, log)),
		lifecycle.WithListener(infra.audit.Listener()),
	)

	trc := tracer.NewOTel()
	authz := authorizer.New(authorizer.Config{
		BaseURL:      cfg.Authorizer.BaseURL,
		APIKey:       cfg.Authorizer.APIKey,
		Timeout:      cfg.Authorizer.Timeout,
		BypassHeader: cfg.Authorizer.BypassHeader,
		Tracer:       trc,
		Observer:     m,
		Breaker:      circuit.New("authorizer"),
		Logger:       log,
	})
	healthHandler.RegisterCheck("authorizer", authz.Health)

	poller := presentation.NewPoller(presentation.Schedule{
		Initial:    cfg.Polling.Initial,
		Multiplier: cfg.Polling.Multiplier,
		Max:        cfg.Polling.Max,
		Ceiling:    cfg.Polling.Ceiling,
	}, presentation.WithPollerLogger(log))

	svc := service.New(machine, request.NewBuilder(), authz,
		service.WithPoller(poller),
		service.WithEvents(hub),
		service.WithTracer(trc),
		service.WithMetrics(m),
		service.WithLogger(log),
		service.WithOrigin(cfg.PublicOrigin),
	)

	stream := events.NewStreamHandler(hub, machine, cfg.StreamKeepalive, log)
	verificationHandler := handler.New(svc, stream, log, cfg.RequestTimeout)

	r := chi.NewRouter()
	r.Use(requestmw.RequestID)
	r.Use(requestmw.Recovery(log))
	r.Use(requestmw.Logger(log))
	r.Use(requestmw.Latency(requestmw.NewMetrics()))
	r.Use(requestmw.BodyLimit(cfg.MaxBodyBytes))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())
	verificationHandler.Register(r)

	srv := httpserver.New(cfg.Addr, r)

	log.Info("starting http server", "addr", cfg.Addr)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error("server error", "error", err)
		}
	}

	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// Closing the hub ends open event streams so Shutdown does not wait on them.
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	svc.Close()

	log.Info("server stopped")
}

// shutdownGrace bounds flushing the audit producer on exit.
const shutdownGrace = 5 * time.Second
