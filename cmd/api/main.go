package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/clinical-access-backend/internal/infrastructure/cache"
	"github.com/davidleathers/clinical-access-backend/internal/infrastructure/config"
	"github.com/davidleathers/clinical-access-backend/internal/infrastructure/telemetry"
	accesssvc "github.com/davidleathers/clinical-access-backend/internal/service/access"
	"github.com/davidleathers/clinical-access-backend/internal/service/audit"
	compliancesvc "github.com/davidleathers/clinical-access-backend/internal/service/compliance"
	"github.com/davidleathers/clinical-access-backend/internal/service/masking"
	sessionsvc "github.com/davidleathers/clinical-access-backend/internal/service/session"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		provider, err := telemetry.InitTracing(ctx, telemetry.TracerConfig{
			ServiceName:    "clinical-access-backend",
			ServiceVersion: cfg.Version,
			Environment:    cfg.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
			SamplingRate:   cfg.Telemetry.SamplingRate,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	masker := masking.NewMasker(cfg.Masking, logger)
	engine := compliancesvc.NewEngine(logger, compliancesvc.WithPHIFieldLookup(masker.IsPHIField))
	accessService := accesssvc.NewService(logger)
	recorder := audit.NewRecorder(cfg.Audit, logger, audit.WithRedactor(masker))

	var sessionOpts []sessionsvc.ManagerOption
	if cfg.Redis.Enabled {
		client, err := cache.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		sessionOpts = append(sessionOpts, sessionsvc.WithStore(cache.NewSessionStore(client, logger)))
	}
	sessions := sessionsvc.NewManager(cfg.Session, logger, sessionOpts...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			logger.Warn("session manager shutdown failed", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := newMetrics(registry)
	go trackActiveSessions(ctx, sessions, m, logger)

	srv := &server{
		access:   accessService,
		engine:   engine,
		sessions: sessions,
		masker:   masker,
		recorder: recorder,
		metrics:  m,
		logger:   logger.Named("http"),
	}

	mux := http.NewServeMux()
	srv.routes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Environment),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// trackActiveSessions keeps the active session gauge current.
func trackActiveSessions(ctx context.Context, sessions *sessionsvc.Manager, m *metrics, logger *zap.Logger) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := sessions.Stats(ctx)
			if err != nil {
				logger.Warn("session stats failed", zap.Error(err))
				continue
			}
			m.activeSessions.Set(float64(stats.ActiveSessions))
		}
	}
}
