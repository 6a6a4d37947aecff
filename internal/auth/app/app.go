// Package app wires configuration, storage, services and transport into a
// runnable process.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	authhttp "github.com/budgetbuddy/authd/internal/auth/http"
	"github.com/budgetbuddy/authd/internal/auth/metrics"
	"github.com/budgetbuddy/authd/internal/auth/rate"
	"github.com/budgetbuddy/authd/internal/auth/service"
	"github.com/budgetbuddy/authd/internal/auth/store/drivers/sqlite"
	"github.com/budgetbuddy/authd/pkg/httpx"
	"github.com/budgetbuddy/authd/pkg/jwtx"
	"github.com/budgetbuddy/authd/pkg/slogx"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Application owns the process lifecycle.
type Application struct {
	cfg          Config
	logger       *slog.Logger
	store        *sqlite.Store
	housekeeping *service.HousekeepingService
	server       *http.Server
}

// New builds a fully wired Application, applying migrations on the way.
func New(cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "authd",
		Version: Version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	st, err := sqlite.NewStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	codec, err := jwtx.NewCodec(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build token codec: %w", err)
	}

	m := metrics.New()

	svc, err := service.NewSessionService(st, codec, m, cfg.RefreshTTL)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build session service: %w", err)
	}

	handler := authhttp.NewHandler(svc, st, rate.New(), m, authhttp.LimitConfig{
		LoginLimit:    cfg.LoginRateLimit,
		LoginWindow:   cfg.LoginRateWindow,
		LoginLockout:  cfg.LoginLockout,
		RefreshLimit:  cfg.RefreshRateLimit,
		RefreshWindow: cfg.RefreshRateWindow,
	})

	throttle := httpx.NewThrottle(cfg.ThrottleRPS, cfg.ThrottleBurst)

	return &Application{
		cfg:          cfg,
		logger:       logger,
		store:        st,
		housekeeping: service.NewHousekeepingService(st, logger, cfg.HousekeepingInterval, cfg.AuditRetention),
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler.Routes(logger, throttle),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Run serves until SIGINT/SIGTERM, then drains within the shutdown grace.
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.housekeeping.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening", "addr", a.cfg.ListenAddr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		_ = a.store.Close()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down", "grace", a.cfg.ShutdownGrace)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	if cerr := a.store.Close(); err == nil {
		err = cerr
	}
	return err
}
