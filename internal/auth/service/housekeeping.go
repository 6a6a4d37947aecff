package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/budgetbuddy/authd/internal/auth/store"
)

// HousekeepingService prunes rows the session core no longer needs: refresh
// tokens past their absolute expiry and audit events past retention. Revoked
// but unexpired tokens are kept so reuse detection can still classify them.
type HousekeepingService struct {
	store          store.Store
	logger         *slog.Logger
	interval       time.Duration
	auditRetention time.Duration
}

func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, auditRetention time.Duration) *HousekeepingService {
	return &HousekeepingService{
		store:          st,
		logger:         logger,
		interval:       interval,
		auditRetention: auditRetention,
	}
}

// Run sweeps once immediately, then on every tick until ctx is cancelled.
func (h *HousekeepingService) Run(ctx context.Context) {
	h.sweep(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("housekeeping stopped")
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *HousekeepingService) sweep(ctx context.Context) {
	now := time.Now().UTC()

	if err := h.store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now); err != nil {
		h.logger.Error("prune expired refresh tokens", "error", err)
	}
	if err := h.store.AuditEvents().DeleteAuditEventsBefore(ctx, now.Add(-h.auditRetention)); err != nil {
		h.logger.Error("prune audit events", "error", err)
	}

	h.logger.Debug("housekeeping sweep complete")
}
