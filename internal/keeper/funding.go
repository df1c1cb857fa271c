package keeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/pkg/metrics"
)

// FundingKeeper accrues funding for every market whose interval has elapsed.
// UpdateFundingPayments is permissionless, so the keeper needs no identity.
type FundingKeeper struct {
	svc      Applier
	engine   *engine.Engine
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	stats    stats
}

func NewFundingKeeper(svc Applier, eng *engine.Engine, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *FundingKeeper {
	return &FundingKeeper{
		svc:      svc,
		engine:   eng,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

func (k *FundingKeeper) Name() string { return "funding" }

func (k *FundingKeeper) Start(ctx context.Context) {
	k.logger.Info("Funding keeper started", zap.Duration("interval", k.interval))
	loop(ctx, k.interval, k.settle)
	k.logger.Info("Funding keeper stopped",
		zap.Uint64("totalSettlements", k.stats.executed),
		zap.Uint64("failedSettlements", k.stats.failed))
}

func (k *FundingKeeper) settle(ctx context.Context) {
	k.stats.checked(time.Now())

	for _, symbol := range k.engine.Symbols() {
		due, err := k.engine.FundingDue(symbol)
		if err != nil || !due {
			continue
		}
		err = submit(ctx, k.svc, k.metrics, k.Name(), &k.stats,
			engine.UpdateFundingPayments{Market: symbol},
			errors.ErrFundingNotDue)
		if err != nil {
			if !errors.Is(err, errors.ErrFundingNotDue) {
				k.logger.Error("Funding settlement failed", zap.String("market", symbol), zap.Error(err))
			}
			continue
		}
		k.logger.Info("Funding settled", zap.String("market", symbol))
	}
}

// GetMetrics returns keeper metrics
func (k *FundingKeeper) GetMetrics() map[string]interface{} {
	return k.stats.snapshot("settlements_executed", "settlements_failed")
}
