package keeper

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/pkg/metrics"
)

// LiquidationKeeper scans every market for positions below maintenance and
// liquidates them as the keeper address. Eligibility is checked again inside
// the engine, so a position that recovered in between is simply skipped.
type LiquidationKeeper struct {
	svc      Applier
	engine   *engine.Engine
	address  common.Address
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	stats    stats
}

func NewLiquidationKeeper(svc Applier, eng *engine.Engine, address common.Address, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *LiquidationKeeper {
	return &LiquidationKeeper{
		svc:      svc,
		engine:   eng,
		address:  address,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

func (k *LiquidationKeeper) Name() string { return "liquidation" }

func (k *LiquidationKeeper) Start(ctx context.Context) {
	k.logger.Info("Liquidation keeper started",
		zap.String("address", k.address.Hex()),
		zap.Duration("checkInterval", k.interval))
	loop(ctx, k.interval, k.checkPositions)
	k.logger.Info("Liquidation keeper stopped",
		zap.Uint64("totalLiquidations", k.stats.executed),
		zap.Uint64("failedLiquidations", k.stats.failed))
}

func (k *LiquidationKeeper) checkPositions(ctx context.Context) {
	k.stats.checked(time.Now())

	for _, symbol := range k.engine.Symbols() {
		candidates, err := k.engine.LiquidationCandidates(symbol)
		if err != nil {
			// No usable oracle price means nothing can be liquidated.
			k.logger.Debug("Skipping market", zap.String("market", symbol), zap.Error(err))
			continue
		}
		for _, h := range candidates {
			if h.Position.Trader == k.address {
				continue
			}
			k.liquidate(ctx, symbol, h)
		}
	}
}

func (k *LiquidationKeeper) liquidate(ctx context.Context, symbol string, h engine.PositionHealth) {
	err := submit(ctx, k.svc, k.metrics, k.Name(), &k.stats,
		engine.LiquidatePosition{Market: symbol, Liquidator: k.address, PositionID: h.Position.ID},
		errors.ErrPositionNotLiquidatable, errors.ErrPositionClosed)
	if err != nil {
		if errors.Is(err, errors.ErrPositionNotLiquidatable) || errors.Is(err, errors.ErrPositionClosed) {
			return
		}
		k.logger.Error("Liquidation failed",
			zap.String("market", symbol),
			zap.String("posId", h.Position.ID),
			zap.Error(err))
		return
	}
	k.logger.Warn("Position liquidated",
		zap.String("market", symbol),
		zap.String("posId", h.Position.ID),
		zap.String("trader", h.Position.Trader.Hex()),
		zap.Int64("marginRatioBps", h.MarginRatioBps),
		zap.Uint64("markPrice", h.MarkPrice))
}

// GetMetrics returns keeper metrics
func (k *LiquidationKeeper) GetMetrics() map[string]interface{} {
	m := k.stats.snapshot("liquidations_executed", "liquidations_failed")
	m["address"] = k.address.Hex()
	return m
}
