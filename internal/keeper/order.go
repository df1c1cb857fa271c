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

// OrderKeeper fills resting limit, stop-loss and take-profit orders once the
// oracle price crosses their trigger.
type OrderKeeper struct {
	svc      Applier
	engine   *engine.Engine
	address  common.Address
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger
	stats    stats
}

func NewOrderKeeper(svc Applier, eng *engine.Engine, address common.Address, interval time.Duration, m *metrics.Metrics, logger *zap.Logger) *OrderKeeper {
	return &OrderKeeper{
		svc:      svc,
		engine:   eng,
		address:  address,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

func (k *OrderKeeper) Name() string { return "order" }

func (k *OrderKeeper) Start(ctx context.Context) {
	k.logger.Info("Order keeper started", zap.Duration("interval", k.interval))
	loop(ctx, k.interval, k.checkOrders)
	k.logger.Info("Order keeper stopped")
}

func (k *OrderKeeper) checkOrders(ctx context.Context) {
	k.stats.checked(time.Now())

	for _, symbol := range k.engine.Symbols() {
		orders, err := k.engine.TriggerableOrders(symbol)
		if err != nil {
			continue
		}
		for _, o := range orders {
			err := submit(ctx, k.svc, k.metrics, k.Name(), &k.stats,
				engine.FillOrder{Market: symbol, Keeper: k.address, OrderID: o.ID},
				errors.ErrOrderNotTriggered, errors.ErrOrderNotActive)
			switch {
			case err == nil:
				k.logger.Info("Order filled",
					zap.String("market", symbol),
					zap.String("ordId", o.ID),
					zap.String("type", o.Type.String()))
			case errors.Is(err, errors.ErrOrderNotTriggered), errors.Is(err, errors.ErrOrderNotActive):
			default:
				// A limit order that no longer fits the account's margin stays
				// resting; the owner can cancel it.
				k.logger.Warn("Failed to fill order",
					zap.String("market", symbol),
					zap.String("ordId", o.ID),
					zap.Error(err))
			}
		}
	}
}

// GetMetrics returns keeper metrics
func (k *OrderKeeper) GetMetrics() map[string]interface{} {
	return k.stats.snapshot("orders_filled", "orders_failed")
}
