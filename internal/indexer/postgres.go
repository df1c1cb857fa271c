package indexer

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/pkg/config"
	"github.com/vammperp/backend/internal/pkg/database"
	"github.com/vammperp/backend/internal/pkg/metrics"
	"github.com/vammperp/backend/internal/repository"
	"github.com/vammperp/backend/internal/service"
)

// NewPostgresIndexer wires an indexer to the Postgres repositories. The
// returned candle service must be started by the caller.
func NewPostgresIndexer(db *gorm.DB, cache *database.Cache, cfg config.IndexerConfig, m *metrics.Metrics, logger *zap.Logger) (*Indexer, *service.CandleService) {
	candles := service.NewCandleService(repository.NewCandleRepository(db), logger)
	stores := Stores{
		Markets:      repository.NewMarketRepository(db),
		Events:       repository.NewEventRepository(db),
		Cursors:      repository.NewSyncStateRepository(db),
		Trades:       repository.NewTradeRepository(db),
		Funding:      repository.NewFundingRateRepository(db),
		Liquidations: repository.NewLiquidationRepository(db),
	}
	var notifier Notifier
	if cache.IsAvailable() {
		notifier = cache
	}
	return NewIndexer(stores, candles, notifier, cfg, m, logger), candles
}
