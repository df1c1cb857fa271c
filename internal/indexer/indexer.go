package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/config"
	"github.com/vammperp/backend/internal/pkg/database"
	"github.com/vammperp/backend/internal/pkg/metrics"
)

type MarketLister interface {
	GetAll() ([]model.Market, error)
}

type EventLog interface {
	GetByMarket(market, typ string, afterSeq uint64, limit int) ([]model.EngineEvent, error)
}

type CursorStore interface {
	Get(market string) (uint64, error)
	Save(market string, seq uint64) error
}

type TradeSink interface {
	Create(trade *model.Trade) error
}

type FundingSink interface {
	Create(rate *model.FundingRate) error
}

type LiquidationSink interface {
	Create(liq *model.Liquidation) error
}

type CandleSink interface {
	ProcessTrade(market string, price, size uint64, ts int64)
}

// Notifier delivers engine event notifications. A nil or unavailable
// notifier leaves the indexer on polling alone.
type Notifier interface {
	IsAvailable() bool
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Stores groups the tables the indexer reads from and writes to.
type Stores struct {
	Markets      MarketLister
	Events       EventLog
	Cursors      CursorStore
	Trades       TradeSink
	Funding      FundingSink
	Liquidations LiquidationSink
}

// Indexer derives trades, funding history, liquidations and candles from
// the engine event log. The log in Postgres is authoritative; Redis
// notifications only shorten the delay before a market is read again.
type Indexer struct {
	stores   Stores
	candles  CandleSink
	notifier Notifier
	cfg      config.IndexerConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger

	wake chan string
}

func NewIndexer(stores Stores, candles CandleSink, notifier Notifier, cfg config.IndexerConfig, m *metrics.Metrics, logger *zap.Logger) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Indexer{
		stores:   stores,
		candles:  candles,
		notifier: notifier,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("indexer"),
		wake:     make(chan string, 64),
	}
}

// Run catches up every market and then follows the log until ctx is done.
func (i *Indexer) Run(ctx context.Context) error {
	i.logger.Info("Starting indexer",
		zap.Duration("poll_interval", i.cfg.PollInterval),
		zap.Int("batch_size", i.cfg.BatchSize))

	i.SyncAll(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return i.follow(ctx)
	})
	if i.notifier != nil && i.notifier.IsAvailable() {
		g.Go(func() error {
			return i.subscribe(ctx)
		})
	}

	err := g.Wait()
	i.logger.Info("Indexer shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (i *Indexer) follow(ctx context.Context) error {
	ticker := time.NewTicker(i.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			i.SyncAll(ctx)
		case market := <-i.wake:
			if err := i.SyncMarket(ctx, market); err != nil && ctx.Err() == nil {
				i.logger.Error("Failed to index market", zap.String("market", market), zap.Error(err))
			}
		}
	}
}

// SyncAll indexes the pending events of every known market.
func (i *Indexer) SyncAll(ctx context.Context) {
	markets, err := i.stores.Markets.GetAll()
	if err != nil {
		i.logger.Error("Failed to list markets", zap.Error(err))
		return
	}
	for _, m := range markets {
		if ctx.Err() != nil {
			return
		}
		if err := i.SyncMarket(ctx, m.Symbol); err != nil && ctx.Err() == nil {
			i.logger.Error("Failed to index market", zap.String("market", m.Symbol), zap.Error(err))
		}
	}
}

// SyncMarket pages through the log of market after its cursor. The cursor
// is advanced past every event handled, including on failure, so candles
// are never fed the same trade twice.
func (i *Indexer) SyncMarket(ctx context.Context, market string) error {
	cursor, err := i.stores.Cursors.Get(market)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	start := cursor

	for ctx.Err() == nil {
		rows, err := i.stores.Events.GetByMarket(market, "", cursor, i.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("load events after %d: %w", cursor, err)
		}

		for _, row := range rows {
			if row.Seq != cursor+1 {
				i.logger.Warn("Gap in event log",
					zap.String("market", market),
					zap.Uint64("expected", cursor+1),
					zap.Uint64("got", row.Seq))
			}
			if err := i.handle(row); err != nil {
				if saveErr := i.saveCursor(market, cursor); saveErr != nil {
					i.logger.Error("Failed to save cursor", zap.String("market", market), zap.Error(saveErr))
				}
				return fmt.Errorf("event %d (%s): %w", row.Seq, row.Type, err)
			}
			cursor = row.Seq
		}

		if len(rows) > 0 {
			if err := i.saveCursor(market, cursor); err != nil {
				return fmt.Errorf("save cursor: %w", err)
			}
		}
		if len(rows) < i.cfg.BatchSize {
			break
		}
	}

	if cursor > start {
		i.logger.Debug("Indexed events",
			zap.String("market", market),
			zap.Uint64("from", start+1),
			zap.Uint64("to", cursor))
	}
	return ctx.Err()
}

func (i *Indexer) saveCursor(market string, seq uint64) error {
	if err := i.stores.Cursors.Save(market, seq); err != nil {
		return err
	}
	i.metrics.SetIndexedSeq(market, seq)
	return nil
}

func (i *Indexer) handle(row model.EngineEvent) error {
	payload, err := engine.NewPayload(engine.EventType(row.Type))
	if err != nil {
		i.logger.Debug("Skipping unknown event", zap.String("type", row.Type))
		return nil
	}
	if err := json.Unmarshal([]byte(row.Payload), payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	tradeID := model.TradeID(row.Market, row.Seq)

	switch p := payload.(type) {
	case *engine.PositionOpenedEvent:
		return i.recordTrade(&model.Trade{
			TradeID:    tradeID,
			Market:     row.Market,
			Trader:     p.Trader.Hex(),
			PositionID: p.PositionID,
			OrderID:    p.OrderID,
			Kind:       model.TradeKindOpen,
			Side:       p.Side.String(),
			Fee:        model.NewDecimalFromUint64(p.Fee),
			Ts:         row.Ts,
		}, p.EntryPrice, p.Size)

	case *engine.PositionClosedEvent:
		return i.recordTrade(&model.Trade{
			TradeID:     tradeID,
			Market:      row.Market,
			Trader:      p.Trader.Hex(),
			PositionID:  p.PositionID,
			OrderID:     p.OrderID,
			Kind:        model.TradeKindClose,
			Side:        p.Side.String(),
			Fee:         model.NewDecimalFromUint64(p.Fee),
			RealizedPnl: p.RealizedPnL,
			Ts:          row.Ts,
		}, p.ExecutionPrice, p.Size)

	case *engine.PositionLiquidatedEvent:
		if err := i.stores.Liquidations.Create(&model.Liquidation{
			PositionID:       p.PositionID,
			Market:           row.Market,
			Trader:           p.Trader.Hex(),
			Liquidator:       p.Liquidator.Hex(),
			Side:             p.Side.String(),
			Size:             model.NewDecimalFromUint64(p.Size),
			Price:            model.NewDecimalFromUint64(p.ExitPrice),
			RealizedPnl:      p.RealizedPnL,
			LiquidationFee:   model.NewDecimalFromUint64(p.LiquidationFee),
			LiquidatorReward: model.NewDecimalFromUint64(p.LiquidatorFee),
			InsuranceFee:     model.NewDecimalFromUint64(p.InsuranceFundFee),
			Shortfall:        model.NewDecimalFromUint64(p.Shortfall),
			Ts:               row.Ts,
		}); err != nil {
			return fmt.Errorf("create liquidation: %w", err)
		}
		return i.recordTrade(&model.Trade{
			TradeID:     tradeID,
			Market:      row.Market,
			Trader:      p.Trader.Hex(),
			PositionID:  p.PositionID,
			Kind:        model.TradeKindLiquidation,
			Side:        p.Side.String(),
			Fee:         model.NewDecimalFromUint64(p.LiquidationFee),
			RealizedPnl: p.RealizedPnL,
			Ts:          row.Ts,
		}, p.ExitPrice, p.Size)

	case *engine.FundingUpdatedEvent:
		if err := i.stores.Funding.Create(&model.FundingRate{
			Market:            row.Market,
			FundingRate:       p.FundingRate,
			Intervals:         p.Intervals,
			CumulativeFunding: p.CumulativeFunding,
			FundingTime:       p.LastFundingTime,
		}); err != nil {
			return fmt.Errorf("create funding rate: %w", err)
		}
	}
	return nil
}

func (i *Indexer) recordTrade(trade *model.Trade, price, size uint64) error {
	trade.Price = model.NewDecimalFromUint64(price)
	trade.Size = model.NewDecimalFromUint64(size)
	if err := i.stores.Trades.Create(trade); err != nil {
		return fmt.Errorf("create trade: %w", err)
	}
	if i.candles != nil {
		i.candles.ProcessTrade(trade.Market, price, size, trade.Ts)
	}
	return nil
}

// subscribe keeps a Redis subscription alive, reconnecting with backoff.
// Losing Redis for good only costs latency, so it never fails Run.
func (i *Indexer) subscribe(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 30 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, i.listen(ctx, b.Reset)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			i.logger.Warn("Engine event subscription lost",
				zap.Error(err),
				zap.Duration("retry_in", next))
		}),
	)
	if err != nil && ctx.Err() == nil {
		i.logger.Error("Giving up on engine event subscription, polling only", zap.Error(err))
	}
	return nil
}

// listen returns nil only when ctx is done.
func (i *Indexer) listen(ctx context.Context, connected func()) error {
	ps := i.notifier.Subscribe(ctx, database.ChannelEngineEvents)
	if ps == nil {
		return backoff.Permanent(database.ErrCacheNotAvailable)
	}
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", database.ChannelEngineEvents, err)
	}
	connected()
	i.logger.Info("Subscribed to engine events", zap.String("channel", database.ChannelEngineEvents))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("subscription channel closed")
			}
			var head struct {
				Market string `json:"market"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &head); err != nil || head.Market == "" {
				i.logger.Warn("Ignoring malformed engine event message", zap.Error(err))
				continue
			}
			i.Notify(head.Market)
		}
	}
}

// Notify asks for market to be read again. Wakeups beyond the queue are
// dropped; the next poll picks those markets up.
func (i *Indexer) Notify(market string) {
	select {
	case i.wake <- market:
	default:
	}
}
