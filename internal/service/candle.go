package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/model"
)

// CandleStore is the candle persistence used by CandleService.
type CandleStore interface {
	GetLatest(market, bar string) (*model.Candle, error)
	UpdateOrCreate(candle *model.Candle) error
	ConfirmBefore(market, bar string, ts int64) error
}

// CandleService builds OHLCV candles from execution prices. The candle of the
// current period is kept in memory and written through on every trade.
type CandleService struct {
	store  CandleStore
	logger *zap.Logger
	now    func() time.Time

	// Current candles being built
	current map[string]map[string]*model.Candle // market -> bar -> candle
	mu      sync.Mutex
}

// Bar interval durations
var barDurations = map[string]time.Duration{
	model.Bar1m:  time.Minute,
	model.Bar5m:  5 * time.Minute,
	model.Bar15m: 15 * time.Minute,
	model.Bar1H:  time.Hour,
	model.Bar4H:  4 * time.Hour,
	model.Bar1D:  24 * time.Hour,
}

// ValidBar reports whether bar is a supported candle interval.
func ValidBar(bar string) bool {
	_, ok := barDurations[bar]
	return ok
}

func NewCandleService(store CandleStore, logger *zap.Logger) *CandleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandleService{
		store:   store,
		logger:  logger.Named("candles"),
		now:     time.Now,
		current: make(map[string]map[string]*model.Candle),
	}
}

// Start resumes the open candles of markets and closes finished periods
// until ctx is done.
func (s *CandleService) Start(ctx context.Context, markets []string) {
	s.logger.Info("Starting candle service", zap.Int("markets", len(markets)))
	for _, market := range markets {
		s.resume(market)
	}
	go s.candleCloser(ctx)
}

func (s *CandleService) resume(market string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().Unix()
	candles := s.marketCandles(market)
	for bar, duration := range barDurations {
		c, err := s.store.GetLatest(market, bar)
		if err != nil {
			continue
		}
		if err := s.store.ConfirmBefore(market, bar, c.Ts); err != nil {
			s.logger.Warn("Failed to confirm old candles", zap.String("market", market), zap.String("bar", bar), zap.Error(err))
		}
		if c.Confirm != 0 {
			continue
		}
		if now >= c.Ts+int64(duration/time.Second) {
			s.closeCandle(c)
			continue
		}
		candles[bar] = c
	}
}

// ProcessTrade folds one execution into every bar of market. price and size
// are raw engine units; ts is unix seconds.
func (s *CandleService) ProcessTrade(market string, price, size uint64, ts int64) {
	px := model.NewDecimalFromUint64(price)
	sz := model.NewDecimalFromUint64(size)

	s.mu.Lock()
	defer s.mu.Unlock()

	candles := s.marketCandles(market)
	for bar, duration := range barDurations {
		start := candleStart(ts, duration)

		candle, ok := candles[bar]
		switch {
		case ok && start < candle.Ts:
			// Late trade for a period already rolled over.
			continue
		case !ok || candle.Ts != start:
			if ok {
				s.closeCandle(candle)
			}
			candle = &model.Candle{
				Market: market,
				Bar:    bar,
				Ts:     start,
				O:      px,
				H:      px,
				L:      px,
				C:      px,
				Vol:    sz,
			}
			candles[bar] = candle
		default:
			if px.GreaterThan(candle.H) {
				candle.H = px
			}
			if px.LessThan(candle.L) {
				candle.L = px
			}
			candle.C = px
			candle.Vol = candle.Vol.Add(sz)
		}
		s.save(candle)
	}
}

// GetCurrentCandle returns a copy of the open candle of market and bar.
func (s *CandleService) GetCurrentCandle(market, bar string) *model.Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.current[market][bar]; ok {
		cp := *c
		return &cp
	}
	return nil
}

func (s *CandleService) candleCloser(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.closeExpired()
		}
	}
}

func (s *CandleService) closeExpired() {
	now := s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	for market, candles := range s.current {
		for bar, candle := range candles {
			end := candle.Ts + int64(barDurations[bar]/time.Second)
			if now < end {
				continue
			}
			s.closeCandle(candle)
			delete(candles, bar)
			s.logger.Debug("Candle closed",
				zap.String("market", market),
				zap.String("bar", bar),
				zap.Int64("ts", candle.Ts))
		}
	}
}

func (s *CandleService) closeCandle(candle *model.Candle) {
	candle.Confirm = 1
	s.save(candle)
}

func (s *CandleService) save(candle *model.Candle) {
	if err := s.store.UpdateOrCreate(candle); err != nil {
		s.logger.Error("Failed to save candle",
			zap.String("market", candle.Market),
			zap.String("bar", candle.Bar),
			zap.Error(err))
	}
}

func (s *CandleService) marketCandles(market string) map[string]*model.Candle {
	candles, ok := s.current[market]
	if !ok {
		candles = make(map[string]*model.Candle)
		s.current[market] = candles
	}
	return candles
}

func candleStart(ts int64, duration time.Duration) int64 {
	secs := int64(duration / time.Second)
	return ts / secs * secs
}
