package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/database"
	"github.com/vammperp/backend/internal/repository"
)

// MarketService serves public market data. Live values come from the engine,
// history from the indexed tables. Prices in the returned DTOs are display
// values; raw engine units stay in the table rows.
type MarketService struct {
	engine          *engine.Engine
	tradeRepo       *repository.TradeRepository
	candleRepo      *repository.CandleRepository
	fundingRepo     *repository.FundingRateRepository
	liquidationRepo *repository.LiquidationRepository
	cache           *database.Cache
	now             func() time.Time
}

func NewMarketService(
	eng *engine.Engine,
	tradeRepo *repository.TradeRepository,
	candleRepo *repository.CandleRepository,
	fundingRepo *repository.FundingRateRepository,
	liquidationRepo *repository.LiquidationRepository,
	cache *database.Cache,
) *MarketService {
	return &MarketService{
		engine:          eng,
		tradeRepo:       tradeRepo,
		candleRepo:      candleRepo,
		fundingRepo:     fundingRepo,
		liquidationRepo: liquidationRepo,
		cache:           cache,
		now:             time.Now,
	}
}

func (s *MarketService) GetMarkets() []engine.Market {
	return s.engine.Markets()
}

func (s *MarketService) GetMarket(symbol string) (engine.Market, error) {
	return s.engine.Market(symbol)
}

func (s *MarketService) GetOracle(symbol string) (engine.Oracle, error) {
	return s.engine.Oracle(symbol)
}

func (s *MarketService) GetTicker(ctx context.Context, symbol string) (*model.Ticker, error) {
	// Try cache first
	if data, err := s.cache.GetTicker(ctx, symbol); err == nil {
		var ticker model.Ticker
		if json.Unmarshal(data, &ticker) == nil {
			return &ticker, nil
		}
	}

	ticker, err := s.BuildTicker(symbol)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(ticker); err == nil {
		_ = s.cache.SetTicker(ctx, symbol, data, 5*time.Second)
	}
	return ticker, nil
}

// BuildTicker assembles a ticker from the engine and the 24h trade stats,
// bypassing the cache.
func (s *MarketService) BuildTicker(symbol string) (*model.Ticker, error) {
	m, err := s.engine.Market(symbol)
	if err != nil {
		return nil, err
	}
	now := s.now()
	ticker := &model.Ticker{
		Market:        symbol,
		Last:          model.FromFixed(m.AMM.LastPrice),
		FundingRate:   model.FromSignedFixed(m.FundingRate),
		OpenInterest:  model.NewDecimalFromUint64(m.OpenInterestLong).Add(model.NewDecimalFromUint64(m.OpenInterestShort)),
		InsuranceFund: model.NewDecimalFromUint64(m.InsuranceFund),
		IsActive:      m.IsActive,
		Ts:            now.UnixMilli(),
	}
	if mark, err := s.engine.MarkPrice(symbol); err == nil {
		ticker.MarkPx = model.FromFixed(mark)
	}
	if o, err := s.engine.Oracle(symbol); err == nil && o.Price > 0 {
		ticker.IndexPx = model.FromSignedFixed(o.Price)
	}

	if s.tradeRepo != nil {
		if stats, err := s.tradeRepo.Get24hStats(symbol, now); err == nil {
			ticker.Open24h = stats.Open.Shift(-model.FixedDecimals)
			ticker.High24h = stats.High.Shift(-model.FixedDecimals)
			ticker.Low24h = stats.Low.Shift(-model.FixedDecimals)
			ticker.Vol24h = stats.Volume
		}
	}
	return ticker, nil
}

func (s *MarketService) GetAllTickers(ctx context.Context) ([]model.Ticker, error) {
	var tickers []model.Ticker
	for _, symbol := range s.engine.Symbols() {
		ticker, err := s.GetTicker(ctx, symbol)
		if err == nil {
			tickers = append(tickers, *ticker)
		}
	}
	return tickers, nil
}

// GetMarkPrice reports the oracle price as the engine would use it. Stale is
// set when the price fails the oracle gate; MarkPx then carries the last
// published price.
func (s *MarketService) GetMarkPrice(symbol string) (*model.MarkPrice, error) {
	spot, err := s.engine.SpotPrice(symbol)
	if err != nil {
		return nil, err
	}
	mp := &model.MarkPrice{
		Market: symbol,
		SpotPx: model.FromFixed(spot),
		Ts:     s.now().UnixMilli(),
	}
	if o, err := s.engine.Oracle(symbol); err == nil {
		mp.MarkPx = model.FromSignedFixed(o.Price)
		mp.Conf = model.FromFixed(o.Confidence)
	}
	mark, err := s.engine.MarkPrice(symbol)
	if err != nil {
		mp.Stale = true
		return mp, nil
	}
	mp.MarkPx = model.FromFixed(mark)
	return mp, nil
}

func (s *MarketService) GetAllMarkPrices() ([]model.MarkPrice, error) {
	var prices []model.MarkPrice
	for _, symbol := range s.engine.Symbols() {
		price, err := s.GetMarkPrice(symbol)
		if err == nil {
			prices = append(prices, *price)
		}
	}
	return prices, nil
}

func (s *MarketService) GetFundingRate(symbol string) (*model.FundingRateInfo, error) {
	m, err := s.engine.Market(symbol)
	if err != nil {
		return nil, err
	}
	return &model.FundingRateInfo{
		Market:            symbol,
		FundingRate:       model.FromSignedFixed(m.FundingRate),
		CumulativeFunding: model.FromSignedFixed(m.CumulativeFunding),
		FundingTime:       m.LastFundingTime,
		NextFundingTime:   m.LastFundingTime + m.FundingInterval,
	}, nil
}

func (s *MarketService) GetFundingRateHistory(symbol string, after, before int64, limit int) ([]model.FundingRate, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.fundingRepo.GetHistory(symbol, after, before, limit)
}

func (s *MarketService) GetCandles(symbol, bar string, after, before int64, limit int) ([]model.Candle, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.candleRepo.GetByMarketAndBar(symbol, bar, after, before, limit)
}

func (s *MarketService) GetTrades(symbol string, limit int) ([]model.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.tradeRepo.GetByMarket(symbol, limit)
}

func (s *MarketService) GetRecentLiquidations(symbol string, limit int) ([]model.Liquidation, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.liquidationRepo.GetRecent(symbol, limit)
}

func (s *MarketService) GetServerTime() int64 {
	return s.now().UnixMilli()
}
