package keeper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/database"
	"github.com/vammperp/backend/internal/pkg/metrics"
	"github.com/vammperp/backend/internal/service"
)

// Notifier pushes periodic market data to streaming clients.
type Notifier interface {
	PushMarkPrice(mp *model.MarkPrice)
	PushFundingRate(info *model.FundingRateInfo)
	PushLiquidationWarning(w service.LiquidationWarning)
}

// PriceKeeper refreshes the cached market data every interval. With a feed
// configured it first publishes the feed price to the oracle as the oracle
// authority.
type PriceKeeper struct {
	svc       Applier
	engine    *engine.Engine
	markets   *service.MarketService
	risk      *service.LiquidationService
	cache     *database.Cache
	notifier  Notifier
	feed      *PriceFeed
	authority common.Address
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
	stats     stats
}

func NewPriceKeeper(
	svc Applier,
	eng *engine.Engine,
	markets *service.MarketService,
	risk *service.LiquidationService,
	cache *database.Cache,
	interval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *PriceKeeper {
	return &PriceKeeper{
		svc:      svc,
		engine:   eng,
		markets:  markets,
		risk:     risk,
		cache:    cache,
		interval: interval,
		metrics:  m,
		logger:   logger,
	}
}

// WithFeed makes the keeper push feed prices to the oracle as authority.
func (k *PriceKeeper) WithFeed(feed *PriceFeed, authority common.Address) *PriceKeeper {
	k.feed = feed
	k.authority = authority
	return k
}

func (k *PriceKeeper) WithNotifier(n Notifier) *PriceKeeper {
	k.notifier = n
	return k
}

func (k *PriceKeeper) Name() string { return "price" }

func (k *PriceKeeper) Start(ctx context.Context) {
	k.logger.Info("Price keeper started",
		zap.Duration("interval", k.interval),
		zap.Bool("feed", k.feed != nil))

	// Update prices immediately on start
	k.updatePrices(ctx)
	loop(ctx, k.interval, k.updatePrices)
	k.logger.Info("Price keeper stopped")
}

func (k *PriceKeeper) updatePrices(ctx context.Context) {
	now := time.Now()
	k.stats.checked(now)

	for _, symbol := range k.engine.Symbols() {
		if k.feed != nil {
			k.pushFeedPrice(ctx, symbol)
		}
		k.refresh(ctx, symbol, now)
	}
}

func (k *PriceKeeper) pushFeedPrice(ctx context.Context, symbol string) {
	q, err := k.feed.Fetch(ctx, symbol)
	if err != nil {
		k.stats.record(err)
		k.metrics.RecordKeeperRun(k.Name(), err)
		k.logger.Warn("Failed to fetch feed price", zap.String("market", symbol), zap.Error(err))
		return
	}
	err = submit(ctx, k.svc, k.metrics, k.Name(), &k.stats, engine.UpdateOraclePrice{
		Market:      symbol,
		Authority:   k.authority,
		Price:       q.Price,
		Confidence:  q.Confidence,
		PublishTime: q.PublishTime,
	})
	if err != nil {
		k.logger.Error("Failed to update oracle price",
			zap.String("market", symbol),
			zap.Int64("price", q.Price),
			zap.Error(err))
	}
}

// refresh writes ticker, mark price and funding info to the cache and pushes
// them to subscribers, together with liquidation warnings.
func (k *PriceKeeper) refresh(ctx context.Context, symbol string, now time.Time) {
	ticker, err := k.markets.BuildTicker(symbol)
	if err != nil {
		return
	}
	if data, err := json.Marshal(ticker); err == nil {
		if err := k.cache.SetTicker(ctx, symbol, data, 30*time.Second); err != nil && err != database.ErrCacheNotAvailable {
			k.logger.Error("Failed to set ticker", zap.String("market", symbol), zap.Error(err))
		}
	}

	if m, err := k.engine.Market(symbol); err == nil && m.AMM.LastPrice > 0 {
		_ = k.cache.AddPriceToHistory(ctx, symbol, m.AMM.LastPrice, now.Unix())
		_ = k.cache.TrimPriceHistory(ctx, symbol, now.Add(-24*time.Hour).Unix())
	}

	mp, err := k.markets.GetMarkPrice(symbol)
	if err == nil {
		if data, err := json.Marshal(mp); err == nil {
			_ = k.cache.SetMarkPrice(ctx, symbol, data, 30*time.Second)
		}
	}
	info, ierr := k.markets.GetFundingRate(symbol)
	if ierr == nil {
		if data, err := json.Marshal(info); err == nil {
			_ = k.cache.SetFundingRate(ctx, symbol, data, 60*time.Second)
		}
	}

	if k.notifier == nil {
		return
	}
	if err == nil {
		k.notifier.PushMarkPrice(mp)
	}
	if ierr == nil {
		k.notifier.PushFundingRate(info)
	}
	if k.risk != nil {
		warnings, _ := k.risk.Warnings(symbol)
		for _, w := range warnings {
			k.notifier.PushLiquidationWarning(w)
		}
	}
}

// GetMetrics returns keeper metrics
func (k *PriceKeeper) GetMetrics() map[string]interface{} {
	m := k.stats.snapshot("oracle_updates", "oracle_failures")
	m["feed_enabled"] = k.feed != nil
	return m
}

// Quote is one price observation in raw engine units.
type Quote struct {
	Price       int64
	Confidence  uint64
	PublishTime int64
}

// PriceFeed reads prices from an HTTP endpoint that answers
// GET <url>?market=<symbol> with
// {"price":"1850.25","confidence":"0.50","publishTime":1700000000}.
type PriceFeed struct {
	url      string
	client   *http.Client
	maxTries uint
}

func NewPriceFeed(rawURL string) *PriceFeed {
	return &PriceFeed{
		url: rawURL,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		maxTries: 3,
	}
}

type feedResponse struct {
	Price       model.Decimal `json:"price"`
	Confidence  model.Decimal `json:"confidence"`
	PublishTime int64         `json:"publishTime"`
}

// Fetch returns the latest quote for symbol, retrying transient failures
// with exponential backoff.
func (f *PriceFeed) Fetch(ctx context.Context, symbol string) (*Quote, error) {
	return backoff.Retry(ctx, func() (*Quote, error) {
		return f.fetchOnce(ctx, symbol)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(f.maxTries))
}

func (f *PriceFeed) fetchOnce(ctx context.Context, symbol string) (*Quote, error) {
	u, err := url.Parse(f.url)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	q := u.Query()
	q.Set("market", symbol)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("price feed returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	var r feedResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode price feed: %w", err))
	}

	price, err := r.Price.Fixed()
	if err != nil || price == 0 || price > uint64(1<<63-1) {
		return nil, backoff.Permanent(fmt.Errorf("invalid feed price %s", r.Price.String()))
	}
	conf, err := r.Confidence.Fixed()
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid feed confidence %s", r.Confidence.String()))
	}
	return &Quote{Price: int64(price), Confidence: conf, PublishTime: r.PublishTime}, nil
}
