package indexer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/config"
)

const testMarket = "ETH-PERP"

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	keeper = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

type memStore struct {
	mu           sync.Mutex
	events       []model.EngineEvent
	cursors      map[string]uint64
	trades       []model.Trade
	funding      []model.FundingRate
	liquidations []model.Liquidation
	failTrade    func(*model.Trade) error
}

func newMemStore() *memStore {
	return &memStore{cursors: make(map[string]uint64)}
}

func (m *memStore) stores() Stores {
	return Stores{
		Markets:      marketsFunc(func() ([]model.Market, error) { return []model.Market{{Symbol: testMarket}}, nil }),
		Events:       m,
		Cursors:      cursors{m},
		Trades:       trades{m},
		Funding:      funding{m},
		Liquidations: liquidations{m},
	}
}

type marketsFunc func() ([]model.Market, error)

func (f marketsFunc) GetAll() ([]model.Market, error) { return f() }

func (m *memStore) GetByMarket(market, typ string, afterSeq uint64, limit int) ([]model.EngineEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EngineEvent
	for _, ev := range m.events {
		if ev.Market != market || ev.Seq <= afterSeq || (typ != "" && ev.Type != typ) {
			continue
		}
		out = append(out, ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type cursors struct{ m *memStore }

func (c cursors) Get(market string) (uint64, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.m.cursors[market], nil
}

func (c cursors) Save(market string, seq uint64) error {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	c.m.cursors[market] = seq
	return nil
}

type trades struct{ m *memStore }

func (t trades) Create(trade *model.Trade) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.m.failTrade != nil {
		if err := t.m.failTrade(trade); err != nil {
			return err
		}
	}
	for _, existing := range t.m.trades {
		if existing.TradeID == trade.TradeID {
			return nil
		}
	}
	t.m.trades = append(t.m.trades, *trade)
	return nil
}

type funding struct{ m *memStore }

func (f funding) Create(rate *model.FundingRate) error {
	f.m.mu.Lock()
	defer f.m.mu.Unlock()
	f.m.funding = append(f.m.funding, *rate)
	return nil
}

type liquidations struct{ m *memStore }

func (l liquidations) Create(liq *model.Liquidation) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	l.m.liquidations = append(l.m.liquidations, *liq)
	return nil
}

type candleCall struct {
	market      string
	price, size uint64
	ts          int64
}

type recordingCandles struct {
	mu    sync.Mutex
	calls []candleCall
}

func (r *recordingCandles) ProcessTrade(market string, price, size uint64, ts int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, candleCall{market, price, size, ts})
}

func (r *recordingCandles) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// seedEvents drives a real engine through opens, a liquidation and a
// funding accrual and appends the committed events to the log.
func seedEvents(t *testing.T, store *memStore) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	eng := engine.New(engine.DefaultPolicy(), engine.WithClock(func() time.Time { return now }))

	apply := func(in engine.Intent) *engine.Receipt {
		t.Helper()
		r, err := eng.Apply(context.Background(), in)
		require.NoError(t, err, in.Name())
		for _, ev := range r.Events {
			row, err := model.EventFromEngine(ev)
			require.NoError(t, err)
			store.events = append(store.events, *row)
		}
		return r
	}

	apply(engine.InitializeMarket{
		Market:                 testMarket,
		Authority:              admin,
		Pricing:                engine.PricingConstantProduct,
		BaseReserve:            1_000_000_000_000,
		QuoteReserve:           1_000_000_000_000,
		FundingRate:            10,
		FundingInterval:        3600,
		MaintenanceMarginRatio: 500,
		InitialMarginRatio:     1000,
		MaxLeverage:            10,
		LiquidationFeeRatio:    500,
		TradingFeeRatio:        10,
	})
	apply(engine.InitializeOracle{Market: testMarket, Authority: admin, Price: 1_000_000})

	var alicePos string
	for _, trader := range []common.Address{alice, bob} {
		apply(engine.CreateMarginAccount{Market: testMarket, Owner: trader, MarginType: engine.MarginIsolated})
		apply(engine.DepositCollateral{Market: testMarket, Owner: trader, Amount: 1_000_000})
		r := apply(engine.OpenPosition{Market: testMarket, Trader: trader, Side: engine.SideLong, Size: 50_000, Leverage: 5})
		if trader == alice {
			alicePos = r.Positions[0].ID
		}
	}

	apply(engine.UpdateOraclePrice{Market: testMarket, Authority: admin, Price: 820_000})
	apply(engine.LiquidatePosition{Market: testMarket, Liquidator: keeper, PositionID: alicePos})

	now = now.Add(time.Hour + time.Second)
	apply(engine.UpdateOraclePrice{Market: testMarket, Authority: admin, Price: 820_000})
	apply(engine.UpdateFundingPayments{Market: testMarket})
}

func newTestIndexer(store *memStore, candles CandleSink, batch int) *Indexer {
	return NewIndexer(store.stores(), candles, nil, config.IndexerConfig{
		BatchSize:    batch,
		PollInterval: 10 * time.Millisecond,
	}, nil, zap.NewNop())
}

func TestSyncMarketDerivesRows(t *testing.T) {
	store := newMemStore()
	seedEvents(t, store)
	candles := &recordingCandles{}
	idx := newTestIndexer(store, candles, 2)

	require.NoError(t, idx.SyncMarket(context.Background(), testMarket))

	last := store.events[len(store.events)-1].Seq
	assert.Equal(t, last, store.cursors[testMarket])

	require.Len(t, store.trades, 3)
	assert.Equal(t, model.TradeKindOpen, store.trades[0].Kind)
	assert.Equal(t, alice.Hex(), store.trades[0].Trader)
	assert.Equal(t, model.TradeKindOpen, store.trades[1].Kind)
	assert.Equal(t, bob.Hex(), store.trades[1].Trader)
	assert.Equal(t, model.TradeKindLiquidation, store.trades[2].Kind)
	assert.Equal(t, "long", store.trades[2].Side)
	for _, tr := range store.trades {
		assert.Equal(t, testMarket, tr.Market)
		assert.Contains(t, tr.TradeID, testMarket+"-T")
		assert.Equal(t, int64(1_700_000_000), tr.Ts)
	}

	require.Len(t, store.liquidations, 1)
	liq := store.liquidations[0]
	assert.Equal(t, alice.Hex(), liq.Trader)
	assert.Equal(t, keeper.Hex(), liq.Liquidator)
	assert.Equal(t, store.trades[2].PositionID, liq.PositionID)
	assert.True(t, liq.LiquidationFee.Equal(liq.LiquidatorReward.Add(liq.InsuranceFee)))

	require.Len(t, store.funding, 1)
	assert.Equal(t, int64(10), store.funding[0].FundingRate)
	assert.Equal(t, int64(1), store.funding[0].Intervals)
	assert.Equal(t, int64(10), store.funding[0].CumulativeFunding)

	require.Equal(t, 3, candles.count())
	assert.Equal(t, uint64(50_000), candles.calls[0].size)
	assert.Equal(t, int64(1_700_000_000), candles.calls[0].ts)
}

func TestSyncMarketIsIdempotent(t *testing.T) {
	store := newMemStore()
	seedEvents(t, store)
	candles := &recordingCandles{}
	idx := newTestIndexer(store, candles, 500)

	require.NoError(t, idx.SyncMarket(context.Background(), testMarket))
	require.NoError(t, idx.SyncMarket(context.Background(), testMarket))

	assert.Len(t, store.trades, 3)
	assert.Len(t, store.funding, 1)
	assert.Equal(t, 3, candles.count())
}

func TestSyncMarketResumesAfterFailure(t *testing.T) {
	store := newMemStore()
	seedEvents(t, store)
	candles := &recordingCandles{}
	idx := newTestIndexer(store, candles, 500)

	errDown := errors.New("database down")
	store.failTrade = func(tr *model.Trade) error {
		if tr.Trader == bob.Hex() {
			return errDown
		}
		return nil
	}

	err := idx.SyncMarket(context.Background(), testMarket)
	require.ErrorIs(t, err, errDown)
	require.Len(t, store.trades, 1)
	assert.Equal(t, 1, candles.count())

	var bobSeq uint64
	for _, ev := range store.events {
		if ev.Type == string(engine.EventPositionOpened) {
			bobSeq = ev.Seq
		}
	}
	assert.Equal(t, bobSeq-1, store.cursors[testMarket])

	store.failTrade = nil
	require.NoError(t, idx.SyncMarket(context.Background(), testMarket))
	assert.Len(t, store.trades, 3)
	assert.Equal(t, 3, candles.count())
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	store := newMemStore()
	store.events = []model.EngineEvent{
		{Market: testMarket, Seq: 1, Type: string(engine.EventPositionOpened), Payload: "{", Ts: 1},
	}
	idx := newTestIndexer(store, nil, 500)

	err := idx.SyncMarket(context.Background(), testMarket)
	require.Error(t, err)
	assert.Zero(t, store.cursors[testMarket])
}

func TestHandleSkipsUnknownEvents(t *testing.T) {
	store := newMemStore()
	store.events = []model.EngineEvent{
		{Market: testMarket, Seq: 1, Type: "SomethingNew", Payload: "{}", Ts: 1},
	}
	idx := newTestIndexer(store, nil, 500)

	require.NoError(t, idx.SyncMarket(context.Background(), testMarket))
	assert.Equal(t, uint64(1), store.cursors[testMarket])
}

func TestRunFollowsLogUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newMemStore()
	candles := &recordingCandles{}
	idx := newTestIndexer(store, candles, 500)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- idx.Run(ctx) }()

	// Events committed after start are picked up by the poll loop.
	seed := newMemStore()
	seedEvents(t, seed)
	store.mu.Lock()
	store.events = seed.events
	store.mu.Unlock()
	idx.Notify(testMarket)

	require.Eventually(t, func() bool { return candles.count() == 3 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("indexer did not stop")
	}
}
