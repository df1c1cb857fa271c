package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vammperp/backend/internal/pkg/errors"
)

const testMarket = "SOL-PERP"

var (
	admin  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	bob    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	keeper = common.HexToAddress("0x00000000000000000000000000000000000000a4")
)

type fixture struct {
	t   *testing.T
	e   *Engine
	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, now: time.Unix(1_700_000_000, 0)}
	f.e = New(DefaultPolicy(), WithClock(f.clock))
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func (f *fixture) apply(in Intent) *Receipt {
	f.t.Helper()
	r, err := f.e.Apply(context.Background(), in)
	require.NoError(f.t, err, in.Name())
	return r
}

func (f *fixture) fail(in Intent, want error) {
	f.t.Helper()
	_, err := f.e.Apply(context.Background(), in)
	require.ErrorIs(f.t, err, want, in.Name())
}

func defaultMarket() InitializeMarket {
	return InitializeMarket{
		Market:                 testMarket,
		Authority:              admin,
		Pricing:                PricingConstantProduct,
		BaseReserve:            1_000_000_000_000,
		QuoteReserve:           1_000_000_000_000,
		FundingInterval:        3600,
		MaintenanceMarginRatio: 500,
		InitialMarginRatio:     1000,
		MaxLeverage:            10,
		LiquidationFeeRatio:    500,
		TradingFeeRatio:        10,
	}
}

// setup creates the default market with an oracle at 1.0 and funded
// isolated accounts for alice and bob.
func (f *fixture) setup() {
	f.t.Helper()
	f.apply(defaultMarket())
	f.apply(InitializeOracle{Market: testMarket, Authority: admin, Price: 1_000_000})
	for _, owner := range []common.Address{alice, bob} {
		f.apply(CreateMarginAccount{Market: testMarket, Owner: owner, MarginType: MarginIsolated})
		f.apply(DepositCollateral{Market: testMarket, Owner: owner, Amount: 1_000_000})
	}
}

func (f *fixture) setPrice(price int64) {
	f.t.Helper()
	f.apply(UpdateOraclePrice{Market: testMarket, Authority: admin, Price: price})
}

func (f *fixture) open(trader common.Address, side Side, size, leverage uint64) Position {
	f.t.Helper()
	r := f.apply(OpenPosition{Market: testMarket, Trader: trader, Side: side, Size: size, Leverage: leverage})
	require.Len(f.t, r.Positions, 1)
	return r.Positions[0]
}

func (f *fixture) account(owner common.Address) MarginAccount {
	f.t.Helper()
	a, err := f.e.Account(testMarket, owner)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) market() Market {
	f.t.Helper()
	m, err := f.e.Market(testMarket)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) assertMarginConserved() {
	f.t.Helper()
	snap, err := f.e.Snapshot(testMarket)
	require.NoError(f.t, err)
	open := make(map[common.Address]uint64)
	for _, p := range snap.Positions {
		if p.IsOpen() {
			open[p.Trader] += p.Collateral
		}
	}
	for _, a := range snap.Accounts {
		assert.Equal(f.t, open[a.Owner], a.AllocatedMargin, "allocated margin of %s", a.Owner.Hex())
		assert.LessOrEqual(f.t, a.AllocatedMargin, a.Collateral)
		if len(a.Positions) == 0 {
			assert.Zero(f.t, a.AllocatedMargin)
		}
	}
}

func TestInitializeMarketValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*InitializeMarket)
		want   error
	}{
		{"empty symbol", func(m *InitializeMarket) { m.Market = "" }, errors.ErrInvalidMarketSymbol},
		{"zero funding interval", func(m *InitializeMarket) { m.FundingInterval = 0 }, errors.ErrInvalidFundingInterval},
		{"zero mmr", func(m *InitializeMarket) { m.MaintenanceMarginRatio = 0 }, errors.ErrInvalidMarginRatio},
		{"imr below mmr", func(m *InitializeMarket) { m.InitialMarginRatio = 400 }, errors.ErrInvalidMarginRatio},
		{"imr at 100%", func(m *InitializeMarket) { m.InitialMarginRatio = 10_000 }, errors.ErrInvalidMarginRatio},
		{"zero leverage", func(m *InitializeMarket) { m.MaxLeverage = 0 }, errors.ErrInvalidLeverage},
		{"zero liquidation fee", func(m *InitializeMarket) { m.LiquidationFeeRatio = 0 }, errors.ErrInvalidParameter},
		{"trading fee at 100%", func(m *InitializeMarket) { m.TradingFeeRatio = 10_000 }, errors.ErrInvalidParameter},
		{"empty reserve", func(m *InitializeMarket) { m.BaseReserve = 0 }, errors.ErrInvalidAMMState},
		{"funding rate too high", func(m *InitializeMarket) { m.FundingRate = 1_000_000 }, errors.ErrInvalidFundingRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := defaultMarket()
			tt.mutate(&in)
			f.fail(in, tt.want)
			assert.Empty(t, f.e.Symbols())
		})
	}
}

func TestInitializeMarket(t *testing.T) {
	f := newFixture(t)
	r := f.apply(defaultMarket())

	require.Len(t, r.Events, 1)
	assert.Equal(t, EventMarketInitialized, r.Events[0].Type)
	assert.Equal(t, uint64(1_000_000), r.Market.AMM.LastPrice)
	assert.True(t, r.Market.IsActive)
	assert.Equal(t, f.now.Unix(), r.Market.LastFundingTime)

	f.fail(defaultMarket(), errors.ErrMarketAlreadyExists)
	f.fail(PauseMarket{Market: "ETH-PERP", Authority: admin}, errors.ErrMarketNotFound)
}

func TestPauseResume(t *testing.T) {
	f := newFixture(t)
	f.setup()

	f.fail(PauseMarket{Market: testMarket, Authority: alice}, errors.ErrUnauthorized)
	f.fail(ResumeMarket{Market: testMarket, Authority: admin}, errors.ErrMarketAlreadyActive)
	f.apply(PauseMarket{Market: testMarket, Authority: admin})
	f.fail(PauseMarket{Market: testMarket, Authority: admin}, errors.ErrMarketAlreadyPaused)
	f.apply(ResumeMarket{Market: testMarket, Authority: admin})
	assert.True(t, f.market().IsActive)
}

func TestPausedMarketRejectsTrading(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)
	f.setPrice(800_000)
	f.apply(PauseMarket{Market: testMarket, Authority: admin})

	f.fail(OpenPosition{Market: testMarket, Trader: bob, Side: SideShort, Size: 50_000, Leverage: 5}, errors.ErrMarketInactive)
	f.fail(DepositCollateral{Market: testMarket, Owner: bob, Amount: 1_000}, errors.ErrMarketInactive)
	f.fail(WithdrawCollateral{Market: testMarket, Owner: bob, Amount: 1_000}, errors.ErrMarketInactive)
	f.fail(LiquidatePosition{Market: testMarket, Liquidator: keeper, PositionID: p.ID}, errors.ErrMarketInactive)
}

func TestUpdateMarketParams(t *testing.T) {
	f := newFixture(t)
	f.setup()

	mmr := uint64(2000)
	f.fail(UpdateMarketParams{Market: testMarket, Authority: admin, MaintenanceMarginRatio: &mmr}, errors.ErrInvalidMarginRatio)
	f.fail(UpdateMarketParams{Market: testMarket, Authority: bob, MaintenanceMarginRatio: &mmr}, errors.ErrUnauthorized)

	lev := uint64(20)
	imr := uint64(500)
	r := f.apply(UpdateMarketParams{Market: testMarket, Authority: admin, MaxLeverage: &lev, InitialMarginRatio: &imr})
	assert.Equal(t, uint64(20), r.Market.MaxLeverage)
	assert.Equal(t, uint64(500), r.Market.InitialMarginRatio)
	assert.Equal(t, uint64(500), r.Market.MaintenanceMarginRatio)
	require.Len(t, r.Events, 1)
	assert.Equal(t, EventMarketParamsUpdated, r.Events[0].Type)
}

func TestDepositWithdraw(t *testing.T) {
	f := newFixture(t)
	f.apply(defaultMarket())
	f.apply(CreateMarginAccount{Market: testMarket, Owner: alice, MarginType: MarginIsolated})
	f.fail(CreateMarginAccount{Market: testMarket, Owner: alice, MarginType: MarginCross}, errors.ErrMarginAccountExists)

	f.apply(DepositCollateral{Market: testMarket, Owner: alice, Amount: 50_000_000})
	assert.Equal(t, uint64(50_000_000), f.account(alice).Collateral)

	r := f.apply(WithdrawCollateral{Market: testMarket, Owner: alice, Amount: 10_000_000})
	assert.Equal(t, uint64(40_000_000), r.Accounts[0].Collateral)
	require.Len(t, r.Events, 1)
	assert.Equal(t, EventCollateralWithdrawn, r.Events[0].Type)

	f.fail(DepositCollateral{Market: testMarket, Owner: alice, Amount: 0}, errors.ErrDepositTooSmall)
	f.fail(WithdrawCollateral{Market: testMarket, Owner: alice, Amount: 0}, errors.ErrWithdrawalTooSmall)
	f.fail(WithdrawCollateral{Market: testMarket, Owner: alice, Amount: 40_000_001}, errors.ErrInsufficientCollateral)
	f.fail(DepositCollateral{Market: testMarket, Owner: bob, Amount: 1}, errors.ErrMarginAccountNotFound)
}

func TestWithdrawLockedMargin(t *testing.T) {
	f := newFixture(t)
	f.setup()
	f.open(alice, SideLong, 50_000, 5)

	a := f.account(alice)
	f.fail(WithdrawCollateral{Market: testMarket, Owner: alice, Amount: a.Available() + 1}, errors.ErrInsufficientCollateral)
	f.apply(WithdrawCollateral{Market: testMarket, Owner: alice, Amount: a.Available()})
	after := f.account(alice)
	assert.Zero(t, after.Available())
}

func TestRefundSkipsDepositChecks(t *testing.T) {
	f := newFixture(t)
	policy := DefaultPolicy()
	policy.MinDeposit = 1_000
	f.e = New(policy, WithClock(f.clock))
	f.setup()
	f.apply(PauseMarket{Market: testMarket, Authority: admin})

	f.fail(DepositCollateral{Market: testMarket, Owner: alice, Amount: 500}, errors.ErrMarketInactive)
	f.apply(ResumeMarket{Market: testMarket, Authority: admin})
	f.fail(DepositCollateral{Market: testMarket, Owner: alice, Amount: 500}, errors.ErrDepositTooSmall)
	f.apply(PauseMarket{Market: testMarket, Authority: admin})

	r := f.apply(DepositCollateral{Market: testMarket, Owner: alice, Amount: 500, Refund: true})
	assert.Equal(t, uint64(1_000_500), r.Accounts[0].Collateral)
	assert.Equal(t, EventCollateralDeposited, r.Events[0].Type)
	f.fail(DepositCollateral{Market: testMarket, Owner: alice, Amount: 0, Refund: true}, errors.ErrDepositTooSmall)
}

func TestCrossWithdrawalBelowMaintenance(t *testing.T) {
	f := newFixture(t)
	f.setup()
	carol := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	f.apply(CreateMarginAccount{Market: testMarket, Owner: carol, MarginType: MarginCross})
	f.apply(DepositCollateral{Market: testMarket, Owner: carol, Amount: 20_000})
	f.open(carol, SideLong, 50_000, 5)

	// Margin 10,000 plus 9,950 free. At 0.82 the position alone is under
	// maintenance and only the free collateral keeps it healthy.
	f.setPrice(820_000)
	f.fail(WithdrawCollateral{Market: testMarket, Owner: carol, Amount: 9_000}, errors.ErrWithdrawalBelowMaintenanceMargin)
	f.apply(WithdrawCollateral{Market: testMarket, Owner: carol, Amount: 1_000})
}

func TestOpenPositionValidation(t *testing.T) {
	tests := []struct {
		name string
		in   OpenPosition
		want error
	}{
		{"zero size", OpenPosition{Side: SideLong, Size: 0, Leverage: 5}, errors.ErrInvalidOrderSize},
		{"zero leverage", OpenPosition{Side: SideLong, Size: 50_000, Leverage: 0}, errors.ErrInvalidLeverage},
		{"leverage above max", OpenPosition{Side: SideLong, Size: 50_000, Leverage: 11}, errors.ErrLeverageTooHigh},
		{"bad side", OpenPosition{Side: 0, Size: 50_000, Leverage: 5}, errors.ErrInvalidSide},
		{"not enough margin", OpenPosition{Side: SideLong, Size: 10_000_000, Leverage: 5}, errors.ErrInsufficientMargin},
		{"size exhausts liquidity", OpenPosition{Side: SideLong, Size: 1_000_000_000_000, Leverage: 5}, errors.ErrInsufficientLiquidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.setup()
			before, err := f.e.Snapshot(testMarket)
			require.NoError(t, err)

			in := tt.in
			in.Market = testMarket
			in.Trader = alice
			f.fail(in, tt.want)

			after, err := f.e.Snapshot(testMarket)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestInitialMarginRatioCapsLeverage(t *testing.T) {
	f := newFixture(t)
	in := defaultMarket()
	in.InitialMarginRatio = 2500
	f.apply(in)
	f.apply(InitializeOracle{Market: testMarket, Authority: admin, Price: 1_000_000})
	f.apply(CreateMarginAccount{Market: testMarket, Owner: alice, MarginType: MarginIsolated})
	f.apply(DepositCollateral{Market: testMarket, Owner: alice, Amount: 1_000_000})

	f.fail(OpenPosition{Market: testMarket, Trader: alice, Side: SideLong, Size: 50_000, Leverage: 5}, errors.ErrInsufficientMargin)
	f.open(alice, SideLong, 50_000, 4)
}

func TestOpenPosition(t *testing.T) {
	f := newFixture(t)
	f.setup()

	r := f.apply(OpenPosition{Market: testMarket, Trader: alice, Side: SideLong, Size: 50_000, Leverage: 5})
	require.Len(t, r.Positions, 1)
	p := r.Positions[0]
	assert.Equal(t, testMarket+"-P1", p.ID)
	assert.Equal(t, uint64(1_000_000), p.EntryPrice)
	assert.Equal(t, uint64(10_000), p.Collateral)
	assert.Equal(t, uint64(810_000), p.LiquidationPrice)
	assert.True(t, p.IsOpen())

	a := r.Accounts[0]
	assert.Equal(t, uint64(10_000), a.AllocatedMargin)
	assert.Equal(t, uint64(1_000_000-50), a.Collateral)
	assert.Equal(t, []string{p.ID}, a.Positions)
	assert.Equal(t, uint64(50), r.Market.FeePool)
	assert.Equal(t, uint64(50_000), r.Market.OpenInterestLong)

	require.Len(t, r.Events, 1)
	ev := r.Events[0].Payload.(*PositionOpenedEvent)
	assert.Equal(t, p.ID, ev.PositionID)
	assert.Equal(t, uint64(50), ev.Fee)
	f.assertMarginConserved()
}

func TestRoundTripRestoresReserves(t *testing.T) {
	tests := []struct {
		kind   PricingKind
		oracle int64
	}{
		{PricingConstantProduct, 1_000_000},
		// 50,000 * 100 / 10,000 of impact above 1.0.
		{PricingLinearImpact, 1_000_500},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			f := newFixture(t)
			in := defaultMarket()
			in.Pricing = tt.kind
			in.PriceImpactFactor = 100
			f.apply(in)
			f.apply(InitializeOracle{Market: testMarket, Authority: admin, Price: tt.oracle})
			f.apply(CreateMarginAccount{Market: testMarket, Owner: alice, MarginType: MarginIsolated})
			f.apply(DepositCollateral{Market: testMarket, Owner: alice, Amount: 1_000_000})

			before := f.market().AMM
			p := f.open(alice, SideLong, 50_000, 5)
			assert.Equal(t, uint64(tt.oracle), p.EntryPrice)
			r := f.apply(ClosePosition{Market: testMarket, Trader: alice, PositionID: p.ID})

			after := r.Market.AMM
			assert.Equal(t, before.BaseReserve, after.BaseReserve)
			assert.Equal(t, before.QuoteReserve, after.QuoteReserve)
			assert.Equal(t, before.LastPrice, after.LastPrice)

			// Only fees leave the account.
			m := r.Market
			a := f.account(alice)
			assert.Equal(t, uint64(1_000_000)-m.FeePool, a.Collateral)
			assert.Zero(t, a.AllocatedMargin)
			assert.Empty(t, a.Positions)
			f.assertMarginConserved()
		})
	}
}

// The execution price is the post-trade spot, so a round trip at an
// unchanged oracle costs the trader the price impact on top of fees.
func TestRoundTripPaysPriceImpact(t *testing.T) {
	f := newFixture(t)
	in := defaultMarket()
	in.BaseReserve = 1_000_000_000
	in.QuoteReserve = 1_000_000_000
	f.apply(in)
	f.apply(InitializeOracle{Market: testMarket, Authority: admin, Price: 1_000_000})
	f.apply(CreateMarginAccount{Market: testMarket, Owner: alice, MarginType: MarginIsolated})
	f.apply(DepositCollateral{Market: testMarket, Owner: alice, Amount: 5_000_000})

	p := f.open(alice, SideLong, 10_000_000, 5)
	// quote = floor(1e18 / 990e6) = 1_010_101_010, spot = 1.020304
	assert.Equal(t, uint64(1_020_304), p.EntryPrice)
	assert.Equal(t, uint64(2_040_608), p.Collateral)

	r := f.apply(ClosePosition{Market: testMarket, Trader: alice, PositionID: p.ID})
	require.Len(t, r.Positions, 1)
	assert.Equal(t, int64(-203_040), r.Positions[0].RealizedPnL)

	m := r.Market
	assert.Equal(t, uint64(1_000_000_000), m.AMM.BaseReserve)
	assert.Equal(t, uint64(1_000_000_000), m.AMM.QuoteReserve)
	// 10_203 on open, 10_000 on close.
	assert.Equal(t, uint64(20_203), m.FeePool)
	assert.Equal(t, uint64(5_000_000-20_203-203_040), f.account(alice).Collateral)
	f.assertMarginConserved()
}

func TestProfitLongScenario(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)
	f.setPrice(1_200_000)

	before := f.account(alice).Collateral
	r := f.apply(ClosePosition{Market: testMarket, Trader: alice, PositionID: p.ID})

	a := f.account(alice)
	assert.Greater(t, a.Collateral, before)
	assert.Equal(t, before+10_000-60, a.Collateral)
	assert.Zero(t, a.AllocatedMargin)
	assert.Empty(t, a.Positions)

	closed := r.Events[len(r.Events)-1].Payload.(*PositionClosedEvent)
	assert.Equal(t, int64(10_000), closed.RealizedPnL)
	assert.Equal(t, uint64(1_200_000), closed.ExitPrice)

	pos, err := f.e.Position(testMarket, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PositionClosed, pos.Status)
	f.fail(ClosePosition{Market: testMarket, Trader: alice, PositionID: p.ID}, errors.ErrPositionClosed)
}

func TestCloseLossCappedIsolated(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)
	bobBefore := f.account(bob).Collateral

	// A 30% drop loses 15,000 against 10,000 of margin.
	f.setPrice(700_000)
	r := f.apply(ClosePosition{Market: testMarket, Trader: alice, PositionID: p.ID})

	closed := r.Events[len(r.Events)-1].Payload.(*PositionClosedEvent)
	assert.Equal(t, int64(-10_000), closed.RealizedPnL)
	assert.Equal(t, uint64(5_000), closed.Shortfall)
	assert.Equal(t, uint64(5_000), r.Market.BadDebt)
	assert.Equal(t, bobBefore, f.account(bob).Collateral)
	f.assertMarginConserved()
}

func TestCloseLossCappedCross(t *testing.T) {
	f := newFixture(t)
	f.setup()
	carol := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	f.apply(CreateMarginAccount{Market: testMarket, Owner: carol, MarginType: MarginCross})
	f.apply(DepositCollateral{Market: testMarket, Owner: carol, Amount: 12_050})
	p := f.open(carol, SideLong, 50_000, 5)

	// Free collateral of 2,000 absorbs part of the 15,000 loss.
	f.setPrice(700_000)
	r := f.apply(ClosePosition{Market: testMarket, Trader: carol, PositionID: p.ID})
	closed := r.Events[len(r.Events)-1].Payload.(*PositionClosedEvent)
	assert.Equal(t, int64(-12_000), closed.RealizedPnL)
	assert.Equal(t, uint64(3_000), closed.Shortfall)
	assert.Zero(t, f.account(carol).Collateral)
}

func TestLiquidation(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)
	bobBefore := f.account(bob).Collateral

	f.fail(LiquidatePosition{Market: testMarket, Liquidator: keeper, PositionID: p.ID}, errors.ErrPositionNotLiquidatable)

	f.setPrice(820_000)
	candidates, err := f.e.LiquidationCandidates(testMarket)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, p.ID, candidates[0].Position.ID)

	aliceBefore := f.account(alice).Collateral
	r := f.apply(LiquidatePosition{Market: testMarket, Liquidator: keeper, PositionID: p.ID})

	ev := r.Events[len(r.Events)-1].Payload.(*PositionLiquidatedEvent)
	assert.Equal(t, uint64(500), ev.LiquidationFee)
	assert.Equal(t, ev.LiquidationFee, ev.LiquidatorFee+ev.InsuranceFundFee)
	assert.Equal(t, uint64(250), ev.LiquidatorFee)
	assert.Zero(t, ev.Shortfall)

	assert.Equal(t, aliceBefore-9_000-500, f.account(alice).Collateral)
	assert.Equal(t, uint64(250), f.account(keeper).Collateral)
	assert.Equal(t, MarginIsolated, f.account(keeper).MarginType)
	assert.Equal(t, uint64(250), r.Market.InsuranceFund)
	assert.Equal(t, bobBefore, f.account(bob).Collateral)

	pos, err := f.e.Position(testMarket, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PositionLiquidated, pos.Status)
	f.fail(LiquidatePosition{Market: testMarket, Liquidator: keeper, PositionID: p.ID}, errors.ErrPositionClosed)
	f.assertMarginConserved()
}

func TestLiquidationShortfallHitsInsuranceFund(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)
	bobBefore := f.account(bob).Collateral

	f.setPrice(700_000)
	r := f.apply(LiquidatePosition{Market: testMarket, Liquidator: keeper, PositionID: p.ID})

	ev := r.Events[len(r.Events)-1].Payload.(*PositionLiquidatedEvent)
	// Loss 15,000 plus fee 500 against 10,000 of margin.
	assert.Equal(t, uint64(5_500), ev.Shortfall)
	assert.Zero(t, r.Market.InsuranceFund)
	assert.Equal(t, uint64(5_250), r.Market.BadDebt)
	assert.Equal(t, bobBefore, f.account(bob).Collateral)
	assert.Equal(t, uint64(250), f.account(keeper).Collateral)
}

func TestSelfLiquidationRejected(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)
	f.setPrice(820_000)
	f.fail(LiquidatePosition{Market: testMarket, Liquidator: alice, PositionID: p.ID}, errors.ErrUnauthorized)
}

func TestOracleGate(t *testing.T) {
	f := newFixture(t)
	f.apply(defaultMarket())
	f.apply(CreateMarginAccount{Market: testMarket, Owner: alice, MarginType: MarginIsolated})
	f.apply(DepositCollateral{Market: testMarket, Owner: alice, Amount: 1_000_000})

	open := OpenPosition{Market: testMarket, Trader: alice, Side: SideLong, Size: 50_000, Leverage: 5}
	f.fail(open, errors.ErrInvalidOracleAccount)

	f.fail(InitializeOracle{Market: testMarket, Authority: bob, Price: 1_000_000}, errors.ErrUnauthorized)
	f.apply(InitializeOracle{Market: testMarket, Authority: admin, FeedAuthority: keeper, Price: 1_000_000})
	f.fail(InitializeOracle{Market: testMarket, Authority: admin, Price: 1_000_000}, errors.ErrOracleAlreadyExists)
	f.fail(UpdateOraclePrice{Market: testMarket, Authority: admin, Price: 1_000_000}, errors.ErrUnauthorized)

	f.advance(61 * time.Second)
	f.fail(open, errors.ErrStaleOraclePrice)

	f.apply(UpdateOraclePrice{Market: testMarket, Authority: keeper, Price: 1_000_000, Confidence: 20_000})
	f.fail(open, errors.ErrPriceConfidenceTooLow)

	f.apply(UpdateOraclePrice{Market: testMarket, Authority: keeper, Price: 1_000_000, Confidence: 5_000})
	f.open(alice, SideLong, 50_000, 5)
}

func TestFundingPayments(t *testing.T) {
	f := newFixture(t)
	f.setup()
	long := f.open(alice, SideLong, 50_000, 5)
	short := f.open(bob, SideShort, 50_000, 5)

	f.fail(UpdateFundingPayments{Market: testMarket}, errors.ErrFundingNotDue)
	f.fail(UpdateFundingRate{Market: testMarket, Authority: bob, Rate: 100}, errors.ErrUnauthorized)
	f.fail(UpdateFundingRate{Market: testMarket, Authority: admin, Rate: 20_000}, errors.ErrInvalidFundingRate)
	f.apply(UpdateFundingRate{Market: testMarket, Authority: admin, Rate: 100})

	aliceBefore := f.account(alice).Collateral
	bobBefore := f.account(bob).Collateral
	f.advance(2*time.Hour + 10*time.Minute)
	r := f.apply(UpdateFundingPayments{Market: testMarket})

	assert.Equal(t, int64(200), r.Market.CumulativeFunding)
	assert.Equal(t, f.now.Add(-10*time.Minute).Unix(), r.Market.LastFundingTime)

	p, err := f.e.Position(testMarket, long.ID)
	require.NoError(t, err)
	assert.Equal(t, long.Collateral-10, p.Collateral)
	assert.Equal(t, int64(-10), p.RealizedPnL)
	assert.Equal(t, int64(200), p.EntryCumulativeFunding)

	s, err := f.e.Position(testMarket, short.ID)
	require.NoError(t, err)
	assert.Equal(t, short.Collateral+10, s.Collateral)

	assert.Equal(t, aliceBefore-10, f.account(alice).Collateral)
	assert.Equal(t, bobBefore+10, f.account(bob).Collateral)

	last := r.Events[len(r.Events)-1]
	assert.Equal(t, EventFundingUpdated, last.Type)
	assert.Equal(t, 2, last.Payload.(*FundingUpdatedEvent).PositionsSettled)
	f.assertMarginConserved()

	f.fail(UpdateFundingPayments{Market: testMarket}, errors.ErrFundingNotDue)
}

func TestLimitOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	f.setup()

	r := f.apply(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderLimit, Side: SideLong, Size: 50_000, Leverage: 5, Price: 990_000})
	require.Len(t, r.Orders, 1)
	o := r.Orders[0]
	assert.Equal(t, OrderActive, o.Status)
	assert.Zero(t, r.Accounts[0].AllocatedMargin)

	triggerable, err := f.e.TriggerableOrders(testMarket)
	require.NoError(t, err)
	assert.Empty(t, triggerable)
	f.fail(FillOrder{Market: testMarket, Keeper: keeper, OrderID: o.ID}, errors.ErrOrderNotTriggered)

	f.setPrice(990_000)
	r = f.apply(FillOrder{Market: testMarket, Keeper: keeper, OrderID: o.ID})
	require.Len(t, r.Positions, 1)
	filled, err := f.e.Order(testMarket, o.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderFilled, filled.Status)
	assert.Equal(t, r.Positions[0].ID, filled.PositionID)
	assert.Empty(t, f.account(alice).Orders)

	f.fail(FillOrder{Market: testMarket, Keeper: keeper, OrderID: o.ID}, errors.ErrOrderNotActive)
	f.assertMarginConserved()
}

func TestMarketOrder(t *testing.T) {
	f := newFixture(t)
	f.setup()
	r := f.apply(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderMarket, Side: SideLong, Size: 50_000, Leverage: 2})

	types := make([]EventType, 0, len(r.Events))
	for _, ev := range r.Events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventOrderPlaced, EventPositionOpened, EventOrderFilled}, types)
	require.Len(t, r.Orders, 1)
	assert.Equal(t, OrderFilled, r.Orders[0].Status)
	assert.Equal(t, uint64(25_000), r.Positions[0].Collateral)
}

func TestStopLossAndTakeProfit(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)

	sl := f.apply(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderStopLoss, PositionID: p.ID, Price: 900_000}).Orders[0]
	tp := f.apply(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderTakeProfit, PositionID: p.ID, Price: 1_100_000}).Orders[0]
	assert.Equal(t, SideShort, sl.Side)
	assert.Equal(t, p.Size, sl.Size)
	assert.Len(t, f.account(alice).Orders, 2)

	f.fail(PlaceOrder{Market: testMarket, Trader: bob, Type: OrderStopLoss, PositionID: p.ID, Price: 900_000}, errors.ErrUnauthorized)
	f.fail(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderStopLoss, PositionID: p.ID, Side: SideLong, Price: 900_000}, errors.ErrInvalidSide)
	f.fail(FillOrder{Market: testMarket, Keeper: keeper, OrderID: tp.ID}, errors.ErrOrderNotTriggered)

	f.setPrice(890_000)
	r := f.apply(FillOrder{Market: testMarket, Keeper: keeper, OrderID: sl.ID})

	pos, err := f.e.Position(testMarket, p.ID)
	require.NoError(t, err)
	assert.Equal(t, PositionClosed, pos.Status)

	cancelled, err := f.e.Order(testMarket, tp.ID)
	require.NoError(t, err)
	assert.Equal(t, OrderCancelled, cancelled.Status)
	assert.Empty(t, f.account(alice).Orders)

	last := r.Events[len(r.Events)-1]
	assert.Equal(t, EventOrderFilled, last.Type)
	assert.Equal(t, keeper, last.Payload.(*OrderEvent).Keeper)
	f.assertMarginConserved()
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	f.setup()
	o := f.apply(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderLimit, Side: SideShort, Size: 50_000, Leverage: 5, Price: 1_100_000}).Orders[0]

	f.fail(CancelOrder{Market: testMarket, Trader: alice, OrderID: "missing"}, errors.ErrOrderNotFound)
	f.fail(CancelOrder{Market: testMarket, Trader: bob, OrderID: o.ID}, errors.ErrUnauthorized)
	r := f.apply(CancelOrder{Market: testMarket, Trader: alice, OrderID: o.ID})
	assert.Equal(t, EventOrderCancelled, r.Events[0].Type)
	f.fail(CancelOrder{Market: testMarket, Trader: alice, OrderID: o.ID}, errors.ErrOrderNotActive)

	f.fail(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderLimit, Side: SideShort, Size: 50_000, Leverage: 5}, errors.ErrInvalidOrderPrice)
	f.fail(PlaceOrder{Market: testMarket, Trader: alice, Type: 0, Side: SideShort, Size: 50_000, Leverage: 5}, errors.ErrInvalidOrderType)
}

func TestAdjustPositionMargin(t *testing.T) {
	f := newFixture(t)
	f.setup()
	p := f.open(alice, SideLong, 50_000, 5)

	r := f.apply(AdjustPositionMargin{Market: testMarket, Trader: alice, PositionID: p.ID, Delta: 5_000})
	adj := r.Positions[0]
	assert.Equal(t, uint64(15_000), adj.Collateral)
	assert.Less(t, adj.LiquidationPrice, p.LiquidationPrice)
	assert.Equal(t, EventMarginAdjusted, r.Events[0].Type)

	// The floor is 10% of a 50,000 notional.
	f.fail(AdjustPositionMargin{Market: testMarket, Trader: alice, PositionID: p.ID, Delta: -10_001}, errors.ErrInsufficientMargin)
	f.apply(AdjustPositionMargin{Market: testMarket, Trader: alice, PositionID: p.ID, Delta: -5_000})
	f.fail(AdjustPositionMargin{Market: testMarket, Trader: alice, PositionID: p.ID, Delta: 2_000_000}, errors.ErrInsufficientCollateral)
	f.fail(AdjustPositionMargin{Market: testMarket, Trader: bob, PositionID: p.ID, Delta: 1}, errors.ErrUnauthorized)
	f.fail(AdjustPositionMargin{Market: testMarket, Trader: alice, PositionID: p.ID, Delta: 0}, errors.ErrInvalidParameter)
	f.assertMarginConserved()
}

func TestFailedIntentLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	f.setup()
	f.open(alice, SideLong, 50_000, 5)
	before, err := f.e.Snapshot(testMarket)
	require.NoError(t, err)

	f.fail(OpenPosition{Market: testMarket, Trader: bob, Side: SideShort, Size: 100_000_000, Leverage: 5}, errors.ErrInsufficientMargin)
	f.fail(WithdrawCollateral{Market: testMarket, Owner: alice, Amount: 2_000_000}, errors.ErrInsufficientCollateral)

	after, err := f.e.Snapshot(testMarket)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestApplyHonoursContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.e.Apply(ctx, defaultMarket())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.e.Symbols())
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t)
	f.setup()
	f.open(alice, SideLong, 50_000, 5)
	f.apply(PlaceOrder{Market: testMarket, Trader: bob, Type: OrderLimit, Side: SideShort, Size: 10_000, Leverage: 2, Price: 1_050_000})

	snap, err := f.e.Snapshot(testMarket)
	require.NoError(t, err)

	restored := New(DefaultPolicy(), WithClock(f.clock))
	require.NoError(t, restored.Restore(snap))
	require.ErrorIs(t, restored.Restore(snap), errors.ErrMarketAlreadyExists)

	again, err := restored.Snapshot(testMarket)
	require.NoError(t, err)
	assert.Equal(t, snap, again)

	// Sequences continue from the snapshot.
	r, err := restored.Apply(context.Background(), OpenPosition{Market: testMarket, Trader: bob, Side: SideShort, Size: 50_000, Leverage: 5})
	require.NoError(t, err)
	assert.Equal(t, testMarket+"-P2", r.Positions[0].ID)
}

func TestEventSequence(t *testing.T) {
	f := newFixture(t)
	f.setup()
	r := f.apply(PlaceOrder{Market: testMarket, Trader: alice, Type: OrderMarket, Side: SideLong, Size: 50_000, Leverage: 5})

	prev := uint64(0)
	for _, ev := range r.Events {
		assert.Greater(t, ev.Seq, prev)
		assert.Equal(t, testMarket, ev.Market)
		prev = ev.Seq
	}
	assert.Equal(t, prev, r.Market.EventSeq)
}

func TestConcurrentMarkets(t *testing.T) {
	f := newFixture(t)
	symbols := []string{"BTC-PERP", "ETH-PERP", "SOL-PERP"}
	for _, s := range symbols {
		in := defaultMarket()
		in.Market = s
		f.apply(in)
		f.apply(CreateMarginAccount{Market: s, Owner: alice, MarginType: MarginCross})
	}

	var wg sync.WaitGroup
	for _, s := range symbols {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				_, err := f.e.Apply(context.Background(), DepositCollateral{Market: symbol, Owner: alice, Amount: 10})
				assert.NoError(t, err)
			}(s)
		}
	}
	wg.Wait()

	for _, s := range symbols {
		a, err := f.e.Account(s, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), a.Collateral)
		m, err := f.e.Market(s)
		require.NoError(t, err)
		assert.Equal(t, uint64(52), m.EventSeq)
	}
}
