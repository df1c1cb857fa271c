package engine

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vammperp/backend/internal/pkg/errors"
)

func TestRequiredMargin(t *testing.T) {
	tests := []struct {
		size, price, leverage uint64
		want                  uint64
	}{
		{50_000, 1_000_000, 5, 10_000},
		{50_000, 1_200_000, 10, 6_000},
		{1, 1_000_000, 5, 0},
		{math.MaxUint64, math.MaxUint64, 1, 0},
	}
	for _, tt := range tests {
		got, err := RequiredMargin(tt.size, tt.price, tt.leverage)
		if tt.size == math.MaxUint64 {
			assert.ErrorIs(t, err, errors.ErrMathOverflow)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := RequiredMargin(1, 1, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidLeverage)
}

func TestUnrealizedPnL(t *testing.T) {
	tests := []struct {
		name  string
		side  Side
		entry uint64
		price uint64
		want  int64
	}{
		{"long gain", SideLong, 1_000_000, 1_200_000, 10_000},
		{"long loss", SideLong, 1_000_000, 800_000, -10_000},
		{"short gain", SideShort, 1_000_000, 800_000, 10_000},
		{"short loss", SideShort, 1_000_000, 1_200_000, -10_000},
		{"flat", SideLong, 1_000_000, 1_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnrealizedPnL(tt.side, tt.entry, tt.price, 50_000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUndercollateralized(t *testing.T) {
	assert.False(t, Undercollateralized(10_000, 50_000, 500))
	assert.True(t, Undercollateralized(1_000, 41_000, 500))
	assert.False(t, Undercollateralized(2_050, 41_000, 500))
	assert.True(t, Undercollateralized(0, 41_000, 500))
	assert.True(t, Undercollateralized(-5, 41_000, 500))
	assert.False(t, Undercollateralized(-5, 0, 500))

	assert.Equal(t, int64(2000), MarginRatioBps(10_000, 50_000))
	assert.Equal(t, int64(-2000), MarginRatioBps(-10_000, 50_000))
	assert.Zero(t, MarginRatioBps(10_000, 0))
}

func TestFundingPayment(t *testing.T) {
	tests := []struct {
		name       string
		side       Side
		cum, entry int64
		want       int64
	}{
		{"long pays positive", SideLong, 200, 0, -10},
		{"short receives positive", SideShort, 200, 0, 10},
		{"long receives negative", SideLong, -200, 0, 10},
		{"short pays negative", SideShort, 0, 200, -10},
		{"nothing accrued", SideLong, 300, 300, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FundingPayment(tt.side, 50_000, tt.cum, tt.entry)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FundingPayment(SideLong, 1, math.MinInt64, 1)
	assert.ErrorIs(t, err, errors.ErrMathOverflow)
}

func TestLiquidationPrice(t *testing.T) {
	long, err := LiquidationPrice(SideLong, 1_000_000, 10_000, 50_000, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(810_000), long)

	short, err := LiquidationPrice(SideShort, 1_000_000, 10_000, 50_000, 500)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_190_000), short)

	floored, err := LiquidationPrice(SideLong, 1_000_000, 100_000, 50_000, 500)
	require.NoError(t, err)
	assert.Zero(t, floored)

	_, err = LiquidationPrice(SideLong, 1_000_000, 10_000, 0, 500)
	assert.ErrorIs(t, err, errors.ErrInvalidPosition)
}

func TestCheckedArithmetic(t *testing.T) {
	_, err := addU64(math.MaxUint64, 1)
	assert.ErrorIs(t, err, errors.ErrMathOverflow)
	_, err = subU64(1, 2)
	assert.ErrorIs(t, err, errors.ErrMathOverflow)
	_, err = mulU64(math.MaxUint64, 2)
	assert.ErrorIs(t, err, errors.ErrMathOverflow)
	_, err = addI64(math.MaxInt64, 1)
	assert.ErrorIs(t, err, errors.ErrMathOverflow)
	_, err = subI64(math.MinInt64, 1)
	assert.ErrorIs(t, err, errors.ErrMathOverflow)
	_, err = mulI64(math.MaxInt64, 2)
	assert.ErrorIs(t, err, errors.ErrMathOverflow)

	v, err := mulDiv(math.MaxUint64, 1_000_000, 1_000_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), v)
	assert.Equal(t, uint64(1<<63), abs(math.MinInt64))
}

func TestOraclePolicy(t *testing.T) {
	p := DefaultPolicy()
	now := int64(1_000)
	fresh := &Oracle{Price: 1_000_000, Confidence: 10_000, PublishTime: now - 60}

	price, err := p.markPrice(fresh, now)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), price)

	_, err = p.markPrice(nil, now)
	assert.ErrorIs(t, err, errors.ErrInvalidOracleAccount)
	_, err = p.markPrice(&Oracle{Price: -1, PublishTime: now}, now)
	assert.ErrorIs(t, err, errors.ErrInvalidOracleAccount)
	_, err = p.markPrice(&Oracle{Price: 1_000_000, PublishTime: now - 61}, now)
	assert.ErrorIs(t, err, errors.ErrStaleOraclePrice)
	_, err = p.markPrice(&Oracle{Price: 1_000_000, Confidence: 10_001, PublishTime: now}, now)
	assert.ErrorIs(t, err, errors.ErrPriceConfidenceTooLow)

	p.MaxOracleStaleness = 0
	p.MaxConfidenceBps = 0
	_, err = p.markPrice(&Oracle{Price: 1, Confidence: 1_000, PublishTime: now - int64(time.Hour/time.Second)}, now)
	assert.NoError(t, err)
}

func TestEventJSONRoundTrip(t *testing.T) {
	ev := Event{
		Seq:       7,
		Type:      EventPositionOpened,
		Market:    testMarket,
		Timestamp: 1_700_000_000,
		Payload: &PositionOpenedEvent{
			PositionID: "SOL-PERP-P1",
			Trader:     alice,
			Side:       SideLong,
			Size:       50_000,
			EntryPrice: 1_000_000,
			MarginType: MarginCross,
		},
	}
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"side":"long"`)

	var decoded Event
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, ev, decoded)

	require.Error(t, json.Unmarshal([]byte(`{"type":"Nope"}`), &decoded))
}

func TestAMMJSON(t *testing.T) {
	amm, err := newAMM(PricingConstantProduct, 1_000_000_000_000, 1_000_000_000_000, 0)
	require.NoError(t, err)
	b, err := json.Marshal(amm)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"invariant":"1000000000000000000000000"`)

	var decoded AMM
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, amm, decoded)
}
