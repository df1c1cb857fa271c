package custody

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
)

var trader = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func TestLedgerRoundTrip(t *testing.T) {
	l := NewLedger(nil)
	require.NoError(t, l.Mint(trader, 1_000))
	ctx := context.Background()

	require.NoError(t, l.Deposit(ctx, "SOL-PERP", trader, 600))
	assert.Equal(t, uint64(400), l.Balance(trader))
	assert.Equal(t, uint64(600), l.VaultBalance("SOL-PERP"))

	require.NoError(t, l.Withdraw(ctx, "SOL-PERP", trader, 250))
	assert.Equal(t, uint64(650), l.Balance(trader))
	assert.Equal(t, uint64(350), l.VaultBalance("SOL-PERP"))
	assert.Zero(t, l.VaultBalance("ETH-PERP"))
}

func TestLedgerFailuresMoveNothing(t *testing.T) {
	l := NewLedger(nil)
	require.NoError(t, l.Mint(trader, 100))
	ctx := context.Background()

	err := l.Deposit(ctx, "SOL-PERP", trader, 101)
	assert.ErrorIs(t, err, errors.ErrTransferFailed)
	assert.Equal(t, uint64(100), l.Balance(trader))
	assert.Zero(t, l.VaultBalance("SOL-PERP"))

	err = l.Withdraw(ctx, "SOL-PERP", trader, 1)
	assert.ErrorIs(t, err, errors.ErrTransferFailed)
	assert.Equal(t, uint64(100), l.Balance(trader))

	assert.ErrorIs(t, l.Mint(trader, math.MaxUint64), errors.ErrMathOverflow)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, l.Deposit(cancelled, "SOL-PERP", trader, 1), context.Canceled)
}

func TestRestoreVaults(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	eng := engine.New(engine.DefaultPolicy(), engine.WithClock(func() time.Time { return now }))
	ctx := context.Background()
	admin := common.HexToAddress("0x00000000000000000000000000000000000000f1")

	_, err := eng.Apply(ctx, engine.InitializeMarket{
		Market:                 "SOL-PERP",
		Authority:              admin,
		Pricing:                engine.PricingConstantProduct,
		BaseReserve:            1_000_000_000_000,
		QuoteReserve:           1_000_000_000_000,
		FundingInterval:        3600,
		MaintenanceMarginRatio: 500,
		InitialMarginRatio:     1000,
		MaxLeverage:            10,
		LiquidationFeeRatio:    500,
		TradingFeeRatio:        10,
	})
	require.NoError(t, err)
	_, err = eng.Apply(ctx, engine.CreateMarginAccount{Market: "SOL-PERP", Owner: trader, MarginType: engine.MarginIsolated})
	require.NoError(t, err)
	_, err = eng.Apply(ctx, engine.DepositCollateral{Market: "SOL-PERP", Owner: trader, Amount: 7_500})
	require.NoError(t, err)

	l := NewLedger(nil)
	require.NoError(t, l.RestoreVaults(eng))
	assert.Equal(t, uint64(7_500), l.VaultBalance("SOL-PERP"))

	require.NoError(t, l.Withdraw(ctx, "SOL-PERP", trader, 7_500))
	assert.Equal(t, uint64(7_500), l.Balance(trader))
}
