package engine

import (
	"github.com/holiman/uint256"

	"github.com/vammperp/backend/internal/pkg/errors"
)

// Notional returns size*price/Scale.
func Notional(size, price uint64) (uint64, error) {
	return mulDiv(size, price, Scale)
}

// RequiredMargin returns the collateral that backs a position of size opened
// at price with the given leverage.
func RequiredMargin(size, price, leverage uint64) (uint64, error) {
	if leverage == 0 {
		return 0, errors.ErrInvalidLeverage
	}
	denom, err := mulU64(Scale, leverage)
	if err != nil {
		return 0, err
	}
	return mulDiv(size, price, denom)
}

// FeeOf returns amount*bps/10000.
func FeeOf(amount, bps uint64) (uint64, error) {
	return mulDiv(amount, bps, BasisPoints)
}

// UnrealizedPnL returns the profit of a position marked at price, rounded
// toward zero.
func UnrealizedPnL(side Side, entry, price, size uint64) (int64, error) {
	var diff uint64
	var loss bool
	if price >= entry {
		diff = price - entry
		loss = side == SideShort
	} else {
		diff = entry - price
		loss = side == SideLong
	}
	mag, err := mulDiv(diff, size, Scale)
	if err != nil {
		return 0, err
	}
	return signed(mag, loss)
}

// Undercollateralized reports whether equity*10000 < notional*mmr.
func Undercollateralized(equity int64, notional, mmr uint64) bool {
	if equity <= 0 {
		return notional > 0 && mmr > 0
	}
	return lessProduct(uint64(equity), BasisPoints, notional, mmr)
}

// MarginRatioBps returns equity*10000/notional, saturating at the int64 range.
func MarginRatioBps(equity int64, notional uint64) int64 {
	if notional == 0 {
		return 0
	}
	x := new(uint256.Int).Mul(uint256.NewInt(abs(equity)), uint256.NewInt(BasisPoints))
	x.Div(x, uint256.NewInt(notional))
	mag := uint64(1<<63 - 1)
	if x.IsUint64() && x.Uint64() < mag {
		mag = x.Uint64()
	}
	if equity < 0 {
		return -int64(mag)
	}
	return int64(mag)
}

// FundingPayment returns the signed amount credited to a position for the
// cumulative funding accrued since entryCumulative. A positive cumulative
// delta means longs pay shorts.
func FundingPayment(side Side, size uint64, cumulative, entryCumulative int64) (int64, error) {
	delta, err := subI64(cumulative, entryCumulative)
	if err != nil {
		return 0, err
	}
	if delta == 0 {
		return 0, nil
	}
	mag, err := mulDiv(abs(delta), size, Scale)
	if err != nil {
		return 0, err
	}
	longPays := delta > 0
	return signed(mag, (side == SideLong) == longPays)
}

// LiquidationPrice returns the mark price at which a position's own margin
// falls to the maintenance requirement. The result is floored at zero.
func LiquidationPrice(side Side, entry, collateral, size, mmr uint64) (uint64, error) {
	if size == 0 {
		return 0, errors.ErrInvalidPosition
	}
	perUnit, err := mulDiv(collateral, Scale, size)
	if err != nil {
		return 0, err
	}
	if mmr >= BasisPoints {
		return 0, errors.ErrInvalidMarginRatio
	}
	buffer, err := mulDiv(perUnit, BasisPoints-mmr, BasisPoints)
	if err != nil {
		return 0, err
	}
	if side == SideLong {
		if buffer >= entry {
			return 0, nil
		}
		return entry - buffer, nil
	}
	return addU64(entry, buffer)
}
