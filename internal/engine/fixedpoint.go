package engine

import (
	"math"

	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"

	"github.com/vammperp/backend/internal/pkg/errors"
)

const (
	// Scale is the fixed-point denominator of prices and funding values.
	Scale uint64 = 1_000_000
	// BasisPoints is the denominator of every ratio parameter.
	BasisPoints uint64 = 10_000
)

func addU64(a, b uint64) (uint64, error) {
	r, overflow := ethmath.SafeAdd(a, b)
	if overflow {
		return 0, errors.ErrMathOverflow
	}
	return r, nil
}

func subU64(a, b uint64) (uint64, error) {
	r, overflow := ethmath.SafeSub(a, b)
	if overflow {
		return 0, errors.ErrMathOverflow
	}
	return r, nil
}

func mulU64(a, b uint64) (uint64, error) {
	r, overflow := ethmath.SafeMul(a, b)
	if overflow {
		return 0, errors.ErrMathOverflow
	}
	return r, nil
}

// mulDiv returns floor(a*b/c) using a 256-bit intermediate product.
func mulDiv(a, b, c uint64) (uint64, error) {
	if c == 0 {
		return 0, errors.ErrMathOverflow
	}
	x := new(uint256.Int).SetUint64(a)
	x.Mul(x, new(uint256.Int).SetUint64(b))
	x.Div(x, new(uint256.Int).SetUint64(c))
	if !x.IsUint64() {
		return 0, errors.ErrMathOverflow
	}
	return x.Uint64(), nil
}

// lessProduct reports whether a*b < c*d without overflow.
func lessProduct(a, b, c, d uint64) bool {
	l := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	r := new(uint256.Int).Mul(uint256.NewInt(c), uint256.NewInt(d))
	return l.Lt(r)
}

func addI64(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, errors.ErrMathOverflow
	}
	return a + b, nil
}

func subI64(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, errors.ErrMathOverflow
	}
	return a - b, nil
}

func mulI64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	r := a * b
	if r/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, errors.ErrMathOverflow
	}
	return r, nil
}

// signed converts a magnitude to an int64 with the given sign.
func signed(mag uint64, negative bool) (int64, error) {
	if mag > math.MaxInt64 {
		return 0, errors.ErrMathOverflow
	}
	if negative {
		return -int64(mag), nil
	}
	return int64(mag), nil
}

// abs returns |v| as an unsigned magnitude.
func abs(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

// applySigned adds a signed delta to an unsigned balance.
func applySigned(balance uint64, delta int64) (uint64, error) {
	if delta >= 0 {
		return addU64(balance, uint64(delta))
	}
	return subU64(balance, abs(delta))
}
