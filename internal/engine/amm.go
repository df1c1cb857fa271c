package engine

import (
	"github.com/holiman/uint256"

	"github.com/vammperp/backend/internal/pkg/errors"
)

// Fill is the outcome of executing a trade against an AMM.
type Fill struct {
	Price uint64
	AMM   AMM
}

// PricingModel prices trades against the virtual liquidity of a market.
// Execute never mutates its input; the post-trade state is returned in Fill.
type PricingModel interface {
	Kind() PricingKind
	SpotPrice(amm AMM) (uint64, error)
	Execute(amm AMM, side Side, size uint64) (Fill, error)
}

// ModelFor returns the pricing model for kind.
func ModelFor(kind PricingKind) (PricingModel, error) {
	switch kind {
	case PricingConstantProduct:
		return ConstantProduct{}, nil
	case PricingLinearImpact:
		return LinearImpact{}, nil
	}
	return nil, errors.ErrInvalidAMMState
}

// newAMM builds the initial AMM state for a market.
func newAMM(kind PricingKind, base, quote, impactFactor uint64) (AMM, error) {
	if base == 0 || quote == 0 {
		return AMM{}, errors.ErrInvalidAMMState
	}
	amm := AMM{
		Kind:              kind,
		BaseReserve:       base,
		QuoteReserve:      quote,
		PriceImpactFactor: impactFactor,
	}
	amm.Invariant.Mul(uint256.NewInt(base), uint256.NewInt(quote))
	price, err := mulDiv(quote, Scale, base)
	if err != nil {
		return AMM{}, err
	}
	if price == 0 {
		return AMM{}, errors.ErrInvalidAMMState
	}
	amm.LastPrice = price
	return amm, nil
}

// ConstantProduct keeps base*quote constant. The invariant is fixed at market
// creation and the quote reserve is always derived from it, so a trade
// followed by its reverse restores both reserves exactly.
type ConstantProduct struct{}

func (ConstantProduct) Kind() PricingKind { return PricingConstantProduct }

func (ConstantProduct) SpotPrice(amm AMM) (uint64, error) {
	if amm.BaseReserve == 0 {
		return 0, errors.ErrInvalidAMMState
	}
	return mulDiv(amm.QuoteReserve, Scale, amm.BaseReserve)
}

func (ConstantProduct) Execute(amm AMM, side Side, size uint64) (Fill, error) {
	if size == 0 {
		return Fill{}, errors.ErrInvalidOrderSize
	}
	if amm.BaseReserve == 0 || amm.QuoteReserve == 0 {
		return Fill{}, errors.ErrInvalidAMMState
	}
	if amm.Invariant.IsZero() {
		amm.Invariant.Mul(uint256.NewInt(amm.BaseReserve), uint256.NewInt(amm.QuoteReserve))
	}

	var newBase uint64
	switch side {
	case SideLong:
		if size >= amm.BaseReserve {
			return Fill{}, errors.ErrInsufficientLiquidity
		}
		newBase = amm.BaseReserve - size
	case SideShort:
		var err error
		if newBase, err = addU64(amm.BaseReserve, size); err != nil {
			return Fill{}, err
		}
	default:
		return Fill{}, errors.ErrInvalidSide
	}

	q := new(uint256.Int).Div(&amm.Invariant, uint256.NewInt(newBase))
	if !q.IsUint64() {
		return Fill{}, errors.ErrMathOverflow
	}
	newQuote := q.Uint64()
	if newQuote == 0 {
		return Fill{}, errors.ErrInsufficientLiquidity
	}
	price, err := mulDiv(newQuote, Scale, newBase)
	if err != nil {
		return Fill{}, err
	}
	if price == 0 {
		return Fill{}, errors.ErrInsufficientLiquidity
	}

	amm.BaseReserve = newBase
	amm.QuoteReserve = newQuote
	amm.LastPrice = price
	return Fill{Price: price, AMM: amm}, nil
}

// LinearImpact moves the last traded price by size*factor/10000 per trade.
// Reserves are left untouched.
type LinearImpact struct{}

func (LinearImpact) Kind() PricingKind { return PricingLinearImpact }

func (LinearImpact) SpotPrice(amm AMM) (uint64, error) {
	if amm.LastPrice == 0 {
		return 0, errors.ErrInvalidAMMState
	}
	return amm.LastPrice, nil
}

func (m LinearImpact) Execute(amm AMM, side Side, size uint64) (Fill, error) {
	if size == 0 {
		return Fill{}, errors.ErrInvalidOrderSize
	}
	base, err := m.SpotPrice(amm)
	if err != nil {
		return Fill{}, err
	}
	impact, err := mulDiv(size, amm.PriceImpactFactor, BasisPoints)
	if err != nil {
		return Fill{}, err
	}

	var price uint64
	switch side {
	case SideLong:
		if price, err = addU64(base, impact); err != nil {
			return Fill{}, err
		}
	case SideShort:
		if impact >= base {
			return Fill{}, errors.ErrInsufficientLiquidity
		}
		price = base - impact
	default:
		return Fill{}, errors.ErrInvalidSide
	}

	amm.LastPrice = price
	return Fill{Price: price, AMM: amm}, nil
}
