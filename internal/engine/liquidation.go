package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vammperp/backend/internal/pkg/errors"
)

func (e *Engine) liquidatePosition(t *tx, in LiquidatePosition) error {
	if err := t.requireActive(); err != nil {
		return err
	}
	p, err := t.position(in.PositionID)
	if err != nil {
		return err
	}
	if !p.IsOpen() {
		return errors.ErrPositionClosed
	}
	if in.Liquidator == p.Trader {
		return errors.ErrUnauthorized
	}
	a, err := t.account(p.Trader)
	if err != nil {
		return err
	}
	mark, err := e.policy.markPrice(t.oracle, t.now)
	if err != nil {
		return err
	}
	if _, err := e.settleFunding(t, p, a); err != nil {
		return err
	}
	unsafe, err := e.undercollateralized(t, p, a, mark)
	if err != nil {
		return err
	}
	if !unsafe {
		return errors.ErrPositionNotLiquidatable
	}

	pnl, err := UnrealizedPnL(p.Side, p.EntryPrice, mark, p.Size)
	if err != nil {
		return err
	}
	capacity, err := lossCapacity(p, a)
	if err != nil {
		return err
	}
	if _, err := e.reverseTrade(t, p); err != nil {
		return err
	}

	fee, err := FeeOf(p.Collateral, t.market.LiquidationFeeRatio)
	if err != nil {
		return err
	}
	liquidatorFee := fee / 2
	insuranceFee := fee - liquidatorFee

	// The trader owes the loss plus the fee, up to the loss capacity; the
	// rest is a shortfall for the insurance fund.
	realized := pnl
	if pnl < 0 && abs(pnl) > capacity {
		if realized, err = signed(capacity, true); err != nil {
			return err
		}
	}
	feeSigned, err := signed(fee, false)
	if err != nil {
		return err
	}
	charge, err := subI64(feeSigned, pnl)
	if err != nil {
		return err
	}
	if a.AllocatedMargin, err = subU64(a.AllocatedMargin, p.Collateral); err != nil {
		return err
	}
	var shortfall uint64
	if charge <= 0 {
		if a.Collateral, err = addU64(a.Collateral, abs(charge)); err != nil {
			return err
		}
	} else {
		paid := min(abs(charge), capacity)
		shortfall = abs(charge) - paid
		a.Collateral -= paid
	}

	if t.market.InsuranceFund, err = addU64(t.market.InsuranceFund, insuranceFee); err != nil {
		return err
	}
	if _, err := t.absorbShortfall(shortfall); err != nil {
		return err
	}
	if err := e.creditLiquidator(t, in.Liquidator, liquidatorFee); err != nil {
		return err
	}

	if p.RealizedPnL, err = addI64(p.RealizedPnL, realized); err != nil {
		return err
	}
	p.Status = PositionLiquidated
	p.ExitPrice = mark
	p.ClosedAt = t.now
	a.removePosition(p.ID)
	if err := e.cancelAttachedOrders(t, p, a, ""); err != nil {
		return err
	}

	t.emit(EventPositionLiquidated, &PositionLiquidatedEvent{
		PositionID:       p.ID,
		Trader:           p.Trader,
		Liquidator:       in.Liquidator,
		Side:             p.Side,
		Size:             p.Size,
		Collateral:       p.Collateral,
		EntryPrice:       p.EntryPrice,
		ExitPrice:        mark,
		RealizedPnL:      realized,
		LiquidationFee:   fee,
		LiquidatorFee:    liquidatorFee,
		InsuranceFundFee: insuranceFee,
		Shortfall:        shortfall,
		MarginType:       a.MarginType,
	})
	return nil
}

// creditLiquidator pays the liquidator into its margin account in this
// market, opening an isolated account if it has none.
func (e *Engine) creditLiquidator(t *tx, liquidator common.Address, amount uint64) error {
	if !t.hasAccount(liquidator) {
		t.putAccount(&MarginAccount{
			Owner:      liquidator,
			Market:     t.market.Symbol,
			MarginType: MarginIsolated,
			Positions:  []string{},
			Orders:     []string{},
			CreatedAt:  t.now,
		})
		t.emit(EventMarginAccountCreated, &MarginAccountCreatedEvent{
			Owner:      liquidator,
			MarginType: MarginIsolated,
		})
	}
	a, err := t.account(liquidator)
	if err != nil {
		return err
	}
	a.Collateral, err = addU64(a.Collateral, amount)
	return err
}
