package engine

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vammperp/backend/internal/pkg/errors"
)

func (e *Engine) checkLeverage(t *tx, leverage uint64) error {
	if leverage == 0 {
		return errors.ErrInvalidLeverage
	}
	if leverage > t.market.MaxLeverage {
		return errors.ErrLeverageTooHigh
	}
	// 1/leverage must cover the initial margin ratio.
	if lessProduct(BasisPoints, 1, leverage, t.market.InitialMarginRatio) {
		return errors.ErrInsufficientMargin
	}
	return nil
}

// openPosition executes size against the AMM and allocates the required
// margin plus the trading fee from the trader's free collateral.
func (e *Engine) openPosition(t *tx, trader common.Address, side Side, size, leverage uint64, orderID string) (*Position, error) {
	if err := t.requireActive(); err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, errors.ErrInvalidOrderSize
	}
	if !side.Valid() {
		return nil, errors.ErrInvalidSide
	}
	if err := e.checkLeverage(t, leverage); err != nil {
		return nil, err
	}
	a, err := t.account(trader)
	if err != nil {
		return nil, err
	}
	mark, err := e.policy.markPrice(t.oracle, t.now)
	if err != nil {
		return nil, err
	}
	model, err := ModelFor(t.market.AMM.Kind)
	if err != nil {
		return nil, err
	}
	fill, err := model.Execute(t.market.AMM, side, size)
	if err != nil {
		return nil, err
	}

	required, err := RequiredMargin(size, fill.Price, leverage)
	if err != nil {
		return nil, err
	}
	if required == 0 {
		return nil, errors.ErrInvalidOrderSize
	}
	notional, err := Notional(size, fill.Price)
	if err != nil {
		return nil, err
	}
	fee, err := FeeOf(notional, t.market.TradingFeeRatio)
	if err != nil {
		return nil, err
	}
	need, err := addU64(required, fee)
	if err != nil {
		return nil, err
	}
	if a.Available() < need {
		return nil, errors.ErrInsufficientMargin
	}

	a.Collateral -= fee
	a.AllocatedMargin += required
	if t.market.FeePool, err = addU64(t.market.FeePool, fee); err != nil {
		return nil, err
	}
	t.market.AMM = fill.AMM

	p := &Position{
		ID:                     t.nextPositionID(),
		Trader:                 trader,
		Market:                 t.market.Symbol,
		Side:                   side,
		Size:                   size,
		Collateral:             required,
		EntryPrice:             fill.Price,
		EntryCumulativeFunding: t.market.CumulativeFunding,
		Leverage:               leverage,
		LastFundingPaymentTime: t.now,
		Status:                 PositionOpen,
		OpenedAt:               t.now,
	}
	if p.LiquidationPrice, err = LiquidationPrice(side, p.EntryPrice, p.Collateral, size, t.market.MaintenanceMarginRatio); err != nil {
		return nil, err
	}
	// A fill far from the oracle can leave the position liquidatable at once.
	unsafe, err := e.undercollateralized(t, p, a, mark)
	if err != nil {
		return nil, err
	}
	if unsafe {
		return nil, errors.ErrInsufficientMargin
	}
	if err := t.addOpenInterest(side, size); err != nil {
		return nil, err
	}

	t.putPosition(p)
	a.Positions = append(a.Positions, p.ID)
	t.emit(EventPositionOpened, &PositionOpenedEvent{
		PositionID:       p.ID,
		OrderID:          orderID,
		Trader:           trader,
		Side:             side,
		Size:             size,
		Collateral:       required,
		EntryPrice:       p.EntryPrice,
		Leverage:         leverage,
		LiquidationPrice: p.LiquidationPrice,
		MarginType:       a.MarginType,
		Fee:              fee,
	})
	return p, nil
}

func (e *Engine) closePositionIntent(t *tx, in ClosePosition) error {
	p, err := t.position(in.PositionID)
	if err != nil {
		return err
	}
	if p.Trader != in.Trader {
		return errors.ErrUnauthorized
	}
	if !p.IsOpen() {
		return errors.ErrPositionClosed
	}
	a, err := t.account(p.Trader)
	if err != nil {
		return err
	}
	return e.closePosition(t, p, a, "")
}

// closePosition realizes p at the oracle price and reverses its AMM trade.
// Losses beyond the account's loss capacity are charged to the insurance
// fund. Orders attached to p other than byOrder are cancelled.
func (e *Engine) closePosition(t *tx, p *Position, a *MarginAccount, byOrder string) error {
	mark, err := e.policy.markPrice(t.oracle, t.now)
	if err != nil {
		return err
	}
	if _, err := e.settleFunding(t, p, a); err != nil {
		return err
	}
	fill, err := e.reverseTrade(t, p)
	if err != nil {
		return err
	}

	pnl, err := UnrealizedPnL(p.Side, p.EntryPrice, mark, p.Size)
	if err != nil {
		return err
	}
	capacity, err := lossCapacity(p, a)
	if err != nil {
		return err
	}
	realized := pnl
	var shortfall uint64
	if pnl < 0 && abs(pnl) > capacity {
		shortfall = abs(pnl) - capacity
		if realized, err = signed(capacity, true); err != nil {
			return err
		}
	}

	if a.AllocatedMargin, err = subU64(a.AllocatedMargin, p.Collateral); err != nil {
		return err
	}
	if a.Collateral, err = applySigned(a.Collateral, realized); err != nil {
		return err
	}
	notional, err := Notional(p.Size, mark)
	if err != nil {
		return err
	}
	fee, err := FeeOf(notional, t.market.TradingFeeRatio)
	if err != nil {
		return err
	}
	fee = min(fee, a.Available())
	a.Collateral -= fee
	if t.market.FeePool, err = addU64(t.market.FeePool, fee); err != nil {
		return err
	}
	if _, err := t.absorbShortfall(shortfall); err != nil {
		return err
	}

	if p.RealizedPnL, err = addI64(p.RealizedPnL, realized); err != nil {
		return err
	}
	p.Status = PositionClosed
	p.ExitPrice = mark
	p.ClosedAt = t.now
	a.removePosition(p.ID)
	if err := e.cancelAttachedOrders(t, p, a, byOrder); err != nil {
		return err
	}

	t.emit(EventPositionClosed, &PositionClosedEvent{
		PositionID:     p.ID,
		OrderID:        byOrder,
		Trader:         p.Trader,
		Side:           p.Side,
		Size:           p.Size,
		Collateral:     p.Collateral,
		EntryPrice:     p.EntryPrice,
		ExitPrice:      mark,
		ExecutionPrice: fill.Price,
		RealizedPnL:    realized,
		Fee:            fee,
		Shortfall:      shortfall,
	})
	return nil
}

// reverseTrade executes the opposite of p against the AMM and removes its
// open interest.
func (e *Engine) reverseTrade(t *tx, p *Position) (Fill, error) {
	model, err := ModelFor(t.market.AMM.Kind)
	if err != nil {
		return Fill{}, err
	}
	fill, err := model.Execute(t.market.AMM, p.Side.Opposite(), p.Size)
	if err != nil {
		return Fill{}, err
	}
	t.market.AMM = fill.AMM
	t.removeOpenInterest(p.Side, p.Size)
	return fill, nil
}

func (e *Engine) cancelAttachedOrders(t *tx, p *Position, a *MarginAccount, except string) error {
	for _, id := range append([]string(nil), a.Orders...) {
		if id == except {
			continue
		}
		o, err := t.order(id)
		if err != nil {
			return err
		}
		if o.PositionID != p.ID || !o.IsActive() {
			continue
		}
		o.Status = OrderCancelled
		o.UpdatedAt = t.now
		a.removeOrder(id)
		t.emit(EventOrderCancelled, orderEvent(o))
	}
	return nil
}

func (e *Engine) adjustPositionMargin(t *tx, in AdjustPositionMargin) error {
	if in.Delta == 0 {
		return errors.ErrInvalidParameter
	}
	p, err := t.position(in.PositionID)
	if err != nil {
		return err
	}
	if p.Trader != in.Trader {
		return errors.ErrUnauthorized
	}
	if !p.IsOpen() {
		return errors.ErrPositionClosed
	}
	a, err := t.account(p.Trader)
	if err != nil {
		return err
	}

	amount := abs(in.Delta)
	if in.Delta > 0 {
		if a.Available() < amount {
			return errors.ErrInsufficientCollateral
		}
		p.Collateral += amount
		a.AllocatedMargin += amount
	} else {
		mark, err := e.policy.markPrice(t.oracle, t.now)
		if err != nil {
			return err
		}
		if amount >= p.Collateral {
			return errors.ErrInsufficientMargin
		}
		notional, err := Notional(p.Size, mark)
		if err != nil {
			return err
		}
		floor, err := FeeOf(notional, t.market.InitialMarginRatio)
		if err != nil {
			return err
		}
		if p.Collateral-amount < floor {
			return errors.ErrInsufficientMargin
		}
		p.Collateral -= amount
		if a.AllocatedMargin, err = subU64(a.AllocatedMargin, amount); err != nil {
			return err
		}
	}
	if p.LiquidationPrice, err = LiquidationPrice(p.Side, p.EntryPrice, p.Collateral, p.Size, t.market.MaintenanceMarginRatio); err != nil {
		return err
	}

	t.emit(EventMarginAdjusted, &MarginAdjustedEvent{
		PositionID:       p.ID,
		Trader:           p.Trader,
		Delta:            in.Delta,
		Collateral:       p.Collateral,
		LiquidationPrice: p.LiquidationPrice,
	})
	return nil
}

func (t *tx) addOpenInterest(side Side, size uint64) error {
	var err error
	if side == SideLong {
		t.market.OpenInterestLong, err = addU64(t.market.OpenInterestLong, size)
	} else {
		t.market.OpenInterestShort, err = addU64(t.market.OpenInterestShort, size)
	}
	return err
}

func (t *tx) removeOpenInterest(side Side, size uint64) {
	if side == SideLong {
		t.market.OpenInterestLong -= min(size, t.market.OpenInterestLong)
	} else {
		t.market.OpenInterestShort -= min(size, t.market.OpenInterestShort)
	}
}
