package engine

import (
	"github.com/vammperp/backend/internal/pkg/errors"
)

func orderEvent(o *Order) *OrderEvent {
	return &OrderEvent{
		OrderID:    o.ID,
		Trader:     o.Trader,
		Type:       o.Type,
		Side:       o.Side,
		Size:       o.Size,
		Price:      o.Price,
		Leverage:   o.Leverage,
		PositionID: o.PositionID,
	}
}

func (e *Engine) placeOrder(t *tx, in PlaceOrder) error {
	if err := t.requireActive(); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return errors.ErrInvalidOrderType
	}
	a, err := t.account(in.Trader)
	if err != nil {
		return err
	}

	o := &Order{
		Trader:    in.Trader,
		Market:    t.market.Symbol,
		Side:      in.Side,
		Type:      in.Type,
		Price:     in.Price,
		Size:      in.Size,
		Leverage:  in.Leverage,
		Status:    OrderActive,
		CreatedAt: t.now,
		UpdatedAt: t.now,
	}

	switch {
	case in.Type == OrderMarket:
		o.ID = t.nextOrderID()
		t.emit(EventOrderPlaced, orderEvent(o))
		p, err := e.openPosition(t, in.Trader, in.Side, in.Size, in.Leverage, o.ID)
		if err != nil {
			return err
		}
		o.Price = p.EntryPrice
		o.FilledSize = p.Size
		o.Collateral = p.Collateral
		o.PositionID = p.ID
		o.Status = OrderFilled
		t.putOrder(o)
		ev := orderEvent(o)
		ev.FillPrice = p.EntryPrice
		t.emit(EventOrderFilled, ev)
		return nil

	case in.Type == OrderLimit:
		if in.Size == 0 {
			return errors.ErrInvalidOrderSize
		}
		if !in.Side.Valid() {
			return errors.ErrInvalidSide
		}
		if in.Price == 0 {
			return errors.ErrInvalidOrderPrice
		}
		if err := e.checkLeverage(t, in.Leverage); err != nil {
			return err
		}
		// The estimate is checked but not allocated; the fill allocates at the
		// execution price.
		estimate, err := RequiredMargin(in.Size, in.Price, in.Leverage)
		if err != nil {
			return err
		}
		if estimate == 0 {
			return errors.ErrInvalidOrderSize
		}
		if a.Available() < estimate {
			return errors.ErrInsufficientMargin
		}
		o.Collateral = estimate

	case in.Type.Conditional():
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
		if in.Price == 0 {
			return errors.ErrInvalidOrderPrice
		}
		closing := p.Side.Opposite()
		if in.Side != 0 && in.Side != closing {
			return errors.ErrInvalidSide
		}
		o.Side = closing
		o.Size = p.Size
		o.Leverage = p.Leverage
		o.PositionID = p.ID

	default:
		return errors.ErrInvalidOrderType
	}

	o.ID = t.nextOrderID()
	t.putOrder(o)
	a.Orders = append(a.Orders, o.ID)
	t.emit(EventOrderPlaced, orderEvent(o))
	return nil
}

// triggered reports whether the oracle price has crossed the order price.
func triggered(o *Order, mark uint64) bool {
	switch o.Type {
	case OrderLimit:
		if o.Side == SideLong {
			return mark <= o.Price
		}
		return mark >= o.Price
	case OrderStopLoss:
		// Closing side short means the position is long.
		if o.Side == SideShort {
			return mark <= o.Price
		}
		return mark >= o.Price
	case OrderTakeProfit:
		if o.Side == SideShort {
			return mark >= o.Price
		}
		return mark <= o.Price
	}
	return false
}

func (e *Engine) fillOrder(t *tx, in FillOrder) error {
	if err := t.requireActive(); err != nil {
		return err
	}
	o, err := t.order(in.OrderID)
	if err != nil {
		return err
	}
	if !o.IsActive() {
		return errors.ErrOrderNotActive
	}
	mark, err := e.policy.markPrice(t.oracle, t.now)
	if err != nil {
		return err
	}
	if !triggered(o, mark) {
		return errors.ErrOrderNotTriggered
	}
	a, err := t.account(o.Trader)
	if err != nil {
		return err
	}

	var fillPrice uint64
	switch o.Type {
	case OrderLimit:
		p, err := e.openPosition(t, o.Trader, o.Side, o.Size, o.Leverage, o.ID)
		if err != nil {
			return err
		}
		o.PositionID = p.ID
		o.Collateral = p.Collateral
		fillPrice = p.EntryPrice
	case OrderStopLoss, OrderTakeProfit:
		p, err := t.position(o.PositionID)
		if err != nil {
			return err
		}
		if !p.IsOpen() {
			return errors.ErrPositionClosed
		}
		if err := e.closePosition(t, p, a, o.ID); err != nil {
			return err
		}
		fillPrice = p.ExitPrice
	default:
		return errors.ErrInvalidOrderType
	}

	o.Status = OrderFilled
	o.FilledSize = o.Size
	o.UpdatedAt = t.now
	a.removeOrder(o.ID)
	ev := orderEvent(o)
	ev.Keeper = in.Keeper
	ev.FillPrice = fillPrice
	t.emit(EventOrderFilled, ev)
	return nil
}

func (e *Engine) cancelOrder(t *tx, in CancelOrder) error {
	o, err := t.order(in.OrderID)
	if err != nil {
		return err
	}
	if o.Trader != in.Trader {
		return errors.ErrUnauthorized
	}
	if !o.IsActive() {
		return errors.ErrOrderNotActive
	}
	a, err := t.account(o.Trader)
	if err != nil {
		return err
	}
	o.Status = OrderCancelled
	o.UpdatedAt = t.now
	a.removeOrder(o.ID)
	t.emit(EventOrderCancelled, orderEvent(o))
	return nil
}
