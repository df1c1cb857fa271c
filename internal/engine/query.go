package engine

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vammperp/backend/internal/pkg/errors"
)

// read runs fn under the market lock.
func (e *Engine) read(symbol string, fn func(b *book) error) error {
	b, err := e.book(symbol)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn(b)
}

func (e *Engine) Market(symbol string) (Market, error) {
	var m Market
	err := e.read(symbol, func(b *book) error {
		m = b.market
		return nil
	})
	return m, err
}

func (e *Engine) Markets() []Market {
	symbols := e.Symbols()
	out := make([]Market, 0, len(symbols))
	for _, s := range symbols {
		if m, err := e.Market(s); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (e *Engine) Oracle(symbol string) (Oracle, error) {
	var o Oracle
	err := e.read(symbol, func(b *book) error {
		if b.oracle == nil {
			return errors.ErrInvalidOracleAccount
		}
		o = *b.oracle
		return nil
	})
	return o, err
}

// SpotPrice returns the AMM price of a market.
func (e *Engine) SpotPrice(symbol string) (uint64, error) {
	var price uint64
	err := e.read(symbol, func(b *book) error {
		model, err := ModelFor(b.market.AMM.Kind)
		if err != nil {
			return err
		}
		price, err = model.SpotPrice(b.market.AMM)
		return err
	})
	return price, err
}

// MarkPrice returns the gated oracle price of a market.
func (e *Engine) MarkPrice(symbol string) (uint64, error) {
	var price uint64
	err := e.read(symbol, func(b *book) error {
		var err error
		price, err = e.policy.markPrice(b.oracle, e.now())
		return err
	})
	return price, err
}

func (e *Engine) Account(symbol string, owner common.Address) (MarginAccount, error) {
	var a MarginAccount
	err := e.read(symbol, func(b *book) error {
		acc, ok := b.accounts[owner]
		if !ok {
			return errors.ErrMarginAccountNotFound
		}
		a = *acc.clone()
		return nil
	})
	return a, err
}

func (e *Engine) Position(symbol, id string) (Position, error) {
	var p Position
	err := e.read(symbol, func(b *book) error {
		pos, ok := b.positions[id]
		if !ok {
			return errors.ErrPositionNotFound
		}
		p = *pos
		return nil
	})
	return p, err
}

func (e *Engine) Order(symbol, id string) (Order, error) {
	var o Order
	err := e.read(symbol, func(b *book) error {
		ord, ok := b.orders[id]
		if !ok {
			return errors.ErrOrderNotFound
		}
		o = *ord
		return nil
	})
	return o, err
}

// OpenPositions returns every open position of a market in id order.
func (e *Engine) OpenPositions(symbol string) ([]Position, error) {
	var out []Position
	err := e.read(symbol, func(b *book) error {
		out = openPositions(b)
		return nil
	})
	return out, err
}

// AccountPositions returns the open positions of owner.
func (e *Engine) AccountPositions(symbol string, owner common.Address) ([]Position, error) {
	var out []Position
	err := e.read(symbol, func(b *book) error {
		a, ok := b.accounts[owner]
		if !ok {
			return errors.ErrMarginAccountNotFound
		}
		for _, id := range a.Positions {
			if p, ok := b.positions[id]; ok {
				out = append(out, *p)
			}
		}
		return nil
	})
	return out, err
}

// ActiveOrders returns the resting orders of a market in id order.
func (e *Engine) ActiveOrders(symbol string) ([]Order, error) {
	var out []Order
	err := e.read(symbol, func(b *book) error {
		out = activeOrders(b)
		return nil
	})
	return out, err
}

func (e *Engine) AccountOrders(symbol string, owner common.Address) ([]Order, error) {
	var out []Order
	err := e.read(symbol, func(b *book) error {
		a, ok := b.accounts[owner]
		if !ok {
			return errors.ErrMarginAccountNotFound
		}
		for _, id := range a.Orders {
			if o, ok := b.orders[id]; ok {
				out = append(out, *o)
			}
		}
		return nil
	})
	return out, err
}

// PositionHealth is the risk view of an open position at the oracle price.
type PositionHealth struct {
	Position       Position `json:"position"`
	MarkPrice      uint64   `json:"markPrice"`
	UnrealizedPnL  int64    `json:"unrealizedPnl"`
	Equity         int64    `json:"equity"`
	Notional       uint64   `json:"notional"`
	MarginRatioBps int64    `json:"marginRatioBps"`
	Liquidatable   bool     `json:"liquidatable"`
}

func (e *Engine) PositionHealth(symbol, id string) (PositionHealth, error) {
	var h PositionHealth
	err := e.read(symbol, func(b *book) error {
		p, ok := b.positions[id]
		if !ok {
			return errors.ErrPositionNotFound
		}
		if !p.IsOpen() {
			return errors.ErrPositionClosed
		}
		mark, err := e.policy.markPrice(b.oracle, e.now())
		if err != nil {
			return err
		}
		a, ok := b.accounts[p.Trader]
		if !ok {
			return errors.ErrMarginAccountNotFound
		}
		h, err = health(b.market, p, a, mark)
		return err
	})
	return h, err
}

func health(m Market, p *Position, a *MarginAccount, mark uint64) (PositionHealth, error) {
	eq, pnl, err := equity(p, a, mark)
	if err != nil {
		return PositionHealth{}, err
	}
	notional, err := Notional(p.Size, mark)
	if err != nil {
		return PositionHealth{}, err
	}
	return PositionHealth{
		Position:       *p,
		MarkPrice:      mark,
		UnrealizedPnL:  pnl,
		Equity:         eq,
		Notional:       notional,
		MarginRatioBps: MarginRatioBps(eq, notional),
		Liquidatable:   Undercollateralized(eq, notional, m.MaintenanceMarginRatio),
	}, nil
}

// LiquidationCandidates returns the open positions that are below
// maintenance at the current oracle price.
func (e *Engine) LiquidationCandidates(symbol string) ([]PositionHealth, error) {
	var out []PositionHealth
	err := e.read(symbol, func(b *book) error {
		mark, err := e.policy.markPrice(b.oracle, e.now())
		if err != nil {
			return err
		}
		for _, p := range openPositions(b) {
			a, ok := b.accounts[p.Trader]
			if !ok {
				continue
			}
			h, err := health(b.market, &p, a, mark)
			if err != nil {
				return err
			}
			if h.Liquidatable {
				out = append(out, h)
			}
		}
		return nil
	})
	return out, err
}

// TriggerableOrders returns the resting orders whose trigger the current
// oracle price has crossed.
func (e *Engine) TriggerableOrders(symbol string) ([]Order, error) {
	var out []Order
	err := e.read(symbol, func(b *book) error {
		mark, err := e.policy.markPrice(b.oracle, e.now())
		if err != nil {
			return err
		}
		for _, o := range activeOrders(b) {
			if triggered(&o, mark) {
				out = append(out, o)
			}
		}
		return nil
	})
	return out, err
}

// FundingDue reports whether UpdateFundingPayments would accrue at least one
// interval now.
func (e *Engine) FundingDue(symbol string) (bool, error) {
	var due bool
	err := e.read(symbol, func(b *book) error {
		m := b.market
		due = m.FundingInterval > 0 && e.now()-m.LastFundingTime >= m.FundingInterval
		return nil
	})
	return due, err
}

func openPositions(b *book) []Position {
	ids := make([]string, 0, len(b.positions))
	for id, p := range b.positions {
		if p.IsOpen() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]Position, 0, len(ids))
	for _, id := range ids {
		out = append(out, *b.positions[id])
	}
	return out
}

func activeOrders(b *book) []Order {
	ids := make([]string, 0, len(b.orders))
	for id, o := range b.orders {
		if o.IsActive() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, *b.orders[id])
	}
	return out
}
