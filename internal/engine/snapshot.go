package engine

import (
	"github.com/vammperp/backend/internal/pkg/errors"
)

// Snapshot is the complete state of one market.
type Snapshot struct {
	Market    Market          `json:"market"`
	Oracle    *Oracle         `json:"oracle,omitempty"`
	Accounts  []MarginAccount `json:"accounts"`
	Positions []Position      `json:"positions"`
	Orders    []Order         `json:"orders"`
}

func (e *Engine) Snapshot(symbol string) (*Snapshot, error) {
	var s *Snapshot
	err := e.read(symbol, func(b *book) error {
		s = &Snapshot{Market: b.market}
		if b.oracle != nil {
			o := *b.oracle
			s.Oracle = &o
		}
		for _, owner := range sortedAddresses(b.accounts) {
			s.Accounts = append(s.Accounts, *b.accounts[owner].clone())
		}
		for _, id := range sortedKeys(b.positions) {
			s.Positions = append(s.Positions, *b.positions[id])
		}
		for _, id := range sortedKeys(b.orders) {
			s.Orders = append(s.Orders, *b.orders[id])
		}
		return nil
	})
	return s, err
}

// Restore loads a snapshot as a market. The market must not exist yet.
func (e *Engine) Restore(s *Snapshot) error {
	if s == nil || !validSymbol(s.Market.Symbol) {
		return errors.ErrInvalidMarketSymbol
	}
	if err := paramsOf(s.Market).validate(); err != nil {
		return err
	}
	if _, err := ModelFor(s.Market.AMM.Kind); err != nil {
		return err
	}

	b := newBook()
	b.market = s.Market
	if s.Oracle != nil {
		o := *s.Oracle
		b.oracle = &o
	}
	for i := range s.Accounts {
		a := s.Accounts[i].clone()
		if a.Market != s.Market.Symbol || a.AllocatedMargin > a.Collateral {
			return errors.ErrInvalidParameter
		}
		b.accounts[a.Owner] = a
	}
	for i := range s.Positions {
		p := s.Positions[i]
		if p.Market != s.Market.Symbol {
			return errors.ErrInvalidPosition
		}
		b.positions[p.ID] = &p
	}
	for i := range s.Orders {
		o := s.Orders[i]
		if o.Market != s.Market.Symbol {
			return errors.ErrInvalidParameter
		}
		b.orders[o.ID] = &o
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[s.Market.Symbol]; ok {
		return errors.ErrMarketAlreadyExists
	}
	e.books[s.Market.Symbol] = b
	return nil
}
