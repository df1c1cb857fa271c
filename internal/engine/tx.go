package engine

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vammperp/backend/internal/pkg/errors"
)

// tx stages the changes of one intent. Entities are copied on first access
// and written back to the book only by commit.
type tx struct {
	b   *book
	now int64

	market    Market
	oracle    *Oracle
	oracleSet bool

	accounts  map[common.Address]*MarginAccount
	positions map[string]*Position
	orders    map[string]*Order
	events    []Event
}

func newTx(b *book, now int64) *tx {
	t := &tx{
		b:         b,
		now:       now,
		market:    b.market,
		accounts:  make(map[common.Address]*MarginAccount),
		positions: make(map[string]*Position),
		orders:    make(map[string]*Order),
	}
	if b.oracle != nil {
		o := *b.oracle
		t.oracle = &o
	}
	return t
}

func (t *tx) requireActive() error {
	if !t.market.IsActive {
		return errors.ErrMarketInactive
	}
	return nil
}

func (t *tx) requireAuthority(signer common.Address) error {
	if signer != t.market.Authority {
		return errors.ErrUnauthorized
	}
	return nil
}

func (t *tx) setOracle(o *Oracle) {
	t.oracle = o
	t.oracleSet = true
}

func (t *tx) account(owner common.Address) (*MarginAccount, error) {
	if a, ok := t.accounts[owner]; ok {
		return a, nil
	}
	a, ok := t.b.accounts[owner]
	if !ok {
		return nil, errors.ErrMarginAccountNotFound
	}
	c := a.clone()
	t.accounts[owner] = c
	return c, nil
}

func (t *tx) hasAccount(owner common.Address) bool {
	if _, ok := t.accounts[owner]; ok {
		return true
	}
	_, ok := t.b.accounts[owner]
	return ok
}

func (t *tx) putAccount(a *MarginAccount) {
	t.accounts[a.Owner] = a
}

func (t *tx) position(id string) (*Position, error) {
	if p, ok := t.positions[id]; ok {
		return p, nil
	}
	p, ok := t.b.positions[id]
	if !ok {
		return nil, errors.ErrPositionNotFound
	}
	c := *p
	t.positions[id] = &c
	return &c, nil
}

func (t *tx) putPosition(p *Position) {
	t.positions[p.ID] = p
}

func (t *tx) order(id string) (*Order, error) {
	if o, ok := t.orders[id]; ok {
		return o, nil
	}
	o, ok := t.b.orders[id]
	if !ok {
		return nil, errors.ErrOrderNotFound
	}
	c := *o
	t.orders[id] = &c
	return &c, nil
}

func (t *tx) putOrder(o *Order) {
	t.orders[o.ID] = o
}

// openPositionIDs lists the open positions of the market in id order,
// including those staged in this tx.
func (t *tx) openPositionIDs() []string {
	seen := make(map[string]struct{}, len(t.b.positions)+len(t.positions))
	var ids []string
	for id, p := range t.positions {
		seen[id] = struct{}{}
		if p.IsOpen() {
			ids = append(ids, id)
		}
	}
	for id, p := range t.b.positions {
		if _, ok := seen[id]; ok {
			continue
		}
		if p.IsOpen() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *tx) nextPositionID() string {
	t.market.PositionSeq++
	return positionID(t.market.Symbol, t.market.PositionSeq)
}

func (t *tx) nextOrderID() string {
	t.market.OrderSeq++
	return orderID(t.market.Symbol, t.market.OrderSeq)
}

func (t *tx) emit(typ EventType, payload any) {
	t.market.EventSeq++
	t.events = append(t.events, Event{
		Seq:       t.market.EventSeq,
		Type:      typ,
		Market:    t.market.Symbol,
		Timestamp: t.now,
		Payload:   payload,
	})
}

// absorbShortfall charges an uncovered loss to the insurance fund and
// records what the fund cannot cover as bad debt.
func (t *tx) absorbShortfall(shortfall uint64) (uint64, error) {
	if shortfall == 0 {
		return 0, nil
	}
	covered := min(shortfall, t.market.InsuranceFund)
	t.market.InsuranceFund -= covered
	var err error
	if t.market.BadDebt, err = addU64(t.market.BadDebt, shortfall-covered); err != nil {
		return 0, err
	}
	return covered, nil
}

func (t *tx) commit(intent string) *Receipt {
	b := t.b
	b.market = t.market
	r := &Receipt{
		Intent: intent,
		Market: t.market,
		Events: t.events,
	}
	if t.oracleSet {
		b.oracle = t.oracle
		o := *t.oracle
		r.Oracle = &o
	}

	for _, owner := range sortedAddresses(t.accounts) {
		a := t.accounts[owner]
		b.accounts[owner] = a
		r.Accounts = append(r.Accounts, *a.clone())
	}
	for _, id := range sortedKeys(t.positions) {
		p := t.positions[id]
		b.positions[id] = p
		r.Positions = append(r.Positions, *p)
	}
	for _, id := range sortedKeys(t.orders) {
		o := t.orders[id]
		b.orders[id] = o
		r.Orders = append(r.Orders, *o)
	}
	return r
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAddresses[V any](m map[common.Address]V) []common.Address {
	keys := make([]common.Address, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Cmp(keys[j]) < 0 })
	return keys
}
