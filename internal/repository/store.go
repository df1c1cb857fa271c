package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/model"
)

// Store persists engine receipts. Everything one receipt touched is written
// in a single database transaction.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) SaveReceipt(ctx context.Context, r *engine.Receipt, snapshot *engine.Snapshot) error {
	now := time.Now().Unix()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := model.MarketFromEngine(r.Market, snapshot, now)
		if err != nil {
			return err
		}
		if err := NewMarketRepository(tx).Upsert(row); err != nil {
			return fmt.Errorf("save market %s: %w", r.Market.Symbol, err)
		}

		accounts := NewAccountRepository(tx)
		for _, a := range r.Accounts {
			if err := accounts.Upsert(model.AccountFromEngine(a, now)); err != nil {
				return fmt.Errorf("save account %s: %w", a.Owner.Hex(), err)
			}
		}

		positions := NewPositionRepository(tx)
		for _, p := range r.Positions {
			if err := positions.Upsert(model.PositionFromEngine(p, now)); err != nil {
				return fmt.Errorf("save position %s: %w", p.ID, err)
			}
		}

		orders := NewOrderRepository(tx)
		for _, o := range r.Orders {
			if err := orders.Upsert(model.OrderFromEngine(o)); err != nil {
				return fmt.Errorf("save order %s: %w", o.ID, err)
			}
		}

		events := make([]*model.EngineEvent, 0, len(r.Events))
		for _, ev := range r.Events {
			row, err := model.EventFromEngine(ev)
			if err != nil {
				return err
			}
			events = append(events, row)
		}
		if err := NewEventRepository(tx).CreateBatch(events); err != nil {
			return fmt.Errorf("append events: %w", err)
		}
		return nil
	})
}

// LoadSnapshots returns the stored snapshot of every market, in symbol order.
func (s *Store) LoadSnapshots(ctx context.Context) ([]*engine.Snapshot, error) {
	markets, err := NewMarketRepository(s.db.WithContext(ctx)).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*engine.Snapshot, 0, len(markets))
	for i := range markets {
		if markets[i].Snapshot == "" {
			continue
		}
		snap, err := markets[i].EngineSnapshot()
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}
