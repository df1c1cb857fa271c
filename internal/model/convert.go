package model

import (
	"encoding/json"
	"fmt"

	"github.com/vammperp/backend/internal/engine"
)

// MarketFromEngine builds the market row. snapshot may be nil when only the
// summary columns change.
func MarketFromEngine(m engine.Market, snapshot *engine.Snapshot, now int64) (*Market, error) {
	row := &Market{
		Symbol:                 m.Symbol,
		Authority:              m.Authority.Hex(),
		IsActive:               m.IsActive,
		Pricing:                m.AMM.Kind.String(),
		BaseReserve:            NewDecimalFromUint64(m.AMM.BaseReserve),
		QuoteReserve:           NewDecimalFromUint64(m.AMM.QuoteReserve),
		LastPrice:              NewDecimalFromUint64(m.AMM.LastPrice),
		MaintenanceMarginRatio: int64(m.MaintenanceMarginRatio),
		InitialMarginRatio:     int64(m.InitialMarginRatio),
		MaxLeverage:            int64(m.MaxLeverage),
		LiquidationFeeRatio:    int64(m.LiquidationFeeRatio),
		TradingFeeRatio:        int64(m.TradingFeeRatio),
		FundingRate:            m.FundingRate,
		CumulativeFunding:      m.CumulativeFunding,
		FundingInterval:        m.FundingInterval,
		LastFundingTime:        m.LastFundingTime,
		FeePool:                NewDecimalFromUint64(m.FeePool),
		InsuranceFund:          NewDecimalFromUint64(m.InsuranceFund),
		BadDebt:                NewDecimalFromUint64(m.BadDebt),
		OpenInterestLong:       NewDecimalFromUint64(m.OpenInterestLong),
		OpenInterestShort:      NewDecimalFromUint64(m.OpenInterestShort),
		EventSeq:               m.EventSeq,
		CTime:                  m.CreatedAt,
		UTime:                  now,
	}
	if snapshot != nil {
		b, err := json.Marshal(snapshot)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot %s: %w", m.Symbol, err)
		}
		row.Snapshot = string(b)
	}
	return row, nil
}

// EngineSnapshot decodes the stored snapshot of a market row.
func (m *Market) EngineSnapshot() (*engine.Snapshot, error) {
	if m.Snapshot == "" {
		return nil, fmt.Errorf("market %s has no snapshot", m.Symbol)
	}
	var s engine.Snapshot
	if err := json.Unmarshal([]byte(m.Snapshot), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", m.Symbol, err)
	}
	return &s, nil
}

func AccountFromEngine(a engine.MarginAccount, now int64) *MarginAccount {
	return &MarginAccount{
		Market:          a.Market,
		Owner:           a.Owner.Hex(),
		MarginType:      a.MarginType.String(),
		Collateral:      NewDecimalFromUint64(a.Collateral),
		AllocatedMargin: NewDecimalFromUint64(a.AllocatedMargin),
		CTime:           a.CreatedAt,
		UTime:           now,
	}
}

func PositionFromEngine(p engine.Position, now int64) *Position {
	return &Position{
		PosID:                  p.ID,
		Market:                 p.Market,
		Trader:                 p.Trader.Hex(),
		Side:                   p.Side.String(),
		Status:                 p.Status.String(),
		Size:                   NewDecimalFromUint64(p.Size),
		Collateral:             NewDecimalFromUint64(p.Collateral),
		EntryPrice:             NewDecimalFromUint64(p.EntryPrice),
		ExitPrice:              NewDecimalFromUint64(p.ExitPrice),
		LiquidationPrice:       NewDecimalFromUint64(p.LiquidationPrice),
		Leverage:               int64(p.Leverage),
		RealizedPnl:            p.RealizedPnL,
		EntryCumulativeFunding: p.EntryCumulativeFunding,
		CTime:                  p.OpenedAt,
		UTime:                  now,
	}
}

func OrderFromEngine(o engine.Order) *Order {
	return &Order{
		OrdID:      o.ID,
		Market:     o.Market,
		Trader:     o.Trader.Hex(),
		Type:       o.Type.String(),
		Side:       o.Side.String(),
		Status:     o.Status.String(),
		Price:      NewDecimalFromUint64(o.Price),
		Size:       NewDecimalFromUint64(o.Size),
		FilledSize: NewDecimalFromUint64(o.FilledSize),
		Leverage:   int64(o.Leverage),
		PositionID: o.PositionID,
		CTime:      o.CreatedAt,
		UTime:      o.UpdatedAt,
	}
}

func EventFromEngine(ev engine.Event) (*EngineEvent, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Type, err)
	}
	return &EngineEvent{
		Market:  ev.Market,
		Seq:     ev.Seq,
		Type:    string(ev.Type),
		Payload: string(payload),
		Ts:      ev.Timestamp,
	}, nil
}

// TradeID identifies the trade produced by one engine event.
func TradeID(market string, seq uint64) string {
	return fmt.Sprintf("%s-T%d", market, seq)
}
