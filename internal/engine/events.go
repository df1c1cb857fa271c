package engine

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// EventType names an engine event.
type EventType string

const (
	EventMarketInitialized    EventType = "MarketInitialized"
	EventMarketPaused         EventType = "MarketPaused"
	EventMarketResumed        EventType = "MarketResumed"
	EventMarketParamsUpdated  EventType = "MarketParamsUpdated"
	EventFundingRateUpdated   EventType = "FundingRateUpdated"
	EventFundingUpdated       EventType = "FundingUpdated"
	EventFundingSettled       EventType = "FundingSettled"
	EventOracleInitialized    EventType = "OracleInitialized"
	EventOraclePriceUpdated   EventType = "OraclePriceUpdated"
	EventMarginAccountCreated EventType = "MarginAccountCreated"
	EventCollateralDeposited  EventType = "CollateralDeposited"
	EventCollateralWithdrawn  EventType = "CollateralWithdrawn"
	EventPositionOpened       EventType = "PositionOpened"
	EventPositionClosed       EventType = "PositionClosed"
	EventPositionLiquidated   EventType = "PositionLiquidated"
	EventMarginAdjusted       EventType = "MarginAdjusted"
	EventOrderPlaced          EventType = "OrderPlaced"
	EventOrderFilled          EventType = "OrderFilled"
	EventOrderCancelled       EventType = "OrderCancelled"
)

// Event is emitted after a successful transition. Seq is strictly increasing
// per market.
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Market    string    `json:"market"`
	Timestamp int64     `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type MarketInitializedEvent struct {
	Authority              common.Address `json:"authority"`
	Pricing                PricingKind    `json:"pricing"`
	BaseReserve            uint64         `json:"baseReserve"`
	QuoteReserve           uint64         `json:"quoteReserve"`
	Price                  uint64         `json:"price"`
	FundingRate            int64          `json:"fundingRate"`
	FundingInterval        int64          `json:"fundingInterval"`
	MaintenanceMarginRatio uint64         `json:"maintenanceMarginRatio"`
	InitialMarginRatio     uint64         `json:"initialMarginRatio"`
	MaxLeverage            uint64         `json:"maxLeverage"`
	LiquidationFeeRatio    uint64         `json:"liquidationFeeRatio"`
	TradingFeeRatio        uint64         `json:"tradingFeeRatio"`
}

type MarketStatusEvent struct {
	Authority common.Address `json:"authority"`
	IsActive  bool           `json:"isActive"`
}

type MarketParamsUpdatedEvent struct {
	Authority              common.Address `json:"authority"`
	MaintenanceMarginRatio uint64         `json:"maintenanceMarginRatio"`
	InitialMarginRatio     uint64         `json:"initialMarginRatio"`
	FundingInterval        int64          `json:"fundingInterval"`
	MaxLeverage            uint64         `json:"maxLeverage"`
	LiquidationFeeRatio    uint64         `json:"liquidationFeeRatio"`
	TradingFeeRatio        uint64         `json:"tradingFeeRatio"`
}

type FundingRateUpdatedEvent struct {
	Authority common.Address `json:"authority"`
	OldRate   int64          `json:"oldRate"`
	NewRate   int64          `json:"newRate"`
}

type FundingUpdatedEvent struct {
	FundingRate       int64  `json:"fundingRate"`
	Intervals         int64  `json:"intervals"`
	CumulativeFunding int64  `json:"cumulativeFunding"`
	LastFundingTime   int64  `json:"lastFundingTime"`
	PositionsSettled  int    `json:"positionsSettled"`
	InsuranceDrawn    uint64 `json:"insuranceDrawn"`
}

// FundingSettledEvent records the funding applied to one position.
type FundingSettledEvent struct {
	PositionID string         `json:"positionId"`
	Trader     common.Address `json:"trader"`
	Side       Side           `json:"side"`
	Payment    int64          `json:"payment"`
	Shortfall  uint64         `json:"shortfall"`
	Collateral uint64         `json:"collateral"`
}

type OracleEvent struct {
	Authority   common.Address `json:"authority"`
	Price       int64          `json:"price"`
	Confidence  uint64         `json:"confidence"`
	PublishTime int64          `json:"publishTime"`
}

type MarginAccountCreatedEvent struct {
	Owner      common.Address `json:"owner"`
	MarginType MarginType     `json:"marginType"`
}

type CollateralEvent struct {
	Owner      common.Address `json:"owner"`
	Amount     uint64         `json:"amount"`
	Collateral uint64         `json:"collateral"`
}

type PositionOpenedEvent struct {
	PositionID       string         `json:"positionId"`
	OrderID          string         `json:"orderId,omitempty"`
	Trader           common.Address `json:"trader"`
	Side             Side           `json:"side"`
	Size             uint64         `json:"size"`
	Collateral       uint64         `json:"collateral"`
	EntryPrice       uint64         `json:"entryPrice"`
	Leverage         uint64         `json:"leverage"`
	LiquidationPrice uint64         `json:"liquidationPrice"`
	MarginType       MarginType     `json:"marginType"`
	Fee              uint64         `json:"fee"`
}

type PositionClosedEvent struct {
	PositionID     string         `json:"positionId"`
	OrderID        string         `json:"orderId,omitempty"`
	Trader         common.Address `json:"trader"`
	Side           Side           `json:"side"`
	Size           uint64         `json:"size"`
	Collateral     uint64         `json:"collateral"`
	EntryPrice     uint64         `json:"entryPrice"`
	ExitPrice      uint64         `json:"exitPrice"`
	ExecutionPrice uint64         `json:"executionPrice"`
	RealizedPnL    int64          `json:"realizedPnl"`
	Fee            uint64         `json:"fee"`
	Shortfall      uint64         `json:"shortfall"`
}

type PositionLiquidatedEvent struct {
	PositionID       string         `json:"positionId"`
	Trader           common.Address `json:"trader"`
	Liquidator       common.Address `json:"liquidator"`
	Side             Side           `json:"side"`
	Size             uint64         `json:"size"`
	Collateral       uint64         `json:"collateral"`
	EntryPrice       uint64         `json:"entryPrice"`
	ExitPrice        uint64         `json:"exitPrice"`
	RealizedPnL      int64          `json:"realizedPnl"`
	LiquidationFee   uint64         `json:"liquidationFee"`
	LiquidatorFee    uint64         `json:"liquidatorFee"`
	InsuranceFundFee uint64         `json:"insuranceFundFee"`
	Shortfall        uint64         `json:"shortfall"`
	MarginType       MarginType     `json:"marginType"`
}

type MarginAdjustedEvent struct {
	PositionID       string         `json:"positionId"`
	Trader           common.Address `json:"trader"`
	Delta            int64          `json:"delta"`
	Collateral       uint64         `json:"collateral"`
	LiquidationPrice uint64         `json:"liquidationPrice"`
}

type OrderEvent struct {
	OrderID    string         `json:"orderId"`
	Trader     common.Address `json:"trader"`
	Type       OrderType      `json:"type"`
	Side       Side           `json:"side"`
	Size       uint64         `json:"size"`
	Price      uint64         `json:"price"`
	Leverage   uint64         `json:"leverage"`
	PositionID string         `json:"positionId,omitempty"`
	Keeper     common.Address `json:"keeper,omitempty"`
	FillPrice  uint64         `json:"fillPrice,omitempty"`
}

// NewPayload returns a pointer to the zero payload value for typ.
func NewPayload(typ EventType) (any, error) {
	switch typ {
	case EventMarketInitialized:
		return &MarketInitializedEvent{}, nil
	case EventMarketPaused, EventMarketResumed:
		return &MarketStatusEvent{}, nil
	case EventMarketParamsUpdated:
		return &MarketParamsUpdatedEvent{}, nil
	case EventFundingRateUpdated:
		return &FundingRateUpdatedEvent{}, nil
	case EventFundingUpdated:
		return &FundingUpdatedEvent{}, nil
	case EventFundingSettled:
		return &FundingSettledEvent{}, nil
	case EventOracleInitialized, EventOraclePriceUpdated:
		return &OracleEvent{}, nil
	case EventMarginAccountCreated:
		return &MarginAccountCreatedEvent{}, nil
	case EventCollateralDeposited, EventCollateralWithdrawn:
		return &CollateralEvent{}, nil
	case EventPositionOpened:
		return &PositionOpenedEvent{}, nil
	case EventPositionClosed:
		return &PositionClosedEvent{}, nil
	case EventPositionLiquidated:
		return &PositionLiquidatedEvent{}, nil
	case EventMarginAdjusted:
		return &MarginAdjustedEvent{}, nil
	case EventOrderPlaced, EventOrderFilled, EventOrderCancelled:
		return &OrderEvent{}, nil
	}
	return nil, fmt.Errorf("unknown event type %q", typ)
}

// UnmarshalJSON decodes Payload into its concrete pointer type.
func (e *Event) UnmarshalJSON(b []byte) error {
	var raw struct {
		Seq       uint64          `json:"seq"`
		Type      EventType       `json:"type"`
		Market    string          `json:"market"`
		Timestamp int64           `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	payload, err := NewPayload(raw.Type)
	if err != nil {
		return err
	}
	if len(raw.Payload) > 0 {
		if err := json.Unmarshal(raw.Payload, payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", raw.Type, err)
		}
	}
	*e = Event{
		Seq:       raw.Seq,
		Type:      raw.Type,
		Market:    raw.Market,
		Timestamp: raw.Timestamp,
		Payload:   payload,
	}
	return nil
}
