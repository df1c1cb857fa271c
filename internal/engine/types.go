package engine

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side is the direction of a position or order.
type Side uint8

const (
	SideLong Side = iota + 1
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "unknown"
	}
}

// Opposite returns the side that reduces a position of side s.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// MarshalText encodes the zero value as an empty string so that it decodes
// back to zero.
func (s Side) MarshalText() ([]byte, error) {
	if s == 0 {
		return []byte{}, nil
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "long", "buy":
		return SideLong, nil
	case "short", "sell":
		return SideShort, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// MarginType selects how collateral backs the positions of an account.
type MarginType uint8

const (
	MarginIsolated MarginType = iota + 1
	MarginCross
)

func (m MarginType) String() string {
	switch m {
	case MarginIsolated:
		return "isolated"
	case MarginCross:
		return "cross"
	default:
		return "unknown"
	}
}

func (m MarginType) Valid() bool {
	return m == MarginIsolated || m == MarginCross
}

func (m MarginType) MarshalText() ([]byte, error) {
	if m == 0 {
		return []byte{}, nil
	}
	return []byte(m.String()), nil
}

func (m *MarginType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = 0
		return nil
	}
	v, err := ParseMarginType(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func ParseMarginType(s string) (MarginType, error) {
	switch strings.ToLower(s) {
	case "isolated":
		return MarginIsolated, nil
	case "cross":
		return MarginCross, nil
	}
	return 0, fmt.Errorf("unknown margin type %q", s)
}

// OrderType is the kind of an order.
type OrderType uint8

const (
	OrderMarket OrderType = iota + 1
	OrderLimit
	OrderStopLoss
	OrderTakeProfit
)

func (o OrderType) String() string {
	switch o {
	case OrderMarket:
		return "market"
	case OrderLimit:
		return "limit"
	case OrderStopLoss:
		return "stop_loss"
	case OrderTakeProfit:
		return "take_profit"
	default:
		return "unknown"
	}
}

func (o OrderType) Valid() bool {
	return o >= OrderMarket && o <= OrderTakeProfit
}

// Conditional reports whether the order closes an existing position.
func (o OrderType) Conditional() bool {
	return o == OrderStopLoss || o == OrderTakeProfit
}

func (o OrderType) MarshalText() ([]byte, error) {
	if o == 0 {
		return []byte{}, nil
	}
	return []byte(o.String()), nil
}

func (o *OrderType) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*o = 0
		return nil
	}
	v, err := ParseOrderType(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToLower(s) {
	case "market":
		return OrderMarket, nil
	case "limit":
		return OrderLimit, nil
	case "stop_loss", "stoploss", "sl":
		return OrderStopLoss, nil
	case "take_profit", "takeprofit", "tp":
		return OrderTakeProfit, nil
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

// PricingKind selects the pricing model of a market.
type PricingKind uint8

const (
	PricingConstantProduct PricingKind = iota + 1
	PricingLinearImpact
)

func (p PricingKind) String() string {
	switch p {
	case PricingConstantProduct:
		return "constant_product"
	case PricingLinearImpact:
		return "linear_impact"
	default:
		return "unknown"
	}
}

func (p PricingKind) MarshalText() ([]byte, error) {
	if p == 0 {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

func (p *PricingKind) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = 0
		return nil
	}
	v, err := ParsePricingKind(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func ParsePricingKind(s string) (PricingKind, error) {
	switch strings.ToLower(s) {
	case "constant_product", "vamm", "":
		return PricingConstantProduct, nil
	case "linear_impact", "linear":
		return PricingLinearImpact, nil
	}
	return 0, fmt.Errorf("unknown pricing kind %q", s)
}

// PositionStatus is the lifecycle state of a position. Closed and
// Liquidated are terminal.
type PositionStatus uint8

const (
	PositionOpen PositionStatus = iota + 1
	PositionClosed
	PositionLiquidated
)

func (p PositionStatus) String() string {
	switch p {
	case PositionOpen:
		return "open"
	case PositionClosed:
		return "closed"
	case PositionLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

func (p PositionStatus) MarshalText() ([]byte, error) {
	if p == 0 {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

func (p *PositionStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = 0
		return nil
	}
	switch string(b) {
	case "open":
		*p = PositionOpen
	case "closed":
		*p = PositionClosed
	case "liquidated":
		*p = PositionLiquidated
	default:
		return fmt.Errorf("unknown position status %q", b)
	}
	return nil
}

// OrderStatus is the lifecycle state of an order.
type OrderStatus uint8

const (
	OrderActive OrderStatus = iota + 1
	OrderFilled
	OrderCancelled
)

func (o OrderStatus) String() string {
	switch o {
	case OrderActive:
		return "active"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (o OrderStatus) MarshalText() ([]byte, error) {
	if o == 0 {
		return []byte{}, nil
	}
	return []byte(o.String()), nil
}

func (o *OrderStatus) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*o = 0
		return nil
	}
	switch string(b) {
	case "active":
		*o = OrderActive
	case "filled":
		*o = OrderFilled
	case "cancelled":
		*o = OrderCancelled
	default:
		return fmt.Errorf("unknown order status %q", b)
	}
	return nil
}

// AMM is the virtual liquidity state of a market.
type AMM struct {
	Kind              PricingKind `json:"kind"`
	BaseReserve       uint64      `json:"baseReserve"`
	QuoteReserve      uint64      `json:"quoteReserve"`
	Invariant         uint256.Int `json:"-"`
	PriceImpactFactor uint64      `json:"priceImpactFactor"`
	LastPrice         uint64      `json:"lastPrice"`
}

type ammJSON struct {
	Kind              PricingKind `json:"kind"`
	BaseReserve       uint64      `json:"baseReserve"`
	QuoteReserve      uint64      `json:"quoteReserve"`
	Invariant         string      `json:"invariant"`
	PriceImpactFactor uint64      `json:"priceImpactFactor"`
	LastPrice         uint64      `json:"lastPrice"`
}

// MarshalJSON encodes the invariant as a decimal string.
func (a AMM) MarshalJSON() ([]byte, error) {
	return json.Marshal(ammJSON{
		Kind:              a.Kind,
		BaseReserve:       a.BaseReserve,
		QuoteReserve:      a.QuoteReserve,
		Invariant:         a.Invariant.Dec(),
		PriceImpactFactor: a.PriceImpactFactor,
		LastPrice:         a.LastPrice,
	})
}

func (a *AMM) UnmarshalJSON(b []byte) error {
	var v ammJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = AMM{
		Kind:              v.Kind,
		BaseReserve:       v.BaseReserve,
		QuoteReserve:      v.QuoteReserve,
		PriceImpactFactor: v.PriceImpactFactor,
		LastPrice:         v.LastPrice,
	}
	if v.Invariant != "" {
		k, err := uint256.FromDecimal(v.Invariant)
		if err != nil {
			return fmt.Errorf("amm invariant: %w", err)
		}
		a.Invariant = *k
	}
	return nil
}

// Market holds the AMM, risk parameters, funding state and protocol pools
// of one perpetual market.
type Market struct {
	Symbol    string         `json:"symbol"`
	Authority common.Address `json:"authority"`
	IsActive  bool           `json:"isActive"`
	AMM       AMM            `json:"amm"`

	MaintenanceMarginRatio uint64 `json:"maintenanceMarginRatio"`
	InitialMarginRatio     uint64 `json:"initialMarginRatio"`
	MaxLeverage            uint64 `json:"maxLeverage"`
	LiquidationFeeRatio    uint64 `json:"liquidationFeeRatio"`
	TradingFeeRatio        uint64 `json:"tradingFeeRatio"`

	FundingRate       int64 `json:"fundingRate"`
	CumulativeFunding int64 `json:"cumulativeFunding"`
	FundingInterval   int64 `json:"fundingInterval"`
	LastFundingTime   int64 `json:"lastFundingTime"`

	FeePool       uint64 `json:"feePool"`
	InsuranceFund uint64 `json:"insuranceFund"`
	BadDebt       uint64 `json:"badDebt"`

	OpenInterestLong  uint64 `json:"openInterestLong"`
	OpenInterestShort uint64 `json:"openInterestShort"`

	PositionSeq uint64 `json:"positionSeq"`
	OrderSeq    uint64 `json:"orderSeq"`
	EventSeq    uint64 `json:"eventSeq"`
	CreatedAt   int64  `json:"createdAt"`
}

// Oracle is the external price feed of a market.
type Oracle struct {
	Symbol      string         `json:"symbol"`
	Authority   common.Address `json:"authority"`
	Price       int64          `json:"price"`
	Confidence  uint64         `json:"confidence"`
	PublishTime int64          `json:"publishTime"`
}

// MarginAccount is the collateral ledger of one owner in one market.
// Positions and Orders hold the ids of open positions and active orders.
type MarginAccount struct {
	Owner           common.Address `json:"owner"`
	Market          string         `json:"market"`
	MarginType      MarginType     `json:"marginType"`
	Collateral      uint64         `json:"collateral"`
	AllocatedMargin uint64         `json:"allocatedMargin"`
	Positions       []string       `json:"positions"`
	Orders          []string       `json:"orders"`
	CreatedAt       int64          `json:"createdAt"`
}

// Available is the collateral not locked by open positions.
func (a *MarginAccount) Available() uint64 {
	if a.AllocatedMargin > a.Collateral {
		return 0
	}
	return a.Collateral - a.AllocatedMargin
}

func (a *MarginAccount) clone() *MarginAccount {
	c := *a
	c.Positions = slices.Clone(a.Positions)
	c.Orders = slices.Clone(a.Orders)
	return &c
}

func (a *MarginAccount) removePosition(id string) {
	a.Positions = slices.DeleteFunc(a.Positions, func(p string) bool { return p == id })
}

func (a *MarginAccount) removeOrder(id string) {
	a.Orders = slices.DeleteFunc(a.Orders, func(o string) bool { return o == id })
}

// Position is one leveraged exposure. Collateral is the margin allocated to it.
type Position struct {
	ID                     string         `json:"id"`
	Trader                 common.Address `json:"trader"`
	Market                 string         `json:"market"`
	Side                   Side           `json:"side"`
	Size                   uint64         `json:"size"`
	Collateral             uint64         `json:"collateral"`
	EntryPrice             uint64         `json:"entryPrice"`
	EntryCumulativeFunding int64          `json:"entryCumulativeFunding"`
	Leverage               uint64         `json:"leverage"`
	RealizedPnL            int64          `json:"realizedPnl"`
	LastFundingPaymentTime int64          `json:"lastFundingPaymentTime"`
	LiquidationPrice       uint64         `json:"liquidationPrice"`
	ExitPrice              uint64         `json:"exitPrice"`
	Status                 PositionStatus `json:"status"`
	OpenedAt               int64          `json:"openedAt"`
	ClosedAt               int64          `json:"closedAt"`
}

func (p *Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// Order is a trading instruction. Price is the limit price for limit orders
// and the trigger price for stop-loss and take-profit orders.
type Order struct {
	ID         string         `json:"id"`
	Trader     common.Address `json:"trader"`
	Market     string         `json:"market"`
	Side       Side           `json:"side"`
	Type       OrderType      `json:"type"`
	Price      uint64         `json:"price"`
	Size       uint64         `json:"size"`
	FilledSize uint64         `json:"filledSize"`
	Leverage   uint64         `json:"leverage"`
	Collateral uint64         `json:"collateral"`
	PositionID string         `json:"positionId,omitempty"`
	Status     OrderStatus    `json:"status"`
	CreatedAt  int64          `json:"createdAt"`
	UpdatedAt  int64          `json:"updatedAt"`
}

func (o *Order) IsActive() bool {
	return o.Status == OrderActive
}

func positionID(symbol string, seq uint64) string {
	return fmt.Sprintf("%s-P%d", symbol, seq)
}

func orderID(symbol string, seq uint64) string {
	return fmt.Sprintf("%s-O%d", symbol, seq)
}
