package model

import (
	"time"
)

// User represents an API user identified by wallet address
type User struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	Address   string    `gorm:"type:varchar(42);uniqueIndex;not null" json:"address"`
	APIKey    string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	APISecret string    `gorm:"type:varchar(128)" json:"-"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// Market is the persisted state of one perpetual market. Snapshot holds the
// full engine snapshot JSON so the engine can be restored at startup.
type Market struct {
	ID                     int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	Symbol                 string  `gorm:"type:varchar(32);uniqueIndex;not null" json:"symbol"`
	Authority              string  `gorm:"type:varchar(42);not null" json:"authority"`
	IsActive               bool    `gorm:"not null" json:"isActive"`
	Pricing                string  `gorm:"type:varchar(24);not null" json:"pricing"`
	BaseReserve            Decimal `gorm:"type:decimal(30,0);not null" json:"baseReserve"`
	QuoteReserve           Decimal `gorm:"type:decimal(30,0);not null" json:"quoteReserve"`
	LastPrice              Decimal `gorm:"type:decimal(30,0);not null" json:"lastPrice"`
	MaintenanceMarginRatio int64   `gorm:"not null" json:"maintenanceMarginRatio"`
	InitialMarginRatio     int64   `gorm:"not null" json:"initialMarginRatio"`
	MaxLeverage            int64   `gorm:"not null" json:"maxLeverage"`
	LiquidationFeeRatio    int64   `gorm:"not null" json:"liquidationFeeRatio"`
	TradingFeeRatio        int64   `gorm:"not null" json:"tradingFeeRatio"`
	FundingRate            int64   `gorm:"not null" json:"fundingRate"`
	CumulativeFunding      int64   `gorm:"not null" json:"cumulativeFunding"`
	FundingInterval        int64   `gorm:"not null" json:"fundingInterval"`
	LastFundingTime        int64   `gorm:"not null" json:"lastFundingTime"`
	FeePool                Decimal `gorm:"type:decimal(30,0);default:0" json:"feePool"`
	InsuranceFund          Decimal `gorm:"type:decimal(30,0);default:0" json:"insuranceFund"`
	BadDebt                Decimal `gorm:"type:decimal(30,0);default:0" json:"badDebt"`
	OpenInterestLong       Decimal `gorm:"type:decimal(30,0);default:0" json:"openInterestLong"`
	OpenInterestShort      Decimal `gorm:"type:decimal(30,0);default:0" json:"openInterestShort"`
	EventSeq               uint64  `gorm:"not null" json:"eventSeq"`
	Snapshot               string  `gorm:"type:jsonb" json:"-"`
	CTime                  int64   `gorm:"not null" json:"cTime"`
	UTime                  int64   `gorm:"not null" json:"uTime"`
}

func (Market) TableName() string {
	return "markets"
}

// MarginAccount is one owner's collateral in one market
type MarginAccount struct {
	ID              int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	Market          string  `gorm:"type:varchar(32);uniqueIndex:idx_account;not null" json:"market"`
	Owner           string  `gorm:"type:varchar(42);uniqueIndex:idx_account;not null" json:"owner"`
	MarginType      string  `gorm:"type:varchar(16);not null" json:"marginType"`
	Collateral      Decimal `gorm:"type:decimal(30,0);default:0" json:"collateral"`
	AllocatedMargin Decimal `gorm:"type:decimal(30,0);default:0" json:"allocatedMargin"`
	CTime           int64   `gorm:"not null" json:"cTime"`
	UTime           int64   `gorm:"not null" json:"uTime"`
}

func (MarginAccount) TableName() string {
	return "margin_accounts"
}

// Position represents a trader's position, open or settled
type Position struct {
	ID                     int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	PosID                  string  `gorm:"type:varchar(48);uniqueIndex;not null" json:"posId"`
	Market                 string  `gorm:"type:varchar(32);index;not null" json:"market"`
	Trader                 string  `gorm:"type:varchar(42);index;not null" json:"trader"`
	Side                   string  `gorm:"type:varchar(8);not null" json:"side"`
	Status                 string  `gorm:"type:varchar(16);index;not null" json:"status"`
	Size                   Decimal `gorm:"type:decimal(30,0);not null" json:"size"`
	Collateral             Decimal `gorm:"type:decimal(30,0);not null" json:"collateral"`
	EntryPrice             Decimal `gorm:"type:decimal(30,0);not null" json:"entryPrice"`
	ExitPrice              Decimal `gorm:"type:decimal(30,0);default:0" json:"exitPrice"`
	LiquidationPrice       Decimal `gorm:"type:decimal(30,0);default:0" json:"liquidationPrice"`
	Leverage               int64   `gorm:"not null" json:"leverage"`
	RealizedPnl            int64   `gorm:"not null" json:"realizedPnl"`
	EntryCumulativeFunding int64   `gorm:"not null" json:"entryCumulativeFunding"`
	CTime                  int64   `gorm:"not null" json:"cTime"`
	UTime                  int64   `gorm:"not null" json:"uTime"`
}

func (Position) TableName() string {
	return "positions"
}

// Order represents a market, limit or conditional order
type Order struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	OrdID      string  `gorm:"type:varchar(48);uniqueIndex;not null" json:"ordId"`
	Market     string  `gorm:"type:varchar(32);index;not null" json:"market"`
	Trader     string  `gorm:"type:varchar(42);index;not null" json:"trader"`
	Type       string  `gorm:"type:varchar(16);not null" json:"type"`
	Side       string  `gorm:"type:varchar(8);not null" json:"side"`
	Status     string  `gorm:"type:varchar(16);index;not null" json:"status"`
	Price      Decimal `gorm:"type:decimal(30,0);default:0" json:"price"`
	Size       Decimal `gorm:"type:decimal(30,0);not null" json:"size"`
	FilledSize Decimal `gorm:"type:decimal(30,0);default:0" json:"filledSize"`
	Leverage   int64   `gorm:"not null" json:"leverage"`
	PositionID string  `gorm:"type:varchar(48);index" json:"positionId,omitempty"`
	CTime      int64   `gorm:"not null" json:"cTime"`
	UTime      int64   `gorm:"not null" json:"uTime"`
}

func (Order) TableName() string {
	return "orders"
}

// EngineEvent is the append-only log of committed engine events
type EngineEvent struct {
	ID      int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	Market  string `gorm:"type:varchar(32);uniqueIndex:idx_event_seq;not null" json:"market"`
	Seq     uint64 `gorm:"uniqueIndex:idx_event_seq;not null" json:"seq"`
	Type    string `gorm:"type:varchar(32);index;not null" json:"type"`
	Payload string `gorm:"type:jsonb;not null" json:"payload"`
	Ts      int64  `gorm:"index;not null" json:"ts"`
}

func (EngineEvent) TableName() string {
	return "engine_events"
}

// Candle represents OHLCV data over execution prices
type Candle struct {
	ID      int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	Market  string  `gorm:"type:varchar(32);uniqueIndex:idx_candle;not null" json:"market"`
	Bar     string  `gorm:"type:varchar(8);uniqueIndex:idx_candle;not null" json:"bar"`
	Ts      int64   `gorm:"uniqueIndex:idx_candle;not null" json:"ts"`
	O       Decimal `gorm:"type:decimal(30,0);not null" json:"o"`
	H       Decimal `gorm:"type:decimal(30,0);not null" json:"h"`
	L       Decimal `gorm:"type:decimal(30,0);not null" json:"l"`
	C       Decimal `gorm:"type:decimal(30,0);not null" json:"c"`
	Vol     Decimal `gorm:"type:decimal(30,0);not null" json:"vol"`
	Confirm int16   `gorm:"default:0" json:"confirm"`
}

func (Candle) TableName() string {
	return "candles"
}

// Candle bar intervals
const (
	Bar1m  = "1m"
	Bar5m  = "5m"
	Bar15m = "15m"
	Bar1H  = "1H"
	Bar4H  = "4H"
	Bar1D  = "1D"
)

// Trade is one execution against the AMM
type Trade struct {
	ID          int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	TradeID     string  `gorm:"type:varchar(48);uniqueIndex;not null" json:"tradeId"`
	Market      string  `gorm:"type:varchar(32);index;not null" json:"market"`
	Trader      string  `gorm:"type:varchar(42);index;not null" json:"trader"`
	PositionID  string  `gorm:"type:varchar(48);index" json:"positionId"`
	OrderID     string  `gorm:"type:varchar(48)" json:"orderId,omitempty"`
	Kind        string  `gorm:"type:varchar(16);not null" json:"kind"`
	Side        string  `gorm:"type:varchar(8);not null" json:"side"`
	Price       Decimal `gorm:"type:decimal(30,0);not null" json:"price"`
	Size        Decimal `gorm:"type:decimal(30,0);not null" json:"size"`
	Fee         Decimal `gorm:"type:decimal(30,0);default:0" json:"fee"`
	RealizedPnl int64   `gorm:"default:0" json:"realizedPnl"`
	Ts          int64   `gorm:"index;not null" json:"ts"`
}

func (Trade) TableName() string {
	return "trades"
}

// Trade kinds
const (
	TradeKindOpen        = "open"
	TradeKindClose       = "close"
	TradeKindLiquidation = "liquidation"
)

// FundingRate represents funding accrual history
type FundingRate struct {
	ID                int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	Market            string `gorm:"type:varchar(32);uniqueIndex:idx_funding;not null" json:"market"`
	FundingRate       int64  `gorm:"not null" json:"fundingRate"`
	Intervals         int64  `gorm:"not null" json:"intervals"`
	CumulativeFunding int64  `gorm:"not null" json:"cumulativeFunding"`
	FundingTime       int64  `gorm:"uniqueIndex:idx_funding;not null" json:"fundingTime"`
}

func (FundingRate) TableName() string {
	return "funding_rates"
}

// Liquidation represents a liquidation record
type Liquidation struct {
	ID               int64   `gorm:"primaryKey;autoIncrement" json:"-"`
	PositionID       string  `gorm:"type:varchar(48);uniqueIndex;not null" json:"positionId"`
	Market           string  `gorm:"type:varchar(32);index;not null" json:"market"`
	Trader           string  `gorm:"type:varchar(42);index;not null" json:"trader"`
	Liquidator       string  `gorm:"type:varchar(42);not null" json:"liquidator"`
	Side             string  `gorm:"type:varchar(8);not null" json:"side"`
	Size             Decimal `gorm:"type:decimal(30,0);not null" json:"size"`
	Price            Decimal `gorm:"type:decimal(30,0);not null" json:"price"`
	RealizedPnl      int64   `gorm:"not null" json:"realizedPnl"`
	LiquidationFee   Decimal `gorm:"type:decimal(30,0);not null" json:"liquidationFee"`
	LiquidatorReward Decimal `gorm:"type:decimal(30,0);not null" json:"liquidatorReward"`
	InsuranceFee     Decimal `gorm:"type:decimal(30,0);not null" json:"insuranceFee"`
	Shortfall        Decimal `gorm:"type:decimal(30,0);default:0" json:"shortfall"`
	Ts               int64   `gorm:"index;not null" json:"ts"`
}

func (Liquidation) TableName() string {
	return "liquidations"
}

// Ticker represents real-time market data served from cache
type Ticker struct {
	Market        string  `json:"market"`
	Last          Decimal `json:"last"`
	MarkPx        Decimal `json:"markPx"`
	IndexPx       Decimal `json:"indexPx"`
	Open24h       Decimal `json:"open24h"`
	High24h       Decimal `json:"high24h"`
	Low24h        Decimal `json:"low24h"`
	Vol24h        Decimal `json:"vol24h"`
	FundingRate   Decimal `json:"fundingRate"`
	OpenInterest  Decimal `json:"openInterest"`
	InsuranceFund Decimal `json:"insuranceFund"`
	IsActive      bool    `json:"isActive"`
	Ts            int64   `json:"ts"`
}

// MarkPrice is the gated oracle price next to the AMM price
type MarkPrice struct {
	Market string  `json:"market"`
	MarkPx Decimal `json:"markPx"`
	SpotPx Decimal `json:"spotPx"`
	Conf   Decimal `json:"conf"`
	Stale  bool    `json:"stale"`
	Ts     int64   `json:"ts"`
}

// FundingRateInfo represents current funding rate info
type FundingRateInfo struct {
	Market            string  `json:"market"`
	FundingRate       Decimal `json:"fundingRate"`
	CumulativeFunding Decimal `json:"cumulativeFunding"`
	FundingTime       int64   `json:"fundingTime"`
	NextFundingTime   int64   `json:"nextFundingTime"`
}

// SyncState is the indexer cursor: the last engine event seq of a market
// whose derived rows have been written.
type SyncState struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	Market    string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"market"`
	LastSeq   uint64    `gorm:"not null" json:"lastSeq"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (SyncState) TableName() string {
	return "sync_state"
}
