package engine

import "github.com/ethereum/go-ethereum/common"

// Intent is a single state transition submitted to Engine.Apply.
type Intent interface {
	// MarketSymbol is the market whose lock the intent runs under.
	MarketSymbol() string
	// Name identifies the intent in logs and metrics.
	Name() string
	isIntent()
}

type InitializeMarket struct {
	Market                 string
	Authority              common.Address
	Pricing                PricingKind
	BaseReserve            uint64
	QuoteReserve           uint64
	PriceImpactFactor      uint64
	FundingRate            int64
	FundingInterval        int64
	MaintenanceMarginRatio uint64
	InitialMarginRatio     uint64
	MaxLeverage            uint64
	LiquidationFeeRatio    uint64
	TradingFeeRatio        uint64
}

type PauseMarket struct {
	Market    string
	Authority common.Address
}

type ResumeMarket struct {
	Market    string
	Authority common.Address
}

// UpdateMarketParams patches the fields that are non-nil.
type UpdateMarketParams struct {
	Market                 string
	Authority              common.Address
	MaintenanceMarginRatio *uint64
	InitialMarginRatio     *uint64
	FundingInterval        *int64
	MaxLeverage            *uint64
	LiquidationFeeRatio    *uint64
	TradingFeeRatio        *uint64
}

type UpdateFundingRate struct {
	Market    string
	Authority common.Address
	Rate      int64
}

// UpdateFundingPayments accrues elapsed funding intervals and settles every
// open position of the market.
type UpdateFundingPayments struct {
	Market string
}

// InitializeOracle creates the price feed of a market. FeedAuthority may
// differ from the market authority; zero means the market authority.
type InitializeOracle struct {
	Market        string
	Authority     common.Address
	FeedAuthority common.Address
	Price         int64
	Confidence    uint64
}

// UpdateOraclePrice publishes a new price. A zero PublishTime means now.
type UpdateOraclePrice struct {
	Market      string
	Authority   common.Address
	Price       int64
	Confidence  uint64
	PublishTime int64
}

type CreateMarginAccount struct {
	Market     string
	Owner      common.Address
	MarginType MarginType
}

type DepositCollateral struct {
	Market string
	Owner  common.Address
	Amount uint64
	// Refund credits back a withdrawal whose payout failed. It skips the
	// minimum amount and the paused market checks.
	Refund bool
}

type WithdrawCollateral struct {
	Market string
	Owner  common.Address
	Amount uint64
}

type OpenPosition struct {
	Market   string
	Trader   common.Address
	Side     Side
	Size     uint64
	Leverage uint64
}

// PlaceOrder submits an order. Market orders fill immediately, limit orders
// rest until the oracle price crosses Price, and stop-loss or take-profit
// orders attach to PositionID and close it when triggered.
type PlaceOrder struct {
	Market     string
	Trader     common.Address
	Type       OrderType
	Side       Side
	Size       uint64
	Leverage   uint64
	Price      uint64
	PositionID string
}

type FillOrder struct {
	Market  string
	Keeper  common.Address
	OrderID string
}

type CancelOrder struct {
	Market  string
	Trader  common.Address
	OrderID string
}

type ClosePosition struct {
	Market     string
	Trader     common.Address
	PositionID string
}

// AdjustPositionMargin moves Delta between free collateral and the margin of
// a position. Positive adds margin.
type AdjustPositionMargin struct {
	Market     string
	Trader     common.Address
	PositionID string
	Delta      int64
}

type LiquidatePosition struct {
	Market     string
	Liquidator common.Address
	PositionID string
}

func (i InitializeMarket) MarketSymbol() string      { return i.Market }
func (i PauseMarket) MarketSymbol() string           { return i.Market }
func (i ResumeMarket) MarketSymbol() string          { return i.Market }
func (i UpdateMarketParams) MarketSymbol() string    { return i.Market }
func (i UpdateFundingRate) MarketSymbol() string     { return i.Market }
func (i UpdateFundingPayments) MarketSymbol() string { return i.Market }
func (i InitializeOracle) MarketSymbol() string      { return i.Market }
func (i UpdateOraclePrice) MarketSymbol() string     { return i.Market }
func (i CreateMarginAccount) MarketSymbol() string   { return i.Market }
func (i DepositCollateral) MarketSymbol() string     { return i.Market }
func (i WithdrawCollateral) MarketSymbol() string    { return i.Market }
func (i OpenPosition) MarketSymbol() string          { return i.Market }
func (i PlaceOrder) MarketSymbol() string            { return i.Market }
func (i FillOrder) MarketSymbol() string             { return i.Market }
func (i CancelOrder) MarketSymbol() string           { return i.Market }
func (i ClosePosition) MarketSymbol() string         { return i.Market }
func (i AdjustPositionMargin) MarketSymbol() string  { return i.Market }
func (i LiquidatePosition) MarketSymbol() string     { return i.Market }

func (InitializeMarket) Name() string      { return "initialize_market" }
func (PauseMarket) Name() string           { return "pause_market" }
func (ResumeMarket) Name() string          { return "resume_market" }
func (UpdateMarketParams) Name() string    { return "update_market_params" }
func (UpdateFundingRate) Name() string     { return "update_funding_rate" }
func (UpdateFundingPayments) Name() string { return "update_funding_payments" }
func (InitializeOracle) Name() string      { return "initialize_oracle" }
func (UpdateOraclePrice) Name() string     { return "update_oracle_price" }
func (CreateMarginAccount) Name() string   { return "create_margin_account" }
func (DepositCollateral) Name() string     { return "deposit_collateral" }
func (WithdrawCollateral) Name() string    { return "withdraw_collateral" }
func (OpenPosition) Name() string          { return "open_position" }
func (PlaceOrder) Name() string            { return "place_order" }
func (FillOrder) Name() string             { return "fill_order" }
func (CancelOrder) Name() string           { return "cancel_order" }
func (ClosePosition) Name() string         { return "close_position" }
func (AdjustPositionMargin) Name() string  { return "adjust_position_margin" }
func (LiquidatePosition) Name() string     { return "liquidate_position" }

func (InitializeMarket) isIntent()      {}
func (PauseMarket) isIntent()           {}
func (ResumeMarket) isIntent()          {}
func (UpdateMarketParams) isIntent()    {}
func (UpdateFundingRate) isIntent()     {}
func (UpdateFundingPayments) isIntent() {}
func (InitializeOracle) isIntent()      {}
func (UpdateOraclePrice) isIntent()     {}
func (CreateMarginAccount) isIntent()   {}
func (DepositCollateral) isIntent()     {}
func (WithdrawCollateral) isIntent()    {}
func (OpenPosition) isIntent()          {}
func (PlaceOrder) isIntent()            {}
func (FillOrder) isIntent()             {}
func (CancelOrder) isIntent()           {}
func (ClosePosition) isIntent()         {}
func (AdjustPositionMargin) isIntent()  {}
func (LiquidatePosition) isIntent()     {}
