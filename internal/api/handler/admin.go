package handler

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
)

// AdminHandler exposes the market authority operations. The caller signs as
// the authority; the engine rejects anyone else with Unauthorized.
type AdminHandler struct {
	svc IntentApplier
}

func NewAdminHandler(svc IntentApplier) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type InitMarketRequest struct {
	InstID                 string `json:"instId" binding:"required"`
	Pricing                string `json:"pricing"` // constant_product (default), linear_impact
	BaseReserve            uint64 `json:"baseReserve"`
	QuoteReserve           uint64 `json:"quoteReserve"`
	PriceImpactFactor      uint64 `json:"priceImpactFactor"`
	FundingRate            int64  `json:"fundingRate"`
	FundingInterval        int64  `json:"fundingInterval"`
	MaintenanceMarginRatio uint64 `json:"maintenanceMarginRatio"`
	InitialMarginRatio     uint64 `json:"initialMarginRatio"`
	MaxLeverage            uint64 `json:"maxLeverage"`
	LiquidationFeeRatio    uint64 `json:"liquidationFeeRatio"`
	TradingFeeRatio        uint64 `json:"tradingFeeRatio"`
}

type MarketRequest struct {
	InstID string `json:"instId" binding:"required"`
}

// UpdateParamsRequest changes only the fields that are present.
type UpdateParamsRequest struct {
	InstID                 string  `json:"instId" binding:"required"`
	MaintenanceMarginRatio *uint64 `json:"maintenanceMarginRatio"`
	InitialMarginRatio     *uint64 `json:"initialMarginRatio"`
	FundingInterval        *int64  `json:"fundingInterval"`
	MaxLeverage            *uint64 `json:"maxLeverage"`
	LiquidationFeeRatio    *uint64 `json:"liquidationFeeRatio"`
	TradingFeeRatio        *uint64 `json:"tradingFeeRatio"`
}

type FundingRateRequest struct {
	InstID string `json:"instId" binding:"required"`
	Rate   int64  `json:"rate"`
}

type InitOracleRequest struct {
	InstID        string `json:"instId" binding:"required"`
	FeedAuthority string `json:"feedAuthority"` // defaults to the caller
	Price         int64  `json:"price"`
	Confidence    uint64 `json:"confidence"`
}

type OraclePriceRequest struct {
	InstID      string `json:"instId" binding:"required"`
	Price       int64  `json:"price"`
	Confidence  uint64 `json:"confidence"`
	PublishTime int64  `json:"publishTime"`
}

// InitMarket creates a market owned by the caller
// POST /api/v1/admin/market
func (h *AdminHandler) InitMarket(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}
	var req InitMarketRequest
	if !bindJSON(c, &req) {
		return
	}
	pricing, err := engine.ParsePricingKind(req.Pricing)
	if err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeInvalidParam, err.Error(), err))
		return
	}

	submit(c, h.svc, engine.InitializeMarket{
		Market:                 req.InstID,
		Authority:              authority,
		Pricing:                pricing,
		BaseReserve:            req.BaseReserve,
		QuoteReserve:           req.QuoteReserve,
		PriceImpactFactor:      req.PriceImpactFactor,
		FundingRate:            req.FundingRate,
		FundingInterval:        req.FundingInterval,
		MaintenanceMarginRatio: req.MaintenanceMarginRatio,
		InitialMarginRatio:     req.InitialMarginRatio,
		MaxLeverage:            req.MaxLeverage,
		LiquidationFeeRatio:    req.LiquidationFeeRatio,
		TradingFeeRatio:        req.TradingFeeRatio,
	})
}

// PauseMarket stops new exposure in a market
// POST /api/v1/admin/pause
func (h *AdminHandler) PauseMarket(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}
	var req MarketRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.PauseMarket{Market: req.InstID, Authority: authority})
}

// ResumeMarket reactivates a paused market
// POST /api/v1/admin/resume
func (h *AdminHandler) ResumeMarket(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}
	var req MarketRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.ResumeMarket{Market: req.InstID, Authority: authority})
}

// UpdateParams changes the risk parameters of a market
// POST /api/v1/admin/params
func (h *AdminHandler) UpdateParams(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}
	var req UpdateParamsRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.UpdateMarketParams{
		Market:                 req.InstID,
		Authority:              authority,
		MaintenanceMarginRatio: req.MaintenanceMarginRatio,
		InitialMarginRatio:     req.InitialMarginRatio,
		FundingInterval:        req.FundingInterval,
		MaxLeverage:            req.MaxLeverage,
		LiquidationFeeRatio:    req.LiquidationFeeRatio,
		TradingFeeRatio:        req.TradingFeeRatio,
	})
}

// UpdateFundingRate sets the per-interval funding rate
// POST /api/v1/admin/funding-rate
func (h *AdminHandler) UpdateFundingRate(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}
	var req FundingRateRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.UpdateFundingRate{Market: req.InstID, Authority: authority, Rate: req.Rate})
}

// SettleFunding accrues due funding intervals. Anyone may call it.
// POST /api/v1/admin/settle-funding
func (h *AdminHandler) SettleFunding(c *gin.Context) {
	var req MarketRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.UpdateFundingPayments{Market: req.InstID})
}

// InitOracle creates the price feed of a market
// POST /api/v1/admin/oracle
func (h *AdminHandler) InitOracle(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}
	var req InitOracleRequest
	if !bindJSON(c, &req) {
		return
	}
	var feed common.Address
	if req.FeedAuthority != "" {
		if !common.IsHexAddress(req.FeedAuthority) {
			response.Error(c, errors.Newf(errors.CodeInvalidParam, "invalid feed authority %s", req.FeedAuthority))
			return
		}
		feed = common.HexToAddress(req.FeedAuthority)
	}

	submit(c, h.svc, engine.InitializeOracle{
		Market:        req.InstID,
		Authority:     authority,
		FeedAuthority: feed,
		Price:         req.Price,
		Confidence:    req.Confidence,
	})
}

// UpdateOraclePrice publishes a price as the feed authority
// POST /api/v1/admin/oracle-price
func (h *AdminHandler) UpdateOraclePrice(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}
	var req OraclePriceRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.UpdateOraclePrice{
		Market:      req.InstID,
		Authority:   authority,
		Price:       req.Price,
		Confidence:  req.Confidence,
		PublishTime: req.PublishTime,
	})
}
