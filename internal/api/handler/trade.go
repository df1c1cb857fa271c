package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
)

// TradeHandler turns trader requests into engine intents. The trader of
// every intent is the authenticated address; amounts are raw engine units.
type TradeHandler struct {
	svc IntentApplier
}

func NewTradeHandler(svc IntentApplier) *TradeHandler {
	return &TradeHandler{svc: svc}
}

type CreateAccountRequest struct {
	InstID     string `json:"instId" binding:"required"`
	MarginType string `json:"marginType" binding:"required"` // isolated, cross
}

type CollateralRequest struct {
	InstID string `json:"instId" binding:"required"`
	Amount uint64 `json:"amount"`
}

type OpenPositionRequest struct {
	InstID   string `json:"instId" binding:"required"`
	Side     string `json:"side" binding:"required"` // long, short
	Size     uint64 `json:"size"`
	Leverage uint64 `json:"leverage"`
}

type PositionRequest struct {
	InstID string `json:"instId" binding:"required"`
	PosID  string `json:"posId" binding:"required"`
}

type AdjustMarginRequest struct {
	InstID string `json:"instId" binding:"required"`
	PosID  string `json:"posId" binding:"required"`
	Delta  int64  `json:"delta"`
}

type PlaceOrderRequest struct {
	InstID   string `json:"instId" binding:"required"`
	OrdType  string `json:"ordType" binding:"required"` // market, limit, stop_loss, take_profit
	Side     string `json:"side" binding:"required"`
	Size     uint64 `json:"size"`
	Leverage uint64 `json:"leverage"`
	Px       uint64 `json:"px"`
	PosID    string `json:"posId"` // stop orders close this position
}

type CancelOrderRequest struct {
	InstID string `json:"instId" binding:"required"`
	OrdID  string `json:"ordId" binding:"required"`
}

// CreateAccount opens a margin account in a market
// POST /api/v1/account/create
func (h *TradeHandler) CreateAccount(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req CreateAccountRequest
	if !bindJSON(c, &req) {
		return
	}
	marginType, err := engine.ParseMarginType(req.MarginType)
	if err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeInvalidParam, err.Error(), err))
		return
	}

	submit(c, h.svc, engine.CreateMarginAccount{
		Market:     req.InstID,
		Owner:      owner,
		MarginType: marginType,
	})
}

// Deposit moves collateral from the caller's wallet into the market vault
// POST /api/v1/account/deposit
func (h *TradeHandler) Deposit(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req CollateralRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.DepositCollateral{Market: req.InstID, Owner: owner, Amount: req.Amount})
}

// Withdraw returns free collateral to the caller's wallet
// POST /api/v1/account/withdraw
func (h *TradeHandler) Withdraw(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req CollateralRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.WithdrawCollateral{Market: req.InstID, Owner: owner, Amount: req.Amount})
}

// AdjustMargin adds margin to a position or removes it
// POST /api/v1/account/position/margin-balance
func (h *TradeHandler) AdjustMargin(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req AdjustMarginRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.AdjustPositionMargin{
		Market:     req.InstID,
		Trader:     owner,
		PositionID: req.PosID,
		Delta:      req.Delta,
	})
}

// OpenPosition trades against the AMM at the current price
// POST /api/v1/trade/open-position
func (h *TradeHandler) OpenPosition(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req OpenPositionRequest
	if !bindJSON(c, &req) {
		return
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeInvalidSide, err.Error(), err))
		return
	}

	submit(c, h.svc, engine.OpenPosition{
		Market:   req.InstID,
		Trader:   owner,
		Side:     side,
		Size:     req.Size,
		Leverage: req.Leverage,
	})
}

// ClosePosition closes a position in full
// POST /api/v1/trade/close-position
func (h *TradeHandler) ClosePosition(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req PositionRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.ClosePosition{Market: req.InstID, Trader: owner, PositionID: req.PosID})
}

// PlaceOrder places a market, limit or stop order
// POST /api/v1/trade/order
func (h *TradeHandler) PlaceOrder(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req PlaceOrderRequest
	if !bindJSON(c, &req) {
		return
	}
	ordType, err := engine.ParseOrderType(req.OrdType)
	if err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeInvalidOrderType, err.Error(), err))
		return
	}
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeInvalidSide, err.Error(), err))
		return
	}

	submit(c, h.svc, engine.PlaceOrder{
		Market:     req.InstID,
		Trader:     owner,
		Type:       ordType,
		Side:       side,
		Size:       req.Size,
		Leverage:   req.Leverage,
		Price:      req.Px,
		PositionID: req.PosID,
	})
}

// CancelOrder cancels an active order of the caller
// POST /api/v1/trade/cancel-order
func (h *TradeHandler) CancelOrder(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	var req CancelOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.CancelOrder{Market: req.InstID, Trader: owner, OrderID: req.OrdID})
}

// Liquidate liquidates another trader's position; the fee is credited to
// the caller's margin account
// POST /api/v1/trade/liquidate
func (h *TradeHandler) Liquidate(c *gin.Context) {
	liquidator, ok := caller(c)
	if !ok {
		return
	}
	var req PositionRequest
	if !bindJSON(c, &req) {
		return
	}

	submit(c, h.svc, engine.LiquidatePosition{Market: req.InstID, Liquidator: liquidator, PositionID: req.PosID})
}
