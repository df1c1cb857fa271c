package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/service"
)

// AccountHandler serves the read side of the authenticated trader. Live
// state comes from the engine, history from the indexer tables.
type AccountHandler struct {
	accountService     *service.AccountService
	liquidationService *service.LiquidationService
}

func NewAccountHandler(accountService *service.AccountService, liquidationService *service.LiquidationService) *AccountHandler {
	return &AccountHandler{
		accountService:     accountService,
		liquidationService: liquidationService,
	}
}

// GetAccounts returns the margin accounts of the caller
// GET /api/v1/account/balance
func (h *AccountHandler) GetAccounts(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	accounts, err := h.accountService.GetAccounts(owner, c.Query("instId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, accounts)
}

// GetPositions returns open positions with their health
// GET /api/v1/account/positions
func (h *AccountHandler) GetPositions(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	positions, err := h.accountService.GetPositions(owner, c.Query("instId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, positions)
}

// GetPosition returns one position by id
// GET /api/v1/account/position
func (h *AccountHandler) GetPosition(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	instID, ok := requireMarket(c)
	if !ok {
		return
	}
	posID := c.Query("posId")
	if posID == "" {
		response.Error(c, errors.New(errors.CodeEmptyRequest))
		return
	}

	position, err := h.accountService.GetPosition(owner, instID, posID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, position)
}

// GetPositionHistory returns indexed positions, closed ones included
// GET /api/v1/account/positions-history
func (h *AccountHandler) GetPositionHistory(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	limit := parseIntParam(c.Query("limit"), 100)

	positions, err := h.accountService.GetPositionHistory(owner, c.Query("instId"), c.Query("status"), int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, positions)
}

// GetLiquidationRisk returns warnings for the caller's positions that are
// close to maintenance
// GET /api/v1/account/liquidation-risk
func (h *AccountHandler) GetLiquidationRisk(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	instID, ok := requireMarket(c)
	if !ok {
		return
	}

	warnings, err := h.liquidationService.Warnings(instID)
	if err != nil {
		response.Error(c, err)
		return
	}

	mine := make([]service.LiquidationWarning, 0, len(warnings))
	for _, w := range warnings {
		if w.Trader == owner.Hex() {
			mine = append(mine, w)
		}
	}
	response.Success(c, mine)
}

// GetLiquidationHistory returns liquidations of the caller's positions
// GET /api/v1/account/liquidations
func (h *AccountHandler) GetLiquidationHistory(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	after := parseIntParam(c.Query("after"), 0)
	before := parseIntParam(c.Query("before"), 0)
	limit := parseIntParam(c.Query("limit"), 100)

	liquidations, err := h.accountService.GetLiquidationHistory(owner, c.Query("instId"), after, before, int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, liquidations)
}

// GetOrder returns one order by id
// GET /api/v1/trade/order
func (h *AccountHandler) GetOrder(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}
	instID, ok := requireMarket(c)
	if !ok {
		return
	}
	ordID := c.Query("ordId")
	if ordID == "" {
		response.Error(c, errors.New(errors.CodeEmptyRequest))
		return
	}

	order, err := h.accountService.GetOrder(owner, instID, ordID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, order)
}

// GetPendingOrders returns active limit and stop orders
// GET /api/v1/trade/orders-pending
func (h *AccountHandler) GetPendingOrders(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	orders, err := h.accountService.GetPendingOrders(owner, c.Query("instId"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, orders)
}

// GetOrderHistory returns filled and cancelled orders
// GET /api/v1/trade/orders-history
func (h *AccountHandler) GetOrderHistory(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	after := parseIntParam(c.Query("after"), 0)
	before := parseIntParam(c.Query("before"), 0)
	limit := parseIntParam(c.Query("limit"), 100)

	orders, err := h.accountService.GetOrderHistory(owner, c.Query("instId"), after, before, int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, orders)
}

// GetTradeHistory returns fills of the caller
// GET /api/v1/trade/fills
func (h *AccountHandler) GetTradeHistory(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	after := parseIntParam(c.Query("after"), 0)
	before := parseIntParam(c.Query("before"), 0)
	limit := parseIntParam(c.Query("limit"), 100)

	trades, err := h.accountService.GetTradeHistory(owner, c.Query("instId"), after, before, int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, trades)
}
