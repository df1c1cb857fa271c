package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/model"
	"github.com/vammperp/backend/internal/pkg/errors"
	"github.com/vammperp/backend/internal/service"
)

type MarketHandler struct {
	marketService *service.MarketService
}

func NewMarketHandler(marketService *service.MarketService) *MarketHandler {
	return &MarketHandler{marketService: marketService}
}

// GetMarkets returns every market with its AMM and risk parameters
// GET /api/v1/public/markets
func (h *MarketHandler) GetMarkets(c *gin.Context) {
	response.Success(c, h.marketService.GetMarkets())
}

// GetMarket returns one market
// GET /api/v1/public/market
func (h *MarketHandler) GetMarket(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}
	m, err := h.marketService.GetMarket(instID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, m)
}

// GetOracle returns the oracle account of a market
// GET /api/v1/public/oracle
func (h *MarketHandler) GetOracle(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}
	o, err := h.marketService.GetOracle(instID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, o)
}

// GetServerTime returns server time
// GET /api/v1/public/time
func (h *MarketHandler) GetServerTime(c *gin.Context) {
	response.Success(c, gin.H{
		"ts": h.marketService.GetServerTime(),
	})
}

// GetTicker returns ticker for a single market
// GET /api/v1/market/ticker
func (h *MarketHandler) GetTicker(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}

	ticker, err := h.marketService.GetTicker(c.Request.Context(), instID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, []model.Ticker{*ticker})
}

// GetTickers returns tickers for all markets
// GET /api/v1/market/tickers
func (h *MarketHandler) GetTickers(c *gin.Context) {
	tickers, err := h.marketService.GetAllTickers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, tickers)
}

// GetCandles returns K-line data
// GET /api/v1/market/candles
func (h *MarketHandler) GetCandles(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}

	bar := c.DefaultQuery("bar", model.Bar1m)
	if !service.ValidBar(bar) {
		response.Error(c, errors.Newf(errors.CodeInvalidParam, "unsupported bar %s", bar))
		return
	}
	after := parseIntParam(c.Query("after"), 0)
	before := parseIntParam(c.Query("before"), 0)
	limit := parseIntParam(c.Query("limit"), 100)

	candles, err := h.marketService.GetCandles(instID, bar, after, before, int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	// [ts, o, h, l, c, vol, confirm]
	result := make([][]string, 0, len(candles))
	for _, candle := range candles {
		result = append(result, []string{
			strconv.FormatInt(candle.Ts, 10),
			candle.O.Shift(-model.FixedDecimals).String(),
			candle.H.Shift(-model.FixedDecimals).String(),
			candle.L.Shift(-model.FixedDecimals).String(),
			candle.C.Shift(-model.FixedDecimals).String(),
			candle.Vol.String(),
			strconv.Itoa(int(candle.Confirm)),
		})
	}

	response.Success(c, result)
}

// GetTrades returns recent trades
// GET /api/v1/market/trades
func (h *MarketHandler) GetTrades(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}

	limit := parseIntParam(c.Query("limit"), 100)

	trades, err := h.marketService.GetTrades(instID, int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, trades)
}

// GetMarkPrice returns the mark price of one market, or of all markets when
// instId is omitted
// GET /api/v1/market/mark-price
func (h *MarketHandler) GetMarkPrice(c *gin.Context) {
	instID := c.Query("instId")

	if instID != "" {
		price, err := h.marketService.GetMarkPrice(instID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, []model.MarkPrice{*price})
	} else {
		prices, err := h.marketService.GetAllMarkPrices()
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, prices)
	}
}

// GetFundingRate returns current funding rate
// GET /api/v1/market/funding-rate
func (h *MarketHandler) GetFundingRate(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}

	info, err := h.marketService.GetFundingRate(instID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, []model.FundingRateInfo{*info})
}

// GetFundingRateHistory returns funding rate history
// GET /api/v1/market/funding-rate-history
func (h *MarketHandler) GetFundingRateHistory(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}

	after := parseIntParam(c.Query("after"), 0)
	before := parseIntParam(c.Query("before"), 0)
	limit := parseIntParam(c.Query("limit"), 100)

	rates, err := h.marketService.GetFundingRateHistory(instID, after, before, int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rates)
}

// GetRecentLiquidations returns the latest liquidations of a market
// GET /api/v1/market/liquidations
func (h *MarketHandler) GetRecentLiquidations(c *gin.Context) {
	instID, ok := requireMarket(c)
	if !ok {
		return
	}

	limit := parseIntParam(c.Query("limit"), 100)

	liquidations, err := h.marketService.GetRecentLiquidations(instID, int(limit))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, liquidations)
}
