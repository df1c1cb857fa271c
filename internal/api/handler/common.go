package handler

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/vammperp/backend/internal/api/middleware"
	"github.com/vammperp/backend/internal/api/response"
	"github.com/vammperp/backend/internal/engine"
	"github.com/vammperp/backend/internal/pkg/errors"
)

// IntentApplier commits intents to the engine.
type IntentApplier interface {
	Apply(ctx context.Context, intent engine.Intent) (*engine.Receipt, error)
}

func parseIntParam(s string, defaultVal int64) int64 {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return defaultVal
	}
	return v
}

// requireMarket reads the instId query parameter.
func requireMarket(c *gin.Context) (string, bool) {
	instID := c.Query("instId")
	if instID == "" {
		response.Error(c, errors.New(errors.CodeEmptyRequest))
		return "", false
	}
	return instID, true
}

// bindJSON decodes the request body into req and reports a parse error to
// the caller on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.Error(c, errors.WrapWithMessage(errors.CodeInvalidParam, err.Error(), err))
		return false
	}
	return true
}

// caller returns the authenticated address. The auth middleware always sets
// it on private routes.
func caller(c *gin.Context) (common.Address, bool) {
	addr, ok := middleware.GetAddress(c)
	if !ok {
		response.Error(c, errors.New(errors.CodeUnauthorized))
		return common.Address{}, false
	}
	return addr, true
}

// submit applies intent and writes the receipt.
func submit(c *gin.Context, svc IntentApplier, intent engine.Intent) {
	receipt, err := svc.Apply(c.Request.Context(), intent)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, receipt)
}
