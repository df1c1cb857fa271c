package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Success
	CodeSuccess = 0

	// System errors (1-999)
	CodeOperationFailed = 1
	CodeSystemBusy      = 2

	// General errors (50000-50099)
	CodeEmptyRequest    = 50000
	CodeSystemError     = 50001
	CodeJSONParseError  = 50002
	CodeRequestTimeout  = 50004
	CodeRateLimitExceed = 50011
	CodeMathOverflow    = 50020
	CodeInvalidParam    = 50021

	// Auth errors (50100-50199)
	CodeInvalidAPIKey    = 50100
	CodeAPIKeyExpired    = 50101
	CodeSignatureInvalid = 50102
	CodeTimestampInvalid = 50103
	CodeUnauthorized     = 50105

	// Trading errors (51000-51999)
	CodeMarketNotFound        = 51000
	CodeMarketInactive        = 51001
	CodeOrderNotFound         = 51002
	CodeOrderNotActive        = 51003
	CodeInvalidOrderSize      = 51005
	CodeInvalidOrderPrice     = 51006
	CodePositionNotFound      = 51008
	CodePositionClosed        = 51009
	CodeLeverageTooHigh       = 51010
	CodeInvalidOrderType      = 51011
	CodeInvalidSide           = 51012
	CodeOrderNotTriggered     = 51013
	CodeInvalidPosition       = 51014
	CodeInsufficientLiquidity = 51015
	CodeInvalidLeverage       = 51016

	// Account errors (52000-52999)
	CodeMarginAccountNotFound   = 52000
	CodeInsufficientMargin      = 52001
	CodeInsufficientCollateral  = 52002
	CodeMarginAccountExists     = 52003
	CodeDepositTooSmall         = 52004
	CodeWithdrawalTooSmall      = 52005
	CodeTransferFailed          = 52006
	CodeWithdrawalBelowMaintMgn = 52007

	// Risk control errors (53000-53999)
	CodePositionNotLiquidatable = 53000

	// Market admin, funding and oracle errors (54000-54999)
	CodeMarketAlreadyExists    = 54000
	CodeMarketAlreadyPaused    = 54001
	CodeMarketAlreadyActive    = 54002
	CodeInvalidMarketSymbol    = 54003
	CodeInvalidFundingRate     = 54004
	CodeInvalidFundingInterval = 54005
	CodeInvalidMarginRatio     = 54006
	CodeInvalidAMMState        = 54007
	CodeFundingNotDue          = 54008
	CodeInvalidOracleAccount   = 54100
	CodeStaleOraclePrice       = 54101
	CodePriceConfidenceTooLow  = 54102
	CodeOracleAlreadyExists    = 54103
)

var codeMessages = map[int]string{
	CodeSuccess:         "success",
	CodeOperationFailed: "operation failed",
	CodeSystemBusy:      "system busy",

	CodeEmptyRequest:    "request parameter is empty",
	CodeSystemError:     "system error",
	CodeJSONParseError:  "JSON parse error",
	CodeRequestTimeout:  "request timeout",
	CodeRateLimitExceed: "rate limit exceeded",
	CodeMathOverflow:    "math operation overflow",
	CodeInvalidParam:    "invalid parameter",

	CodeInvalidAPIKey:    "invalid API key",
	CodeAPIKeyExpired:    "API key expired",
	CodeSignatureInvalid: "signature verification failed",
	CodeTimestampInvalid: "invalid timestamp",
	CodeUnauthorized:     "unauthorized",

	CodeMarketNotFound:        "market not found",
	CodeMarketInactive:        "market is currently inactive",
	CodeOrderNotFound:         "order not found",
	CodeOrderNotActive:        "order is not active",
	CodeInvalidOrderSize:      "invalid order size",
	CodeInvalidOrderPrice:     "invalid order price",
	CodePositionNotFound:      "position not found",
	CodePositionClosed:        "position is already closed",
	CodeLeverageTooHigh:       "leverage exceeds maximum allowed",
	CodeInvalidOrderType:      "invalid order type",
	CodeInvalidSide:           "invalid side",
	CodeOrderNotTriggered:     "order trigger price not reached",
	CodeInvalidPosition:       "invalid position",
	CodeInsufficientLiquidity: "insufficient liquidity in the AMM",
	CodeInvalidLeverage:       "invalid leverage",

	CodeMarginAccountNotFound:   "margin account not found",
	CodeInsufficientMargin:      "insufficient margin",
	CodeInsufficientCollateral:  "insufficient collateral",
	CodeMarginAccountExists:     "margin account already exists",
	CodeDepositTooSmall:         "deposit amount is too small",
	CodeWithdrawalTooSmall:      "withdrawal amount is too small",
	CodeTransferFailed:          "transfer failed",
	CodeWithdrawalBelowMaintMgn: "withdrawal would put account below maintenance margin",

	CodePositionNotLiquidatable: "position is not liquidatable",

	CodeMarketAlreadyExists:    "market already exists",
	CodeMarketAlreadyPaused:    "market is already paused",
	CodeMarketAlreadyActive:    "market is already active",
	CodeInvalidMarketSymbol:    "invalid market symbol",
	CodeInvalidFundingRate:     "invalid funding rate",
	CodeInvalidFundingInterval: "invalid funding interval",
	CodeInvalidMarginRatio:     "invalid margin ratio",
	CodeInvalidAMMState:        "virtual reserves cannot be zero",
	CodeFundingNotDue:          "funding interval has not elapsed",
	CodeInvalidOracleAccount:   "invalid oracle account",
	CodeStaleOraclePrice:       "oracle price is stale",
	CodePriceConfidenceTooLow:  "oracle price confidence is too low",
	CodeOracleAlreadyExists:    "oracle already exists",
}

// AppError represents an application error
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code, so a wrapped or
// re-messaged error still matches its sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	switch {
	case e.Code == CodeSuccess:
		return http.StatusOK
	case e.Code == CodeSystemBusy:
		return http.StatusServiceUnavailable
	case e.Code == CodeSystemError || e.Code == CodeMathOverflow:
		return http.StatusInternalServerError
	case e.Code == CodeRateLimitExceed:
		return http.StatusTooManyRequests
	case e.Code == CodeUnauthorized:
		return http.StatusForbidden
	case e.Code >= 50100 && e.Code < 50200:
		return http.StatusUnauthorized
	case e.Code == CodeMarketNotFound || e.Code == CodeOrderNotFound ||
		e.Code == CodePositionNotFound || e.Code == CodeMarginAccountNotFound:
		return http.StatusNotFound
	case e.Code >= 50000 && e.Code < 53000:
		return http.StatusBadRequest
	case e.Code >= 53000 && e.Code < 54000:
		return http.StatusForbidden
	case e.Code >= 54000 && e.Code < 54100:
		return http.StatusConflict
	case e.Code >= 54100 && e.Code < 55000:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new AppError
func New(code int) *AppError {
	msg, ok := codeMessages[code]
	if !ok {
		msg = "unknown error"
	}
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message
func Newf(code int, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with AppError
func Wrap(code int, err error) *AppError {
	msg, ok := codeMessages[code]
	if !ok {
		msg = "unknown error"
	}
	return &AppError{Code: code, Message: msg, Err: err}
}

// WrapWithMessage wraps an error with custom message
func WrapWithMessage(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// IsAppError checks if err is, or wraps, an AppError
func IsAppError(err error) bool {
	_, ok := As(err)
	return ok
}

// As returns the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err matches target, comparing AppErrors by code
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// GetCode gets the error code, returns CodeSystemError if not AppError
func GetCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeSystemError
}

// Common errors
var (
	ErrSuccess          = New(CodeSuccess)
	ErrSystemError      = New(CodeSystemError)
	ErrSystemBusy       = New(CodeSystemBusy)
	ErrInvalidRequest   = New(CodeEmptyRequest)
	ErrRateLimit        = New(CodeRateLimitExceed)
	ErrInvalidAPIKey    = New(CodeInvalidAPIKey)
	ErrSignatureInvalid = New(CodeSignatureInvalid)
)

// Engine errors. Every rejected intent returns one of these.
var (
	ErrMathOverflow     = New(CodeMathOverflow)
	ErrInvalidParameter = New(CodeInvalidParam)
	ErrUnauthorized     = New(CodeUnauthorized)

	ErrMarketNotFound        = New(CodeMarketNotFound)
	ErrMarketInactive        = New(CodeMarketInactive)
	ErrOrderNotFound         = New(CodeOrderNotFound)
	ErrOrderNotActive        = New(CodeOrderNotActive)
	ErrInvalidOrderSize      = New(CodeInvalidOrderSize)
	ErrInvalidOrderPrice     = New(CodeInvalidOrderPrice)
	ErrPositionNotFound      = New(CodePositionNotFound)
	ErrPositionClosed        = New(CodePositionClosed)
	ErrLeverageTooHigh       = New(CodeLeverageTooHigh)
	ErrInvalidOrderType      = New(CodeInvalidOrderType)
	ErrInvalidSide           = New(CodeInvalidSide)
	ErrOrderNotTriggered     = New(CodeOrderNotTriggered)
	ErrInvalidPosition       = New(CodeInvalidPosition)
	ErrInsufficientLiquidity = New(CodeInsufficientLiquidity)
	ErrInvalidLeverage       = New(CodeInvalidLeverage)

	ErrMarginAccountNotFound            = New(CodeMarginAccountNotFound)
	ErrInsufficientMargin               = New(CodeInsufficientMargin)
	ErrInsufficientCollateral           = New(CodeInsufficientCollateral)
	ErrMarginAccountExists              = New(CodeMarginAccountExists)
	ErrDepositTooSmall                  = New(CodeDepositTooSmall)
	ErrWithdrawalTooSmall               = New(CodeWithdrawalTooSmall)
	ErrTransferFailed                   = New(CodeTransferFailed)
	ErrWithdrawalBelowMaintenanceMargin = New(CodeWithdrawalBelowMaintMgn)

	ErrPositionNotLiquidatable = New(CodePositionNotLiquidatable)

	ErrMarketAlreadyExists    = New(CodeMarketAlreadyExists)
	ErrMarketAlreadyPaused    = New(CodeMarketAlreadyPaused)
	ErrMarketAlreadyActive    = New(CodeMarketAlreadyActive)
	ErrInvalidMarketSymbol    = New(CodeInvalidMarketSymbol)
	ErrInvalidFundingRate     = New(CodeInvalidFundingRate)
	ErrInvalidFundingInterval = New(CodeInvalidFundingInterval)
	ErrInvalidMarginRatio     = New(CodeInvalidMarginRatio)
	ErrInvalidAMMState        = New(CodeInvalidAMMState)
	ErrFundingNotDue          = New(CodeFundingNotDue)
	ErrInvalidOracleAccount   = New(CodeInvalidOracleAccount)
	ErrStaleOraclePrice       = New(CodeStaleOraclePrice)
	ErrPriceConfidenceTooLow  = New(CodePriceConfidenceTooLow)
	ErrOracleAlreadyExists    = New(CodeOracleAlreadyExists)
)
