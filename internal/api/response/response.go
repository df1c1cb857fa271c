package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vammperp/backend/internal/pkg/errors"
)

// Response represents the standard API response
type Response struct {
	Code int         `json:"code"`
	Msg  string      `json:"msg"`
	Data interface{} `json:"data"`
}

// PagedResponse represents a paginated response
type PagedResponse struct {
	List     interface{} `json:"list"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

// Success returns a successful response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code: errors.CodeSuccess,
		Msg:  "success",
		Data: data,
	})
}

// SuccessPaged returns a paginated successful response
func SuccessPaged(c *gin.Context, list interface{}, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, Response{
		Code: errors.CodeSuccess,
		Msg:  "success",
		Data: PagedResponse{
			List:     list,
			Total:    total,
			Page:     page,
			PageSize: pageSize,
		},
	})
}

// Error returns an error response. AppErrors anywhere in the chain keep their
// code; anything else is a system error whose text is not exposed.
func Error(c *gin.Context, err error) {
	if appErr, ok := errors.As(err); ok {
		c.JSON(appErr.HTTPStatus(), Response{
			Code: appErr.Code,
			Msg:  appErr.Message,
			Data: nil,
		})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, Response{
		Code: errors.CodeSystemError,
		Msg:  "system error",
		Data: nil,
	})
}

// ErrorWithCode returns an error response with specific code
func ErrorWithCode(c *gin.Context, code int, msg string) {
	appErr := errors.Newf(code, "%s", msg)
	c.JSON(appErr.HTTPStatus(), Response{
		Code: code,
		Msg:  msg,
		Data: nil,
	})
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}
