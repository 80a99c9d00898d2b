package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-router/internal/aggregator"
	"github.com/hxuan190/swap-router/internal/common"
	"github.com/hxuan190/swap-router/internal/services/quoter"
)

// RequestIDKey is the gin context key the request id middleware writes.
const RequestIDKey = "request_id"

type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	RequestID string      `json:"requestId,omitempty"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success:   true,
		Data:      data,
		RequestID: c.GetString(RequestIDKey),
	})
}

func Error(c *gin.Context, herr *common.HttpError) {
	c.AbortWithStatusJSON(herr.StatusCode, Response{
		Success:   false,
		Error:     herr.Message,
		Code:      herr.Code,
		RequestID: c.GetString(RequestIDKey),
	})
}

func BadRequest(c *gin.Context, msg string) {
	Error(c, common.HTTPErrorBadRequest(msg))
}

func NotFound(c *gin.Context, msg string) {
	Error(c, common.HTTPErrorNotFound(msg))
}

// HandleError writes err with the status its type maps to.
func HandleError(c *gin.Context, err error) {
	Error(c, MapError(err))
}

// MapError translates routing errors to HTTP errors. No route is a 404
// because it is a normal outcome for an illiquid pair; node trouble is a
// 502 so clients can tell it apart from their own mistakes.
func MapError(err error) *common.HttpError {
	var (
		noRoute   *aggregator.NoRouteFoundError
		badConfig *quoter.ConfigurationError
		exhausted *quoter.ExhaustedError
		transport *quoter.TransportError
	)
	switch {
	case errors.As(err, &noRoute):
		return common.HTTPErrorNotFound(err.Error())
	case errors.Is(err, aggregator.ErrInvalidRequest), errors.As(err, &badConfig):
		return common.HTTPErrorBadRequest(err.Error())
	case errors.Is(err, aggregator.ErrNotReady):
		return common.HTTPErrorServiceUnavailable(err.Error())
	case errors.As(err, &exhausted), errors.As(err, &transport), errors.Is(err, context.DeadlineExceeded):
		return common.HTTPErrorBadGateway(err.Error())
	default:
		return common.HTTPErrorInternalError("")
	}
}
