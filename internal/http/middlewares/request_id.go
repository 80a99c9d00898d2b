package middlewares

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hxuan190/swap-router/internal/common"
	"github.com/hxuan190/swap-router/internal/http/httputil"
)

const maxRequestIDLen = 64

// RequestIDMiddleware accepts the caller's request id or mints one, and
// echoes it in the response header.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(common.RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(httputil.RequestIDKey, id)
		c.Header(common.RequestIDHeader, id)
		c.Next()
	}
}
