// Package middleware holds the gin middleware chain: trace, logging,
// recovery, error mapping, tenant resolution, user context and
// idempotency.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	
	"magazzino/internal/core/apperror"
	"magazzino/pkg/logger"
)

// Recovery converts panics into 500 responses. The stack trace goes to
// the log, never to the client.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)

				_ = c.Error(
					apperror.NewInternal(fmt.Errorf("panic: %v", err)).
						WithDetail("request_id", c.GetString("request_id")),
				)
				c.Abort()
			}
		}()
		c.Next()
	}
}
