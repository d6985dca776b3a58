package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	
	"magazzino/internal/core/apperror"
	"magazzino/internal/infrastructure/storage/postgres"
	"magazzino/pkg/logger"
)

// replayableFailure reports whether a failed outcome may be cached
// against the idempotency key. BUSY and other 5xx outcomes mean
// "resubmit": caching them would replay the failure on every retry and
// the intent could never be applied.
func replayableFailure(status int) bool {
	return status < http.StatusInternalServerError
}

// ErrorHandler turns errors registered on the gin context into the one
// JSON error shape the API speaks. Wrapped causes are logged but never
// leak to the client.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		
		if len(c.Errors) == 0 {
			return
		}
		
		err := c.Errors.Last().Err

		if c.Writer.Written() {
			return
		}
		
		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(c.Request.Context(), "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}
			
			body := gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			}

			// terminal failures are stored so a retried key replays
			// them; retryable ones release the key so the resubmit
			// re-executes
			if key, exists := c.Get("idempotency_key"); exists {
				if store, ok := c.Get("idempotency_store"); ok {
					if s, ok := store.(*postgres.IdempotencyStore); ok && s != nil {
						if replayableFailure(appErr.HTTPStatus) {
							_ = s.FailKey(c.Request.Context(), key.(string), appErr.HTTPStatus, "application/json", body)
						} else {
							_ = s.ReleaseKey(c.Request.Context(), key.(string))
						}
					}
				}
			}

			c.JSON(appErr.HTTPStatus, body)
			return
		}
		
		logger.Error(c.Request.Context(), "unhandled error",
			"error", err,
		)
		
		body := gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": map[string]any{
				"request_id": c.GetString("request_id"),
			},
		}

		// unknown errors are never cached; the retry should re-execute
		if key, exists := c.Get("idempotency_key"); exists {
			if store, ok := c.Get("idempotency_store"); ok {
				if s, ok := store.(*postgres.IdempotencyStore); ok && s != nil {
					_ = s.ReleaseKey(c.Request.Context(), key.(string))
				}
			}
		}

		c.JSON(500, body)
	}
}
