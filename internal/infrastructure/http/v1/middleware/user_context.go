// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "magazzino/internal/core/context"
)

const (
	// UserHeader carries the acting user's identifier, set by the
	// authenticating gateway in front of this service.
	UserHeader = "X-User-ID"

	// UserEmailHeader carries the acting user's email, if known.
	UserEmailHeader = "X-User-Email"
)

// UserContext propagates the acting user from request headers into the
// request context, where the domain layer reads it for created_by stamps
// and audit entries. Authentication itself happens upstream.
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserHeader)
		if userID != "" {
			ctx := appctx.WithUser(c.Request.Context(), &appctx.UserContext{
				UserID: userID,
				Email:  c.GetHeader(UserEmailHeader),
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
