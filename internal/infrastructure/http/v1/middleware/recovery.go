// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/pkg/logger"
)

// Recovery turns a panic into a 500 AppError. It must run inside
// ErrorHandler so the error is rendered.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			logger.Error(ctx, "panic recovered",
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)

			appErr := apperror.NewInternal(fmt.Errorf("panic: %v", rec))
			if t := appctx.GetTrace(ctx); t != nil {
				appErr = appErr.WithDetail("request_id", t.RequestID)
			}
			_ = c.Error(appErr)
			c.Abort()
		}()
		c.Next()
	}
}
