package middleware

import (
	"context"
	"strings"

	"hsoj/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"
	userIDHeader    = "X-User-Id"
)

// TraceContextMiddleware ensures trace/request/user id are in context and response headers.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		traceID := headerOrNewID(c, traceIDHeader)
		ctx = context.WithValue(ctx, contextkey.TraceID, traceID)
		c.Writer.Header().Set(traceIDHeader, traceID)

		requestID := headerOrNewID(c, requestIDHeader)
		ctx = context.WithValue(ctx, contextkey.RequestID, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		if userID := strings.TrimSpace(c.GetHeader(userIDHeader)); userID != "" {
			ctx = context.WithValue(ctx, contextkey.UserID, userID)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func headerOrNewID(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	return uuid.NewString()
}
