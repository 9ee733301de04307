package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yourorg/go-blob-kit/pkg/logging"
)

// ContextLoggerMiddleware attaches a request-scoped logger to the request
// context. It must run after TracingMiddleware and RequestIDMiddleware.
func ContextLoggerMiddleware(baseLogger logging.Logger, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := []logging.Field{
			logging.NewField("service", serviceName),
			logging.NewField("method", c.Request.Method),
		}
		if traceID := GetTraceIDFromGin(c); traceID != "" {
			fields = append(fields, logging.NewField("trace_id", traceID))
		}
		if requestID := GetRequestIDFromGin(c); requestID != "" {
			fields = append(fields, logging.NewField("request_id", requestID))
		}

		ctx := logging.WithLogger(c.Request.Context(), baseLogger.With(fields...))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
