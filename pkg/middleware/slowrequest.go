package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/go-blob-kit/pkg/logging"
)

// TelemetryClient receives slow and failed requests.
type TelemetryClient interface {
	RecordSlowRequest(ctx context.Context, path string, durationMs int64, traceID, requestID string)
	RecordError(ctx context.Context, path, errorMsg string, statusCode int, traceID, requestID string)
}

// SlowRequestMiddleware reports requests slower than slowThresholdMs and
// requests that end in a 5xx to telemetryClient.
func SlowRequestMiddleware(slowThresholdMs int64, telemetryClient TelemetryClient, logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		if telemetryClient == nil {
			return
		}

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		latencyMs := time.Since(start).Milliseconds()
		traceID := GetTraceIDFromGin(c)
		requestID := GetRequestIDFromGin(c)

		if slowThresholdMs > 0 && latencyMs > slowThresholdMs {
			logger.Warn("Slow request detected",
				logging.NewField("path", path),
				logging.NewField("duration_ms", latencyMs),
				logging.NewField("threshold_ms", slowThresholdMs),
			)
			telemetryClient.RecordSlowRequest(c.Request.Context(), path, latencyMs, traceID, requestID)
		}

		if status := c.Writer.Status(); status >= http.StatusInternalServerError {
			errorMsg := http.StatusText(status)
			if len(c.Errors) > 0 {
				errorMsg = c.Errors.Last().Error()
			}
			// ErrorHandlerMiddleware has already logged it
			telemetryClient.RecordError(c.Request.Context(), path, errorMsg, status, traceID, requestID)
		}
	}
}
