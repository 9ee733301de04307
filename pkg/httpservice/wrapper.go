package httpservice

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/go-blob-kit/pkg/logging"
	"github.com/yourorg/go-blob-kit/pkg/middleware"
)

// HandlerFunc is a handler function that returns an error.
type HandlerFunc func(c *gin.Context) error

// Wrap adapts a HandlerFunc to gin. Entry and exit are logged at debug level
// and a returned error is handed to middleware.ErrorHandlerMiddleware, which
// logs it and writes the response.
func Wrap(handlerName string, fn HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := GetLogger(c).With(logging.NewField("handler", handlerName))
		start := time.Now()

		logger.Debug("Handler started", logging.NewField("path", c.Request.URL.Path))

		if err := fn(c); err != nil {
			middleware.SetError(c, err)
			return
		}

		logger.Debug("Handler completed",
			logging.NewField("latency_ms", time.Since(start).Milliseconds()),
		)
	}
}
