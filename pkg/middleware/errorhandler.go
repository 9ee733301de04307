package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourorg/go-blob-kit/pkg/errors"
	"github.com/yourorg/go-blob-kit/pkg/logging"
)

// ErrorHandlerMiddleware renders the last error recorded on the context as
// a JSON {code, message} body with the status of its error code.
func ErrorHandlerMiddleware(logger logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := errors.FromError(c.Errors.Last().Err)

		ctxLogger := logging.FromContextOr(c.Request.Context(), logger)
		fields := []logging.Field{
			logging.NewField("path", c.Request.URL.Path),
			logging.NewField("code", string(appErr.Code)),
			logging.NewField("status_code", appErr.HTTPStatus),
			logging.NewField("error", appErr.Error()),
		}
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			ctxLogger.Error("Request failed", fields...)
		} else {
			ctxLogger.Warn("Request failed", fields...)
		}

		if !c.Writer.Written() {
			c.JSON(appErr.HTTPStatus, appErr.ToErrorResponse())
		}
	}
}

// SetError records err on the context for ErrorHandlerMiddleware and stops
// the handler chain.
func SetError(c *gin.Context, err error) {
	_ = c.Error(errors.FromError(err))
	c.Abort()
}
