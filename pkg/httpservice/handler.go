package httpservice

import (
	"github.com/gin-gonic/gin"

	"github.com/yourorg/go-blob-kit/pkg/logging"
)

// Handler defines an interface for registering HTTP handlers.
type Handler interface {
	Register(router gin.IRouter)
}

// GetLogger retrieves the contextual logger from the request.
func GetLogger(c *gin.Context) logging.Logger {
	return logging.FromContext(c.Request.Context())
}
