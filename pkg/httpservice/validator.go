package httpservice

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/yourorg/go-blob-kit/pkg/errors"
)

var validate = validator.New()

// BindQuery binds query parameters into req and validates its `validate`
// tags. Failures are returned as validation errors.
func BindQuery(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindQuery(req); err != nil {
		return errors.NewAppErrorWithErr(errors.ErrorCodeValidation, "invalid query parameters", err)
	}

	if err := validate.Struct(req); err != nil {
		return errors.NewAppErrorWithErr(errors.ErrorCodeValidation, "validation failed: "+err.Error(), err)
	}

	return nil
}
