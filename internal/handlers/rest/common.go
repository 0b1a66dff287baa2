package rest

import (
	"errors"
	"html"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/kevin07696/billing-service/internal/domain"
)

// bindJSON decodes and validates the request body, translating binding
// failures into field-level validation errors.
func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			derr := domain.NewDomainError(domain.ErrorCodeValidationFailed, "validation failed")
			for _, fe := range verrs {
				derr = derr.WithFieldError(fe.Field(), "failed validation: "+fe.Tag())
			}
			return derr
		}
		return domain.NewValidationError("", "request body is not valid JSON")
	}
	return nil
}

// fail records err for the terminal error mapper and stops the chain
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func validationRequired(field string) error {
	return domain.NewValidationError(field, field+" is required")
}

// sanitizeText trims and HTML-escapes a free-text field before it
// reaches the services. Identifiers and tokens are never escaped.
func sanitizeText(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

func sanitizeTextPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := sanitizeText(*p)
	return &s
}
