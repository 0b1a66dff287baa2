package middleware

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/domain"
	"go.uber.org/zap"
)

// forbiddenFields are raw instrument fields this service must never accept.
// Card and bank data enter only through the PSP's hosted tokenization flow.
var forbiddenFields = map[string]struct{}{
	"card_number":    {},
	"card_cvv":       {},
	"cvv":            {},
	"cvc":            {},
	"account_number": {},
	"routing_number": {},
}

// PCIReject scans write-route bodies for raw card or bank fields and
// rejects the request before any handler sees it. Field matching is
// case-insensitive and recursive through nested objects and arrays.
func PCIReject(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := peekBody(c)
		if len(body) == 0 {
			c.Next()
			return
		}

		var payload interface{}
		if err := json.Unmarshal(body, &payload); err != nil {
			// The validator rejects malformed JSON with field detail.
			c.Next()
			return
		}

		if field := findForbiddenField(payload); field != "" {
			logger.Warn("PCI violation rejected",
				zap.String("field", field),
				zap.String("path", c.Request.URL.Path),
				zap.String("source_ip", c.ClientIP()),
			)
			err := domain.NewDomainError(domain.ErrorCodePCIViolation,
				"raw card or bank account data is not accepted; use the hosted tokenization flow")
			abortWithError(c, err.WithFieldError(field, "field is not accepted"))
			return
		}
		c.Next()
	}
}

func findForbiddenField(v interface{}) string {
	switch node := v.(type) {
	case map[string]interface{}:
		for key, child := range node {
			if _, bad := forbiddenFields[strings.ToLower(key)]; bad {
				return strings.ToLower(key)
			}
			if field := findForbiddenField(child); field != "" {
				return field
			}
		}
	case []interface{}:
		for _, child := range node {
			if field := findForbiddenField(child); field != "" {
				return field
			}
		}
	}
	return ""
}
