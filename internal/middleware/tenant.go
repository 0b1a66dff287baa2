package middleware

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/domain"
	"go.uber.org/zap"
)

// ContextAppID is the gin context key holding the verified tenant id
const ContextAppID = "app_id"

// identityHeader carries the authenticated app identity from the upstream
// gateway, when one fronts this service.
const identityHeader = "X-App-Id"

// AppID returns the verified tenant id set by TenantResolver
func AppID(c *gin.Context) string {
	return c.GetString(ContextAppID)
}

// TenantResolver extracts app_id from the path, query, or JSON body (in
// that order) and cross-checks it against the upstream identity header.
// A mismatch is forbidden; downstream handlers read only the verified id.
func TenantResolver(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.Param("app_id")
		if appID == "" {
			appID = c.Query("app_id")
		}
		if appID == "" {
			appID = appIDFromBody(c)
		}
		if appID == "" {
			abortWithError(c, domain.NewValidationError("app_id", "app_id is required"))
			return
		}

		if identity := c.GetHeader(identityHeader); identity != "" && identity != appID {
			logger.Warn("tenant mismatch rejected",
				zap.String("authenticated_app_id", identity),
				zap.String("requested_app_id", appID),
				zap.String("source_ip", c.ClientIP()),
			)
			abortWithError(c, domain.ErrAppMismatch)
			return
		}

		c.Set(ContextAppID, appID)
		c.Next()
	}
}

func appIDFromBody(c *gin.Context) string {
	body := peekBody(c)
	if len(body) == 0 {
		return ""
	}
	var probe struct {
		AppID string `json:"app_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return probe.AppID
}

// peekBody reads the request body and puts it back so later decoders see
// the same bytes.
func peekBody(c *gin.Context) []byte {
	if c.Request.Body == nil {
		return nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
