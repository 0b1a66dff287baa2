package middleware

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/services/idempotency"
	"go.uber.org/zap"
)

// idempotencyKeyHeader is the client-supplied replay key
const idempotencyKeyHeader = "Idempotency-Key"

// replayHeader marks a response served from the replay cache
const replayHeader = "Idempotency-Replayed"

// responseRecorder captures the response body as the handler writes it so
// it can be cached after completion.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseRecorder) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// Idempotency is the request-level replay cache. It runs before any side
// effect: a key seen before with the same request hash returns the cached
// response verbatim; the same key with a different hash conflicts. Fresh
// requests run the handler and cache the completed response.
func Idempotency(svc *idempotency.Service, mapper *ErrorMapper, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			abortWithError(c, domain.NewValidationError("Idempotency-Key", "Idempotency-Key header is required"))
			return
		}
		appID := AppID(c)

		body := peekBody(c)
		hash := idempotency.RequestHash(c.Request.Method, c.Request.URL.Path, body)

		record, err := svc.Lookup(c.Request.Context(), appID, key, hash)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if record != nil {
			c.Header(replayHeader, "true")
			c.Data(record.StatusCode, "application/json", record.ResponseBody)
			c.Abort()
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		// The error response must exist before it can be cached, so mapping
		// happens here rather than in the terminal middleware.
		if len(c.Errors) > 0 && !recorder.Written() {
			mapper.Write(c, c.Errors.Last().Err)
		}

		status := recorder.Status()
		if status >= 500 && status != http.StatusBadGateway {
			// Internal failures stay retryable; everything the caller can
			// act on (including PSP declines) replays verbatim.
			return
		}
		if _, err := svc.Save(c.Request.Context(), appID, key, hash, status, recorder.body.Bytes()); err != nil {
			logger.Error("failed to cache idempotent response",
				zap.String("app_id", appID),
				zap.String("idempotency_key", key),
				zap.Error(err),
			)
		}
	}
}
