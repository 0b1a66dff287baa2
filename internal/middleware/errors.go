package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/domain"
	"go.uber.org/zap"
)

// ErrorMapper is the terminal translator from domain errors to HTTP
// responses. Handlers and middleware record errors with c.Error; the
// mapper writes whichever error arrived last, once, if nothing else
// already produced a response.
type ErrorMapper struct {
	production bool
	logger     *zap.Logger
}

// NewErrorMapper creates an error mapper. In production mode internal
// error bodies carry no detail.
func NewErrorMapper(production bool, logger *zap.Logger) *ErrorMapper {
	return &ErrorMapper{production: production, logger: logger}
}

// Middleware returns the terminal error-mapping middleware
func (m *ErrorMapper) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		m.Write(c, c.Errors.Last().Err)
	}
}

// Write maps err to a status code and JSON body and writes it
func (m *ErrorMapper) Write(c *gin.Context, err error) {
	status, body := m.mapError(err)
	if status >= 500 {
		m.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, body)
}

func (m *ErrorMapper) mapError(err error) (int, gin.H) {
	var derr *domain.DomainError
	if !errors.As(err, &derr) {
		return m.internal(err)
	}

	payload := gin.H{
		"code":    derr.Code,
		"message": derr.Message,
	}
	if len(derr.FieldErrors) > 0 {
		payload["fields"] = derr.FieldErrors
	}
	if len(derr.Details) > 0 {
		payload["details"] = derr.Details
	}

	switch {
	case domain.IsValidationError(err):
		return http.StatusBadRequest, gin.H{"error": payload}
	case domain.IsNotFoundError(err):
		return http.StatusNotFound, gin.H{"error": payload}
	case derr.Code == domain.ErrorCodeForbidden, derr.Code == domain.ErrorCodeAppMismatch:
		return http.StatusForbidden, gin.H{"error": payload}
	case derr.Code == domain.ErrorCodeUnauthorized,
		derr.Code == domain.ErrorCodeInvalidSignature,
		derr.Code == domain.ErrorCodeStaleTimestamp,
		derr.Code == domain.ErrorCodeMissingCredential:
		return http.StatusUnauthorized, gin.H{"error": payload}
	case domain.IsConflictError(err):
		return http.StatusConflict, gin.H{"error": payload}
	case domain.IsProcessorError(err):
		payload["psp_code"] = derr.ProcessorCode
		payload["psp_message"] = derr.ProcessorMessage
		return http.StatusBadGateway, gin.H{"error": payload}
	case derr.Code == domain.ErrorCodeBackpressure:
		return http.StatusServiceUnavailable, gin.H{"error": payload}
	default:
		return m.internal(err)
	}
}

func (m *ErrorMapper) internal(err error) (int, gin.H) {
	payload := gin.H{
		"code":    domain.ErrorCodeInternalError,
		"message": "internal server error",
	}
	if !m.production {
		payload["detail"] = err.Error()
	}
	return http.StatusInternalServerError, gin.H{"error": payload}
}
