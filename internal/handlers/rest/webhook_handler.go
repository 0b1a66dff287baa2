package rest

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/services/webhook"
)

// signatureHeader carries the PSP's timestamped HMAC signature
const signatureHeader = "tilled-signature"

// WebhookHandler ingests PSP webhook deliveries. The raw body is read
// verbatim: the signature covers the exact bytes on the wire, so no
// middleware may consume or rewrite it first.
type WebhookHandler struct {
	svc *webhook.Service
}

// NewWebhookHandler creates a webhook handler
func NewWebhookHandler(svc *webhook.Service) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Ingest handles POST /webhooks/:app_id
func (h *WebhookHandler) Ingest(c *gin.Context) {
	appID := c.Param("app_id")
	if appID == "" {
		fail(c, domain.NewValidationError("app_id", "app_id is required"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, domain.NewValidationError("body", "could not read request body"))
		return
	}

	result, err := h.svc.Ingest(c.Request.Context(), appID, body, c.GetHeader(signatureHeader))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Replay handles POST /webhooks/:app_id/events/:event_id/replay. Operator
// tool: the stored envelope is re-dispatched without signature
// verification.
func (h *WebhookHandler) Replay(c *gin.Context) {
	appID := c.Param("app_id")
	eventID := c.Param("event_id")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fail(c, domain.NewValidationError("body", "could not read request body"))
		return
	}

	if err := h.svc.Replay(c.Request.Context(), appID, eventID, body); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": true})
}
