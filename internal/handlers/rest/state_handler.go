package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/middleware"
	"github.com/kevin07696/billing-service/internal/services/state"
)

// StateHandler serves the composed billing-state snapshot
type StateHandler struct {
	svc *state.Service
}

// NewStateHandler creates a state handler
func NewStateHandler(svc *state.Service) *StateHandler {
	return &StateHandler{svc: svc}
}

// Snapshot handles GET /state?app_id=...&external_customer_id=...
func (h *StateHandler) Snapshot(c *gin.Context) {
	externalID := c.Query("external_customer_id")
	if externalID == "" {
		fail(c, validationRequired("external_customer_id"))
		return
	}

	snap, err := h.svc.Snapshot(c.Request.Context(), middleware.AppID(c), externalID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
