package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/middleware"
	"github.com/kevin07696/billing-service/internal/services/charge"
	"github.com/kevin07696/billing-service/internal/services/refund"
)

// ChargeHandler serves one-time charge and refund endpoints. Both carry
// two idempotency layers: the Idempotency-Key header caches the HTTP
// response, reference_id deduplicates the business operation.
type ChargeHandler struct {
	charges *charge.Service
	refunds *refund.Service
}

// NewChargeHandler creates a charge handler
func NewChargeHandler(charges *charge.Service, refunds *refund.Service) *ChargeHandler {
	return &ChargeHandler{charges: charges, refunds: refunds}
}

type createChargeRequest struct {
	AppID              string            `json:"app_id"`
	CustomerID         string            `json:"customer_id"`
	ExternalCustomerID string            `json:"external_customer_id"`
	AmountCents        int64             `json:"amount_cents" binding:"required,gt=0"`
	Currency           string            `json:"currency"`
	Reason             string            `json:"reason"`
	ReferenceID        string            `json:"reference_id" binding:"required"`
	Note               string            `json:"note"`
	Metadata           map[string]string `json:"metadata"`
}

// CreateOneTime handles POST /charges/one-time
func (h *ChargeHandler) CreateOneTime(c *gin.Context) {
	var req createChargeRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	ch, replayed, err := h.charges.CreateOneTime(c.Request.Context(), middleware.AppID(c), charge.CreateParams{
		ExternalCustomerID: req.ExternalCustomerID,
		CustomerID:         req.CustomerID,
		AmountCents:        req.AmountCents,
		Currency:           req.Currency,
		Reason:             sanitizeText(req.Reason),
		ReferenceID:        req.ReferenceID,
		Note:               sanitizeText(req.Note),
		Metadata:           req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}

	// Domain replays return the existing row with the created status so
	// retries are indistinguishable from the first attempt.
	c.JSON(http.StatusCreated, toChargeResponse(ch, replayed))
}

// Get handles GET /charges/:id
func (h *ChargeHandler) Get(c *gin.Context) {
	ch, err := h.charges.GetByID(c.Request.Context(), middleware.AppID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toChargeResponse(ch, false))
}

// List handles GET /charges?customer_id=...
func (h *ChargeHandler) List(c *gin.Context) {
	customerID := c.Query("customer_id")
	if customerID == "" {
		fail(c, validationRequired("customer_id"))
		return
	}

	charges, err := h.charges.ListByCustomer(c.Request.Context(), middleware.AppID(c), customerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"charges": toChargeResponses(charges)})
}

type createRefundRequest struct {
	AppID       string            `json:"app_id"`
	ChargeID    string            `json:"charge_id" binding:"required"`
	AmountCents int64             `json:"amount_cents" binding:"required,gt=0"`
	Reason      string            `json:"reason"`
	ReferenceID string            `json:"reference_id" binding:"required"`
	Metadata    map[string]string `json:"metadata"`
}

// CreateRefund handles POST /refunds
func (h *ChargeHandler) CreateRefund(c *gin.Context) {
	var req createRefundRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	rf, replayed, err := h.refunds.Create(c.Request.Context(), middleware.AppID(c), refund.CreateParams{
		ChargeID:    req.ChargeID,
		AmountCents: req.AmountCents,
		Reason:      sanitizeText(req.Reason),
		ReferenceID: req.ReferenceID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, toRefundResponse(rf, replayed))
}

// GetRefund handles GET /refunds/:id
func (h *ChargeHandler) GetRefund(c *gin.Context) {
	rf, err := h.refunds.GetByID(c.Request.Context(), middleware.AppID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toRefundResponse(rf, false))
}
