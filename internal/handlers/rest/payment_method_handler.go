package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/middleware"
	"github.com/kevin07696/billing-service/internal/services/paymentmethod"
)

// PaymentMethodHandler serves tokenized payment method endpoints. Raw
// instrument data never reaches these handlers; the PCI middleware
// rejects it upstream.
type PaymentMethodHandler struct {
	svc *paymentmethod.Service
}

// NewPaymentMethodHandler creates a payment method handler
func NewPaymentMethodHandler(svc *paymentmethod.Service) *PaymentMethodHandler {
	return &PaymentMethodHandler{svc: svc}
}

type addPaymentMethodRequest struct {
	AppID              string `json:"app_id"`
	CustomerID         string `json:"customer_id" binding:"required"`
	PaymentMethodToken string `json:"payment_method_token" binding:"required"`
	SetDefault         bool   `json:"set_default"`
}

// Add handles POST /payment-methods
func (h *PaymentMethodHandler) Add(c *gin.Context) {
	var req addPaymentMethodRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	method, err := h.svc.Add(c.Request.Context(), middleware.AppID(c), req.CustomerID, req.PaymentMethodToken, req.SetDefault)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPaymentMethodResponse(method))
}

// List handles GET /payment-methods?customer_id=...
func (h *PaymentMethodHandler) List(c *gin.Context) {
	customerID := c.Query("customer_id")
	if customerID == "" {
		fail(c, validationRequired("customer_id"))
		return
	}

	methods, err := h.svc.List(c.Request.Context(), middleware.AppID(c), customerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": toPaymentMethodResponses(methods)})
}

// Delete handles DELETE /payment-methods/:token?customer_id=...
func (h *PaymentMethodHandler) Delete(c *gin.Context) {
	customerID := c.Query("customer_id")
	if customerID == "" {
		fail(c, validationRequired("customer_id"))
		return
	}

	if err := h.svc.Delete(c.Request.Context(), middleware.AppID(c), customerID, c.Param("token")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setDefaultRequest struct {
	AppID      string `json:"app_id"`
	CustomerID string `json:"customer_id" binding:"required"`
}

// SetDefault handles PUT /payment-methods/:token/default
func (h *PaymentMethodHandler) SetDefault(c *gin.Context) {
	var req setDefaultRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	method, err := h.svc.SetDefault(c.Request.Context(), middleware.AppID(c), req.CustomerID, c.Param("token"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentMethodResponse(method))
}
