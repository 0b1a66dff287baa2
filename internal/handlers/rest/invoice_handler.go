package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/middleware"
	"github.com/kevin07696/billing-service/internal/services/invoice"
)

// InvoiceHandler serves quote preview and finalization endpoints
type InvoiceHandler struct {
	svc *invoice.Service
}

// NewInvoiceHandler creates an invoice handler
func NewInvoiceHandler(svc *invoice.Service) *InvoiceHandler {
	return &InvoiceHandler{svc: svc}
}

type quoteRequest struct {
	AppID                string   `json:"app_id"`
	CustomerID           string   `json:"customer_id"`
	SubtotalCents        int64    `json:"subtotal_cents" binding:"required,gt=0"`
	CouponCodes          []string `json:"coupon_codes"`
	JurisdictionOverride string   `json:"jurisdiction_override"`
	ProductTypes         []string `json:"product_types"`
	Quantity             int      `json:"quantity"`
}

// Quote handles POST /invoices/quote. Pure preview, no writes.
func (h *InvoiceHandler) Quote(c *gin.Context) {
	var req quoteRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	quote, err := h.svc.Preview(c.Request.Context(), middleware.AppID(c), invoice.QuoteParams{
		CustomerID:           req.CustomerID,
		SubtotalCents:        req.SubtotalCents,
		CouponCodes:          req.CouponCodes,
		JurisdictionOverride: req.JurisdictionOverride,
		ProductTypes:         req.ProductTypes,
		Quantity:             req.Quantity,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type finalizeRequest struct {
	AppID string         `json:"app_id"`
	Quote *invoice.Quote `json:"quote" binding:"required"`
}

// Finalize handles POST /invoices/:id/finalize, recording the audit rows
// for a committed quote.
func (h *InvoiceHandler) Finalize(c *gin.Context) {
	var req finalizeRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	if err := h.svc.Finalize(c.Request.Context(), middleware.AppID(c), c.Param("id"), req.Quote); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"finalized": true})
}
