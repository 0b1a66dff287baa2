package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/middleware"
	"github.com/kevin07696/billing-service/internal/services/customer"
)

// CustomerHandler serves customer lifecycle endpoints
type CustomerHandler struct {
	svc *customer.Service
}

// NewCustomerHandler creates a customer handler
func NewCustomerHandler(svc *customer.Service) *CustomerHandler {
	return &CustomerHandler{svc: svc}
}

type createCustomerRequest struct {
	AppID              string            `json:"app_id"`
	ExternalCustomerID string            `json:"external_customer_id"`
	Email              string            `json:"email" binding:"required,email"`
	Name               string            `json:"name"`
	Metadata           map[string]string `json:"metadata"`
}

// Create handles POST /customers
func (h *CustomerHandler) Create(c *gin.Context) {
	var req createCustomerRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cust, err := h.svc.Create(c.Request.Context(), middleware.AppID(c), customer.CreateParams{
		ExternalCustomerID: req.ExternalCustomerID,
		Email:              req.Email,
		Name:               sanitizeText(req.Name),
		Metadata:           req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCustomerResponse(cust))
}

// Get handles GET /customers/:id. When external_customer_id is set the
// lookup goes by the caller's identifier instead.
func (h *CustomerHandler) Get(c *gin.Context) {
	appID := middleware.AppID(c)
	cust, err := h.svc.GetByID(c.Request.Context(), appID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(cust))
}

// GetByExternalID handles GET /customers?external_customer_id=...
func (h *CustomerHandler) GetByExternalID(c *gin.Context) {
	externalID := c.Query("external_customer_id")
	if externalID == "" {
		fail(c, validationRequired("external_customer_id"))
		return
	}
	cust, err := h.svc.GetByExternalID(c.Request.Context(), middleware.AppID(c), externalID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(cust))
}

type updateCustomerRequest struct {
	AppID    string            `json:"app_id"`
	Email    *string           `json:"email" binding:"omitempty,email"`
	Name     *string           `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// Update handles PUT /customers/:id
func (h *CustomerHandler) Update(c *gin.Context) {
	var req updateCustomerRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cust, err := h.svc.Update(c.Request.Context(), middleware.AppID(c), c.Param("id"), customer.UpdateParams{
		Email:    req.Email,
		Name:     sanitizeTextPtr(req.Name),
		Metadata: req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(cust))
}

type setDefaultMethodRequest struct {
	AppID              string `json:"app_id"`
	PaymentMethodToken string `json:"payment_method_token" binding:"required"`
}

// SetDefaultPaymentMethod handles PUT /customers/:id/default-payment-method
func (h *CustomerHandler) SetDefaultPaymentMethod(c *gin.Context) {
	var req setDefaultMethodRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cust, err := h.svc.SetDefaultPaymentMethod(c.Request.Context(), middleware.AppID(c), c.Param("id"), req.PaymentMethodToken)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerResponse(cust))
}
