package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/middleware"
	"github.com/kevin07696/billing-service/internal/services/subscription"
)

// SubscriptionHandler serves subscription lifecycle and proration endpoints
type SubscriptionHandler struct {
	svc *subscription.Service
}

// NewSubscriptionHandler creates a subscription handler
func NewSubscriptionHandler(svc *subscription.Service) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

type createSubscriptionRequest struct {
	AppID              string            `json:"app_id"`
	CustomerID         string            `json:"customer_id" binding:"required"`
	PlanID             string            `json:"plan_id" binding:"required"`
	PlanName           string            `json:"plan_name"`
	PriceCents         int64             `json:"price_cents" binding:"required,gt=0"`
	IntervalUnit       string            `json:"interval_unit" binding:"required"`
	IntervalCount      int               `json:"interval_count"`
	PaymentMethodToken string            `json:"payment_method_token"`
	BillingCycleAnchor *time.Time        `json:"billing_cycle_anchor"`
	Metadata           map[string]string `json:"metadata"`
}

// Create handles POST /subscriptions
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req createSubscriptionRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	sub, err := h.svc.Create(c.Request.Context(), middleware.AppID(c), subscription.CreateParams{
		CustomerID:         req.CustomerID,
		PlanID:             req.PlanID,
		PlanName:           sanitizeText(req.PlanName),
		PriceCents:         req.PriceCents,
		IntervalUnit:       req.IntervalUnit,
		IntervalCount:      req.IntervalCount,
		PaymentMethodToken: req.PaymentMethodToken,
		BillingCycleAnchor: req.BillingCycleAnchor,
		Metadata:           req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(sub))
}

// Get handles GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	sub, err := h.svc.GetByID(c.Request.Context(), middleware.AppID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

// List handles GET /subscriptions?customer_id=...
func (h *SubscriptionHandler) List(c *gin.Context) {
	customerID := c.Query("customer_id")
	if customerID == "" {
		fail(c, validationRequired("customer_id"))
		return
	}

	subs, err := h.svc.ListByCustomer(c.Request.Context(), middleware.AppID(c), customerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": toSubscriptionResponses(subs)})
}

// Update handles PUT /subscriptions/:id. Only plan fields, price, and
// metadata are updatable; anything else is rejected by name.
func (h *SubscriptionHandler) Update(c *gin.Context) {
	var fields map[string]interface{}
	if err := bindJSON(c, &fields); err != nil {
		fail(c, err)
		return
	}
	delete(fields, "app_id")

	sub, err := h.svc.Update(c.Request.Context(), middleware.AppID(c), c.Param("id"), fields)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

// Cancel handles DELETE /subscriptions/:id?at_period_end=true|false
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	atPeriodEnd := c.DefaultQuery("at_period_end", "true") != "false"

	sub, err := h.svc.Cancel(c.Request.Context(), middleware.AppID(c), c.Param("id"), atPeriodEnd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

type changeCycleRequest struct {
	AppID              string            `json:"app_id"`
	CustomerID         string            `json:"customer_id" binding:"required"`
	FromSubscriptionID string            `json:"from_subscription_id" binding:"required"`
	NewPlanID          string            `json:"new_plan_id" binding:"required"`
	NewPlanName        string            `json:"new_plan_name"`
	PriceCents         int64             `json:"price_cents" binding:"required,gt=0"`
	IntervalUnit       string            `json:"interval_unit" binding:"required"`
	IntervalCount      int               `json:"interval_count"`
	Metadata           map[string]string `json:"metadata"`
}

// ChangeCycle handles POST /subscriptions/change-cycle
func (h *SubscriptionHandler) ChangeCycle(c *gin.Context) {
	var req changeCycleRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	sub, err := h.svc.ChangeCycle(c.Request.Context(), middleware.AppID(c), subscription.ChangeCycleParams{
		CustomerID:         req.CustomerID,
		FromSubscriptionID: req.FromSubscriptionID,
		NewPlanID:          req.NewPlanID,
		NewPlanName:        sanitizeText(req.NewPlanName),
		PriceCents:         req.PriceCents,
		IntervalUnit:       req.IntervalUnit,
		IntervalCount:      req.IntervalCount,
		Metadata:           req.Metadata,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(sub))
}

type prorationRequest struct {
	AppID          string     `json:"app_id"`
	SubscriptionID string     `json:"subscription_id" binding:"required"`
	NewPriceCents  int64      `json:"new_price_cents" binding:"required"`
	ChangeDate     *time.Time `json:"change_date"`
}

// CalculateProration handles POST /proration/calculate. Pure preview, no
// writes.
func (h *SubscriptionHandler) CalculateProration(c *gin.Context) {
	var req prorationRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	changeDate := time.Now().UTC()
	if req.ChangeDate != nil {
		changeDate = *req.ChangeDate
	}

	result, err := h.svc.CalculateProration(c.Request.Context(), middleware.AppID(c), req.SubscriptionID, req.NewPriceCents, changeDate)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type applyProrationRequest struct {
	AppID         string     `json:"app_id"`
	NewPriceCents int64      `json:"new_price_cents" binding:"required"`
	ChangeDate    *time.Time `json:"change_date"`
}

// ApplyProration handles POST /subscriptions/:id/proration/apply
func (h *SubscriptionHandler) ApplyProration(c *gin.Context) {
	var req applyProrationRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	changeDate := time.Now().UTC()
	if req.ChangeDate != nil {
		changeDate = *req.ChangeDate
	}

	result, err := h.svc.ApplyProration(c.Request.Context(), middleware.AppID(c), c.Param("id"), req.NewPriceCents, changeDate)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type cancellationRefundRequest struct {
	AppID      string     `json:"app_id"`
	CancelDate *time.Time `json:"cancel_date"`
}

// CancellationRefundPreview handles POST /subscriptions/:id/proration/cancellation-refund
func (h *SubscriptionHandler) CancellationRefundPreview(c *gin.Context) {
	var req cancellationRefundRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cancelDate := time.Now().UTC()
	if req.CancelDate != nil {
		cancelDate = *req.CancelDate
	}

	result, err := h.svc.CancellationRefundPreview(c.Request.Context(), middleware.AppID(c), c.Param("id"), cancelDate)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
