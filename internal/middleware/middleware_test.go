package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/internal/services/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	mapper := NewErrorMapper(false, zap.NewNop())
	r.Use(mapper.Middleware())
	r.Use(mw...)
	return r
}

func TestTenantResolver_QueryParam(t *testing.T) {
	r := newRouter(TenantResolver(zap.NewNop()))
	r.GET("/customers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"app_id": AppID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/customers?app_id=acme", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"app_id":"acme"`)
}

func TestTenantResolver_BodyFallbackPreservesBody(t *testing.T) {
	r := newRouter(TenantResolver(zap.NewNop()))
	r.POST("/customers", func(c *gin.Context) {
		var payload struct {
			AppID string `json:"app_id"`
			Email string `json:"email"`
		}
		require.NoError(t, c.ShouldBindJSON(&payload))
		c.JSON(http.StatusOK, gin.H{"app_id": AppID(c), "email": payload.Email})
	})

	w := httptest.NewRecorder()
	body := `{"app_id":"acme","email":"a@b.test"}`
	req := httptest.NewRequest(http.MethodPost, "/customers", bytes.NewBufferString(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"a@b.test"`)
}

func TestTenantResolver_MissingAppID(t *testing.T) {
	r := newRouter(TenantResolver(zap.NewNop()))
	r.GET("/customers", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenantResolver_IdentityMismatchForbidden(t *testing.T) {
	r := newRouter(TenantResolver(zap.NewNop()))
	called := false
	r.GET("/customers", func(c *gin.Context) { called = true })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/customers?app_id=acme", nil)
	req.Header.Set("X-App-Id", "globex")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, called)
}

func TestPCIReject_BlocksRawCardData(t *testing.T) {
	cases := []string{
		`{"card_number":"4242424242424242"}`,
		`{"CVV":"123"}`,
		`{"customer":{"payment":{"Routing_Number":"021000021"}}}`,
		`{"items":[{"account_number":"12345"}]}`,
	}
	for _, body := range cases {
		r := newRouter(PCIReject(zap.NewNop()))
		called := false
		r.POST("/charges", func(c *gin.Context) { called = true })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/charges", bytes.NewBufferString(body))
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, "body: %s", body)
		assert.False(t, called, "handler must not run for: %s", body)
		assert.Contains(t, w.Body.String(), "tokenization")
	}
}

func TestPCIReject_AllowsTokenizedPayloads(t *testing.T) {
	r := newRouter(PCIReject(zap.NewNop()))
	r.POST("/payment-methods", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	body := `{"payment_method_token":"pm_123","customer_id":"cust-1"}`
	req := httptest.NewRequest(http.MethodPost, "/payment-methods", bytes.NewBufferString(body))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
}

type mockIdempotencyRepo struct{ mock.Mock }

func (m *mockIdempotencyRepo) Get(ctx context.Context, tx ports.DBTX, appID, key string) (*models.IdempotencyRecord, error) {
	args := m.Called(ctx, tx, appID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.IdempotencyRecord), args.Error(1)
}

func (m *mockIdempotencyRepo) Put(ctx context.Context, tx ports.DBTX, record *models.IdempotencyRecord) error {
	return m.Called(ctx, tx, record).Error(0)
}

func (m *mockIdempotencyRepo) DeleteExpired(ctx context.Context, tx ports.DBTX) (int64, error) {
	args := m.Called(ctx, tx)
	return args.Get(0).(int64), args.Error(1)
}

func idempotencyRouter(repo *mockIdempotencyRepo, handler gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	mapper := NewErrorMapper(false, zap.NewNop())
	svc := idempotency.NewService(repo, zap.NewNop(), 0)
	r.Use(mapper.Middleware())
	r.POST("/charges/one-time", func(c *gin.Context) {
		c.Set(ContextAppID, "acme")
	}, Idempotency(svc, mapper, zap.NewNop()), handler)
	return r
}

func TestIdempotency_RequiresKeyHeader(t *testing.T) {
	repo := &mockIdempotencyRepo{}
	r := idempotencyRouter(repo, func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges/one-time", bytes.NewBufferString(`{}`))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	repo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotency_ReplaysCachedResponse(t *testing.T) {
	repo := &mockIdempotencyRepo{}
	body := `{"amount_cents":500}`
	hash := idempotency.RequestHash(http.MethodPost, "/charges/one-time", []byte(body))
	repo.On("Get", mock.Anything, nil, "acme", "key-1").Return(&models.IdempotencyRecord{
		AppID:        "acme",
		Key:          "key-1",
		RequestHash:  hash,
		StatusCode:   http.StatusCreated,
		ResponseBody: []byte(`{"id":"ch-1"}`),
	}, nil)

	called := false
	r := idempotencyRouter(repo, func(c *gin.Context) { called = true })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges/one-time", bytes.NewBufferString(body))
	req.Header.Set("Idempotency-Key", "key-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, `{"id":"ch-1"}`, w.Body.String())
	assert.Equal(t, "true", w.Header().Get("Idempotency-Replayed"))
	assert.False(t, called, "handler must not run on replay")
}

func TestIdempotency_ConflictingPayloadRejected(t *testing.T) {
	repo := &mockIdempotencyRepo{}
	repo.On("Get", mock.Anything, nil, "acme", "key-1").Return(&models.IdempotencyRecord{
		AppID:       "acme",
		Key:         "key-1",
		RequestHash: "some-other-hash",
		StatusCode:  http.StatusCreated,
	}, nil)

	r := idempotencyRouter(repo, func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges/one-time", bytes.NewBufferString(`{"amount_cents":999}`))
	req.Header.Set("Idempotency-Key", "key-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotency_CachesFreshResponse(t *testing.T) {
	repo := &mockIdempotencyRepo{}
	repo.On("Get", mock.Anything, nil, "acme", "key-1").Return(nil, nil)
	repo.On("Put", mock.Anything, nil, mock.MatchedBy(func(rec *models.IdempotencyRecord) bool {
		return rec.StatusCode == http.StatusCreated && string(rec.ResponseBody) == `{"id":"ch-1"}`
	})).Return(nil)

	r := idempotencyRouter(repo, func(c *gin.Context) {
		c.Data(http.StatusCreated, "application/json", []byte(`{"id":"ch-1"}`))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges/one-time", bytes.NewBufferString(`{"amount_cents":500}`))
	req.Header.Set("Idempotency-Key", "key-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	repo.AssertExpectations(t)
}

func TestErrorMapper_ProcessorErrorCarriesPSPDetail(t *testing.T) {
	r := newRouter()
	r.POST("/charges", func(c *gin.Context) {
		_ = c.Error(domain.NewProcessorError("card_declined", "Your card was declined."))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/charges", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "card_declined")
	assert.Contains(t, w.Body.String(), "Your card was declined.")
}

func TestErrorMapper_ProductionHidesInternalDetail(t *testing.T) {
	r := gin.New()
	mapper := NewErrorMapper(true, zap.NewNop())
	r.Use(mapper.Middleware())
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
