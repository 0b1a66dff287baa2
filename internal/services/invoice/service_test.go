package invoice

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/billing-service/internal/billing"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCustomerRepo struct{ mock.Mock }

func (m *mockCustomerRepo) Create(ctx context.Context, tx ports.DBTX, cust *models.Customer) error {
	return m.Called(ctx, tx, cust).Error(0)
}

func (m *mockCustomerRepo) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Customer, error) {
	args := m.Called(ctx, tx, appID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *mockCustomerRepo) GetByExternalID(ctx context.Context, tx ports.DBTX, appID, externalID string) (*models.Customer, error) {
	args := m.Called(ctx, tx, appID, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *mockCustomerRepo) GetByPSPCustomerID(ctx context.Context, tx ports.DBTX, appID, pspCustomerID string) (*models.Customer, error) {
	args := m.Called(ctx, tx, appID, pspCustomerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *mockCustomerRepo) Update(ctx context.Context, tx ports.DBTX, cust *models.Customer) error {
	return m.Called(ctx, tx, cust).Error(0)
}

func (m *mockCustomerRepo) SetDefaultPaymentMethod(ctx context.Context, tx ports.DBTX, appID, customerID, token, pmType string) error {
	return m.Called(ctx, tx, appID, customerID, token, pmType).Error(0)
}

type mockCouponRepo struct{ mock.Mock }

func (m *mockCouponRepo) Create(ctx context.Context, tx ports.DBTX, coupon *models.Coupon) error {
	return m.Called(ctx, tx, coupon).Error(0)
}

func (m *mockCouponRepo) GetByCode(ctx context.Context, tx ports.DBTX, appID, code string) (*models.Coupon, error) {
	args := m.Called(ctx, tx, appID, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Coupon), args.Error(1)
}

func (m *mockCouponRepo) ListByCodes(ctx context.Context, tx ports.DBTX, appID string, codes []string) ([]*models.Coupon, error) {
	args := m.Called(ctx, tx, appID, codes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Coupon), args.Error(1)
}

func (m *mockCouponRepo) IncrementRedemptions(ctx context.Context, tx ports.DBTX, appID, couponID string) error {
	return m.Called(ctx, tx, appID, couponID).Error(0)
}

type mockTaxRateRepo struct{ mock.Mock }

func (m *mockTaxRateRepo) Create(ctx context.Context, tx ports.DBTX, rate *models.TaxRate) error {
	return m.Called(ctx, tx, rate).Error(0)
}

func (m *mockTaxRateRepo) ListActiveByJurisdiction(ctx context.Context, tx ports.DBTX, appID, jurisdictionCode string, at time.Time) ([]*models.TaxRate, error) {
	args := m.Called(ctx, tx, appID, jurisdictionCode, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TaxRate), args.Error(1)
}

type mockAuditRepo struct{ mock.Mock }

func (m *mockAuditRepo) RecordDiscountApplication(ctx context.Context, tx ports.DBTX, appID, invoiceID, couponID string, amountCents int64, detail map[string]interface{}) error {
	return m.Called(ctx, tx, appID, invoiceID, couponID, amountCents, detail).Error(0)
}

func (m *mockAuditRepo) RecordTaxCalculation(ctx context.Context, tx ports.DBTX, appID, invoiceID, taxRateID string, amountCents int64, detail map[string]interface{}) error {
	return m.Called(ctx, tx, appID, invoiceID, taxRateID, amountCents, detail).Error(0)
}

func (m *mockAuditRepo) RecordProrationEvent(ctx context.Context, tx ports.DBTX, appID, subscriptionID, kind string, amountCents int64, detail map[string]interface{}) error {
	return m.Called(ctx, tx, appID, subscriptionID, kind, amountCents, detail).Error(0)
}

type fakeDB struct{ txCount int }

func (f *fakeDB) GetDB() *pgxpool.Pool { return nil }

func (f *fakeDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	f.txCount++
	return fn(ctx, nil)
}

func (f *fakeDB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type fixture struct {
	db        *fakeDB
	customers *mockCustomerRepo
	coupons   *mockCouponRepo
	taxRates  *mockTaxRateRepo
	audit     *mockAuditRepo
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:        &fakeDB{},
		customers: &mockCustomerRepo{},
		coupons:   &mockCouponRepo{},
		taxRates:  &mockTaxRateRepo{},
		audit:     &mockAuditRepo{},
	}
	f.svc = NewService(f.db, f.customers, f.coupons, f.taxRates, f.audit, zap.NewNop()).
		WithClock(func() time.Time { return time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC) })
	return f
}

func exemptCustomer() *models.Customer {
	return &models.Customer{
		ID:    "cust-1",
		AppID: "app-1",
		Metadata: map[string]string{
			"jurisdiction_code": "US-CA",
			"segment":           "enterprise",
			"tax_exempt":        "vat",
		},
	}
}

func TestPreview_AppliesDiscountThenTax(t *testing.T) {
	f := newFixture(t)

	f.customers.On("GetByID", mock.Anything, nil, "app-1", "cust-1").Return(exemptCustomer(), nil)
	f.coupons.On("ListByCodes", mock.Anything, nil, "app-1", []string{"SAVE10"}).Return([]*models.Coupon{
		{
			ID:     "cpn-1",
			AppID:  "app-1",
			Code:   "SAVE10",
			Type:   models.CouponTypePercentage,
			Value:  10,
			Active: true,
		},
	}, nil)
	f.taxRates.On("ListActiveByJurisdiction", mock.Anything, nil, "app-1", "US-CA", mock.Anything).Return([]*models.TaxRate{
		{
			ID:               "tax-1",
			AppID:            "app-1",
			JurisdictionCode: "US-CA",
			TaxType:          "sales",
			Rate:             decimal.RequireFromString("0.0725"),
		},
	}, nil)

	quote, err := f.svc.Preview(context.Background(), "app-1", QuoteParams{
		CustomerID:    "cust-1",
		SubtotalCents: 10000,
		CouponCodes:   []string{"SAVE10"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), quote.Discount.TotalDiscountCents)
	assert.Equal(t, int64(9000), quote.Discount.RemainderCents)
	// 9000 x 0.0725 = 652.5, rounds half away from zero to 653
	assert.Equal(t, int64(653), quote.Tax.TotalTaxCents)
	assert.Equal(t, int64(9653), quote.TotalCents)
}

func TestPreview_TaxExemptionSkipsMatchingType(t *testing.T) {
	f := newFixture(t)

	f.customers.On("GetByID", mock.Anything, nil, "app-1", "cust-1").Return(exemptCustomer(), nil)
	f.taxRates.On("ListActiveByJurisdiction", mock.Anything, nil, "app-1", "US-CA", mock.Anything).Return([]*models.TaxRate{
		{ID: "tax-vat", TaxType: "vat", Rate: decimal.RequireFromString("0.20")},
		{ID: "tax-sales", TaxType: "sales", Rate: decimal.RequireFromString("0.05")},
	}, nil)

	quote, err := f.svc.Preview(context.Background(), "app-1", QuoteParams{
		CustomerID:    "cust-1",
		SubtotalCents: 10000,
	})
	require.NoError(t, err)

	require.Len(t, quote.Tax.Lines, 1)
	assert.Equal(t, "tax-sales", quote.Tax.Lines[0].TaxRateID)
	assert.Equal(t, int64(500), quote.Tax.TotalTaxCents)
}

func TestPreview_UnknownCouponRejectedNotFatal(t *testing.T) {
	f := newFixture(t)

	f.coupons.On("ListByCodes", mock.Anything, nil, "app-1", []string{"NOPE"}).Return([]*models.Coupon{}, nil)

	quote, err := f.svc.Preview(context.Background(), "app-1", QuoteParams{
		SubtotalCents: 5000,
		CouponCodes:   []string{"NOPE"},
	})
	require.NoError(t, err)

	assert.Empty(t, quote.Discount.Applied)
	require.Len(t, quote.Discount.Rejected, 1)
	assert.Equal(t, "NOPE", quote.Discount.Rejected[0].Code)
	assert.Equal(t, int64(5000), quote.TotalCents)
}

func TestPreview_JurisdictionOverrideBeatsCustomerMetadata(t *testing.T) {
	f := newFixture(t)

	f.customers.On("GetByID", mock.Anything, nil, "app-1", "cust-1").Return(exemptCustomer(), nil)
	f.taxRates.On("ListActiveByJurisdiction", mock.Anything, nil, "app-1", "US-NY", mock.Anything).Return([]*models.TaxRate{}, nil)

	_, err := f.svc.Preview(context.Background(), "app-1", QuoteParams{
		CustomerID:           "cust-1",
		SubtotalCents:        5000,
		JurisdictionOverride: "US-NY",
	})
	require.NoError(t, err)

	f.taxRates.AssertCalled(t, "ListActiveByJurisdiction", mock.Anything, nil, "app-1", "US-NY", mock.Anything)
}

func TestPreview_RejectsNonPositiveSubtotal(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Preview(context.Background(), "app-1", QuoteParams{SubtotalCents: 0})
	assert.ErrorIs(t, err, domain.ErrValidationAmountInvalid)
}

func TestFinalize_RecordsAuditRowsInOneTransaction(t *testing.T) {
	f := newFixture(t)

	quote := &Quote{
		SubtotalCents: 10000,
		Discount: &billing.DiscountResult{
			Applied: []billing.CouponApplication{
				{Code: "SAVE10", CouponID: "cpn-1", DiscountCents: 1000, AppliedToCents: 10000},
			},
		},
		Tax: &billing.TaxResult{
			TaxableCents: 9000,
			Lines: []billing.TaxLine{
				{TaxRateID: "tax-1", JurisdictionCode: "US-CA", TaxType: "sales", Rate: decimal.RequireFromString("0.0725"), TaxCents: 653},
			},
		},
	}

	f.audit.On("RecordDiscountApplication", mock.Anything, nil, "app-1", "inv-1", "cpn-1", int64(1000), mock.Anything).Return(nil)
	f.coupons.On("IncrementRedemptions", mock.Anything, nil, "app-1", "cpn-1").Return(nil)
	f.audit.On("RecordTaxCalculation", mock.Anything, nil, "app-1", "inv-1", "tax-1", int64(653), mock.Anything).Return(nil)

	err := f.svc.Finalize(context.Background(), "app-1", "inv-1", quote)
	require.NoError(t, err)

	assert.Equal(t, 1, f.db.txCount)
	f.audit.AssertExpectations(t)
	f.coupons.AssertExpectations(t)
}

func TestFinalize_AuditFailureAbortsTransaction(t *testing.T) {
	f := newFixture(t)

	quote := &Quote{
		Discount: &billing.DiscountResult{
			Applied: []billing.CouponApplication{
				{Code: "SAVE10", CouponID: "cpn-1", DiscountCents: 1000},
			},
		},
	}

	f.audit.On("RecordDiscountApplication", mock.Anything, nil, "app-1", "inv-1", "cpn-1", int64(1000), mock.Anything).Return(assert.AnError)

	err := f.svc.Finalize(context.Background(), "app-1", "inv-1", quote)
	assert.Error(t, err)
	f.coupons.AssertNotCalled(t, "IncrementRedemptions", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_RequiresInvoiceID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Finalize(context.Background(), "app-1", "", &Quote{})
	assert.True(t, domain.IsValidationError(err))
	assert.Equal(t, 0, f.db.txCount)
}
