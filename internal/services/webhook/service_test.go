package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockEnvelopeRepo struct{ mock.Mock }

func (m *mockEnvelopeRepo) InsertEnvelope(ctx context.Context, tx ports.DBTX, envelope *models.WebhookEnvelope) (bool, error) {
	args := m.Called(ctx, tx, envelope)
	return args.Bool(0), args.Error(1)
}

func (m *mockEnvelopeRepo) GetByEventID(ctx context.Context, tx ports.DBTX, appID, eventID string) (*models.WebhookEnvelope, error) {
	args := m.Called(ctx, tx, appID, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookEnvelope), args.Error(1)
}

func (m *mockEnvelopeRepo) UpdateStatus(ctx context.Context, tx ports.DBTX, appID, eventID string, status models.WebhookStatus, processErr string) error {
	return m.Called(ctx, tx, appID, eventID, status, processErr).Error(0)
}

func (m *mockEnvelopeRepo) ResetForReplay(ctx context.Context, tx ports.DBTX, appID, eventID string) error {
	return m.Called(ctx, tx, appID, eventID).Error(0)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) VerifySignature(appID string, payload []byte, header string, now time.Time) error {
	return m.Called(appID, payload, header, now).Error(0)
}

type mockCustomerRepo struct{ mock.Mock }

func (m *mockCustomerRepo) Create(ctx context.Context, tx ports.DBTX, customer *models.Customer) error {
	return m.Called(ctx, tx, customer).Error(0)
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

func (m *mockCustomerRepo) Update(ctx context.Context, tx ports.DBTX, customer *models.Customer) error {
	return m.Called(ctx, tx, customer).Error(0)
}

func (m *mockCustomerRepo) SetDefaultPaymentMethod(ctx context.Context, tx ports.DBTX, appID, customerID, token, pmType string) error {
	return m.Called(ctx, tx, appID, customerID, token, pmType).Error(0)
}

type mockDelinquency struct{ mock.Mock }

func (m *mockDelinquency) MarkDelinquent(ctx context.Context, tx ports.DBTX, cust *models.Customer) error {
	return m.Called(ctx, tx, cust).Error(0)
}

type mockSubscriptionRepo struct{ mock.Mock }

func (m *mockSubscriptionRepo) Create(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *mockSubscriptionRepo) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Subscription, error) {
	args := m.Called(ctx, tx, appID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepo) GetByPSPID(ctx context.Context, tx ports.DBTX, appID, pspSubscriptionID string) (*models.Subscription, error) {
	args := m.Called(ctx, tx, appID, pspSubscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *mockSubscriptionRepo) Update(ctx context.Context, tx ports.DBTX, sub *models.Subscription) error {
	return m.Called(ctx, tx, sub).Error(0)
}

func (m *mockSubscriptionRepo) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.Subscription, error) {
	args := m.Called(ctx, tx, appID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type mockChargeRepo struct{ mock.Mock }

func (m *mockChargeRepo) Create(ctx context.Context, tx ports.DBTX, charge *models.Charge) error {
	return m.Called(ctx, tx, charge).Error(0)
}

func (m *mockChargeRepo) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Charge, error) {
	args := m.Called(ctx, tx, appID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Charge), args.Error(1)
}

func (m *mockChargeRepo) GetByReferenceID(ctx context.Context, tx ports.DBTX, appID, referenceID string) (*models.Charge, error) {
	args := m.Called(ctx, tx, appID, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Charge), args.Error(1)
}

func (m *mockChargeRepo) GetByPSPChargeID(ctx context.Context, tx ports.DBTX, appID, pspChargeID string) (*models.Charge, error) {
	args := m.Called(ctx, tx, appID, pspChargeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Charge), args.Error(1)
}

func (m *mockChargeRepo) Update(ctx context.Context, tx ports.DBTX, charge *models.Charge) error {
	return m.Called(ctx, tx, charge).Error(0)
}

func (m *mockChargeRepo) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.Charge, error) {
	args := m.Called(ctx, tx, appID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Charge), args.Error(1)
}

type mockRefundRepo struct{ mock.Mock }

func (m *mockRefundRepo) Create(ctx context.Context, tx ports.DBTX, refund *models.Refund) error {
	return m.Called(ctx, tx, refund).Error(0)
}

func (m *mockRefundRepo) GetByID(ctx context.Context, tx ports.DBTX, appID, id string) (*models.Refund, error) {
	args := m.Called(ctx, tx, appID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}

func (m *mockRefundRepo) GetByReferenceID(ctx context.Context, tx ports.DBTX, appID, referenceID string) (*models.Refund, error) {
	args := m.Called(ctx, tx, appID, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}

func (m *mockRefundRepo) GetByPSPRefundID(ctx context.Context, tx ports.DBTX, appID, pspRefundID string) (*models.Refund, error) {
	args := m.Called(ctx, tx, appID, pspRefundID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}

func (m *mockRefundRepo) Update(ctx context.Context, tx ports.DBTX, refund *models.Refund) error {
	return m.Called(ctx, tx, refund).Error(0)
}

type mockDisputeRepo struct{ mock.Mock }

func (m *mockDisputeRepo) Upsert(ctx context.Context, tx ports.DBTX, dispute *models.Dispute) error {
	return m.Called(ctx, tx, dispute).Error(0)
}

func (m *mockDisputeRepo) GetByPSPDisputeID(ctx context.Context, tx ports.DBTX, appID, pspDisputeID string) (*models.Dispute, error) {
	args := m.Called(ctx, tx, appID, pspDisputeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.Dispute, error) {
	args := m.Called(ctx, tx, appID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Dispute), args.Error(1)
}

type mockPaymentMethodRepo struct{ mock.Mock }

func (m *mockPaymentMethodRepo) Upsert(ctx context.Context, tx ports.DBTX, method *models.PaymentMethod) error {
	return m.Called(ctx, tx, method).Error(0)
}

func (m *mockPaymentMethodRepo) GetByPSPID(ctx context.Context, tx ports.DBTX, appID, pspPaymentMethodID string) (*models.PaymentMethod, error) {
	args := m.Called(ctx, tx, appID, pspPaymentMethodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentMethod), args.Error(1)
}

func (m *mockPaymentMethodRepo) ListByCustomer(ctx context.Context, tx ports.DBTX, appID, customerID string) ([]*models.PaymentMethod, error) {
	args := m.Called(ctx, tx, appID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.PaymentMethod), args.Error(1)
}

func (m *mockPaymentMethodRepo) SoftDelete(ctx context.Context, tx ports.DBTX, appID, pspPaymentMethodID string) error {
	return m.Called(ctx, tx, appID, pspPaymentMethodID).Error(0)
}

func (m *mockPaymentMethodRepo) ClearDefaults(ctx context.Context, tx ports.DBTX, appID, customerID string) error {
	return m.Called(ctx, tx, appID, customerID).Error(0)
}

func (m *mockPaymentMethodRepo) SetDefault(ctx context.Context, tx ports.DBTX, appID, pspPaymentMethodID string) error {
	return m.Called(ctx, tx, appID, pspPaymentMethodID).Error(0)
}

type fakeDB struct {
	txCount int
}

func (f *fakeDB) GetDB() *pgxpool.Pool { return nil }

func (f *fakeDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	f.txCount++
	return fn(ctx, nil)
}

func (f *fakeDB) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type fixture struct {
	db          *fakeDB
	envelopes   *mockEnvelopeRepo
	verifier    *mockVerifier
	customers   *mockCustomerRepo
	delinquency *mockDelinquency
	subs        *mockSubscriptionRepo
	charges     *mockChargeRepo
	refunds     *mockRefundRepo
	disputes    *mockDisputeRepo
	methods     *mockPaymentMethodRepo
	svc         *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:          &fakeDB{},
		envelopes:   &mockEnvelopeRepo{},
		verifier:    &mockVerifier{},
		customers:   &mockCustomerRepo{},
		delinquency: &mockDelinquency{},
		subs:        &mockSubscriptionRepo{},
		charges:     &mockChargeRepo{},
		refunds:     &mockRefundRepo{},
		disputes:    &mockDisputeRepo{},
		methods:     &mockPaymentMethodRepo{},
	}
	f.svc = NewService(f.db, f.envelopes, f.verifier, f.customers, f.delinquency,
		f.subs, f.charges, f.refunds, f.disputes, f.methods, zap.NewNop())
	return f
}

const subscriptionUpdatedBody = `{"id":"evt_1","type":"subscription.updated","data":{"object":{"id":"psp_sub_1","status":"past_due"}}}`

func TestIngest_DuplicateShortCircuits(t *testing.T) {
	f := newFixture(t)
	f.envelopes.On("InsertEnvelope", mock.Anything, nil, mock.Anything).Return(true, nil)

	result, err := f.svc.Ingest(context.Background(), "app-1", []byte(subscriptionUpdatedBody), "t=1,v1=abc")

	require.NoError(t, err)
	assert.True(t, result.Received)
	assert.True(t, result.Duplicate)
	f.verifier.AssertNotCalled(t, "VerifySignature", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_InvalidSignatureMarksEnvelopeFailed(t *testing.T) {
	f := newFixture(t)
	f.envelopes.On("InsertEnvelope", mock.Anything, nil, mock.Anything).Return(false, nil)
	f.verifier.On("VerifySignature", "app-1", mock.Anything, "t=1,v1=bad", mock.Anything).
		Return(domain.ErrInvalidSignature)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusFailed, "invalid signature").Return(nil)

	_, err := f.svc.Ingest(context.Background(), "app-1", []byte(subscriptionUpdatedBody), "t=1,v1=bad")

	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	f.envelopes.AssertExpectations(t)
	f.subs.AssertNotCalled(t, "GetByPSPID", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_SubscriptionUpdateAppliesStatus(t *testing.T) {
	f := newFixture(t)
	f.envelopes.On("InsertEnvelope", mock.Anything, nil, mock.MatchedBy(func(e *models.WebhookEnvelope) bool {
		return e.EventID == "evt_1" && e.EventType == "subscription.updated" && e.Status == models.WebhookStatusReceived
	})).Return(false, nil)
	f.verifier.On("VerifySignature", "app-1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusProcessing, "").Return(nil)
	f.subs.On("GetByPSPID", mock.Anything, nil, "app-1", "psp_sub_1").Return(&models.Subscription{
		ID:                "sub-1",
		AppID:             "app-1",
		PSPSubscriptionID: "psp_sub_1",
		Status:            models.SubStatusActive,
	}, nil)
	f.subs.On("Update", mock.Anything, nil, mock.MatchedBy(func(sub *models.Subscription) bool {
		return sub.Status == models.SubStatusPastDue
	})).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusProcessed, "").Return(nil)

	result, err := f.svc.Ingest(context.Background(), "app-1", []byte(subscriptionUpdatedBody), "t=1,v1=ok")

	require.NoError(t, err)
	assert.True(t, result.Received)
	assert.False(t, result.Duplicate)
	f.subs.AssertExpectations(t)
	f.envelopes.AssertExpectations(t)
}

func TestIngest_UnknownLocalRowStillProcessed(t *testing.T) {
	f := newFixture(t)
	f.envelopes.On("InsertEnvelope", mock.Anything, nil, mock.Anything).Return(false, nil)
	f.verifier.On("VerifySignature", "app-1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusProcessing, "").Return(nil)
	f.subs.On("GetByPSPID", mock.Anything, nil, "app-1", "psp_sub_1").
		Return(nil, domain.ErrSubscriptionNotFound)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusProcessed, "").Return(nil)

	_, err := f.svc.Ingest(context.Background(), "app-1", []byte(subscriptionUpdatedBody), "t=1,v1=ok")

	require.NoError(t, err)
	f.subs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	f.envelopes.AssertExpectations(t)
}

func TestIngest_UnknownEventTypeIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := `{"id":"evt_2","type":"price.created","data":{"object":{"id":"price_1"}}}`
	f.envelopes.On("InsertEnvelope", mock.Anything, nil, mock.Anything).Return(false, nil)
	f.verifier.On("VerifySignature", "app-1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_2",
		models.WebhookStatusProcessing, "").Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_2",
		models.WebhookStatusProcessed, "").Return(nil)

	result, err := f.svc.Ingest(context.Background(), "app-1", []byte(body), "t=1,v1=ok")

	require.NoError(t, err)
	assert.True(t, result.Received)
}

func TestIngest_ChargeFailureMarksCustomerDelinquent(t *testing.T) {
	f := newFixture(t)
	body := `{"id":"evt_3","type":"payment_intent.payment_failed","data":{"object":{"id":"psp_ch_1","status":"failed","last_payment_error":{"code":"card_declined","message":"Your card was declined."}}}}`
	f.envelopes.On("InsertEnvelope", mock.Anything, nil, mock.Anything).Return(false, nil)
	f.verifier.On("VerifySignature", "app-1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_3",
		models.WebhookStatusProcessing, "").Return(nil)
	f.charges.On("GetByPSPChargeID", mock.Anything, nil, "app-1", "psp_ch_1").Return(&models.Charge{
		ID:         "ch-1",
		AppID:      "app-1",
		CustomerID: "cust-1",
		Status:     models.ChargeStatusPending,
	}, nil)
	f.charges.On("Update", mock.Anything, mock.Anything, mock.MatchedBy(func(ch *models.Charge) bool {
		return ch.Status == models.ChargeStatusFailed && ch.FailureCode == "card_declined"
	})).Return(nil)
	f.customers.On("GetByID", mock.Anything, mock.Anything, "app-1", "cust-1").
		Return(&models.Customer{ID: "cust-1", AppID: "app-1", Status: models.CustomerStatusActive}, nil)
	f.delinquency.On("MarkDelinquent", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_3",
		models.WebhookStatusProcessed, "").Return(nil)

	_, err := f.svc.Ingest(context.Background(), "app-1", []byte(body), "t=1,v1=ok")

	require.NoError(t, err)
	assert.Equal(t, 1, f.db.txCount)
	f.delinquency.AssertExpectations(t)
}

func TestIngest_DispatchFailureMarksEnvelopeFailed(t *testing.T) {
	f := newFixture(t)
	f.envelopes.On("InsertEnvelope", mock.Anything, nil, mock.Anything).Return(false, nil)
	f.verifier.On("VerifySignature", "app-1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusProcessing, "").Return(nil)
	f.subs.On("GetByPSPID", mock.Anything, nil, "app-1", "psp_sub_1").
		Return(nil, domain.ErrDatabaseError)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusFailed, mock.Anything).Return(nil)

	_, err := f.svc.Ingest(context.Background(), "app-1", []byte(subscriptionUpdatedBody), "t=1,v1=ok")

	require.Error(t, err)
	f.envelopes.AssertExpectations(t)
}

func TestIngest_RejectsMalformedPayload(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(context.Background(), "app-1", []byte("not json"), "t=1,v1=ok")

	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	f.envelopes.AssertNotCalled(t, "InsertEnvelope", mock.Anything, mock.Anything, mock.Anything)
}

func TestReplay_ReprocessesFailedEnvelope(t *testing.T) {
	f := newFixture(t)
	f.envelopes.On("ResetForReplay", mock.Anything, nil, "app-1", "evt_1").Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusProcessing, "").Return(nil)
	f.subs.On("GetByPSPID", mock.Anything, nil, "app-1", "psp_sub_1").Return(&models.Subscription{
		ID:                "sub-1",
		AppID:             "app-1",
		PSPSubscriptionID: "psp_sub_1",
		Status:            models.SubStatusActive,
	}, nil)
	f.subs.On("Update", mock.Anything, nil, mock.Anything).Return(nil)
	f.envelopes.On("UpdateStatus", mock.Anything, nil, "app-1", "evt_1",
		models.WebhookStatusProcessed, "").Return(nil)

	err := f.svc.Replay(context.Background(), "app-1", "evt_1", []byte(subscriptionUpdatedBody))

	require.NoError(t, err)
	f.envelopes.AssertExpectations(t)
}

func TestReplay_RejectsMismatchedEvent(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Replay(context.Background(), "app-1", "evt_other", []byte(subscriptionUpdatedBody))

	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
	f.envelopes.AssertNotCalled(t, "ResetForReplay", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
