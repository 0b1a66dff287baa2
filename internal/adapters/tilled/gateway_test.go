package tilled

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubHTTPClient struct {
	fn       func(req *http.Request) (*http.Response, error)
	lastReq  *http.Request
	lastBody []byte
}

func (s *stubHTTPClient) Do(req *http.Request) (*http.Response, error) {
	s.lastReq = req
	if req.Body != nil {
		s.lastBody, _ = io.ReadAll(req.Body)
	}
	return s.fn(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestGateway(stub *stubHTTPClient) *Gateway {
	client := NewClient(SandboxBaseURL, stub, &staticCredentials{secret: "whsec"}, zap.NewNop(), 4)
	return NewGateway(client)
}

func TestCreateCustomer_SendsAuthHeaders(t *testing.T) {
	stub := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(201, `{"id":"cus_123","email":"a@b.co","name":"Ada"}`), nil
	}}
	g := newTestGateway(stub)

	cust, err := g.CreateCustomer(context.Background(), "app1", "a@b.co", "Ada", nil)
	require.NoError(t, err)
	assert.Equal(t, "cus_123", cust.ID)

	assert.Equal(t, "Bearer sk_test", stub.lastReq.Header.Get("Authorization"))
	assert.Equal(t, "acct_app1", stub.lastReq.Header.Get("tilled-account"))
	assert.Equal(t, "/v1/customers", stub.lastReq.URL.Path)
}

func TestCreateCharge_DeclineMapsToProcessorError(t *testing.T) {
	stub := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(402, `{"error":{"code":"card_declined","message":"Your card was declined."}}`), nil
	}}
	g := newTestGateway(stub)

	_, err := g.CreateCharge(context.Background(), "app1", &ports.PSPChargeRequest{
		AmountCents:        1000,
		Currency:           "usd",
		PaymentMethodToken: "pm_1",
	})
	require.Error(t, err)

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrorCodeProcessorDeclined, derr.Code)
	assert.Equal(t, "card_declined", derr.ProcessorCode)
	assert.Equal(t, "Your card was declined.", derr.ProcessorMessage)
}

func TestCreateCharge_ServerErrorCarriesStatusCode(t *testing.T) {
	stub := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(503, `oops`), nil
	}}
	g := newTestGateway(stub)

	_, err := g.CreateCharge(context.Background(), "app1", &ports.PSPChargeRequest{AmountCents: 1000, Currency: "usd"})
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrorCodeProcessorError, derr.Code)
	assert.Equal(t, "http_503", derr.ProcessorCode)
}

func TestCancelSubscription_AtPeriodEndUsesPatch(t *testing.T) {
	stub := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"id":"sub_1","status":"active","cancel_at_period_end":true}`), nil
	}}
	g := newTestGateway(stub)

	sub, err := g.CancelSubscription(context.Background(), "app1", "sub_1", true)
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "PATCH", stub.lastReq.Method)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(stub.lastBody, &payload))
	assert.Equal(t, true, payload["cancel_at_period_end"])
}

func TestCancelSubscription_ImmediateUsesDelete(t *testing.T) {
	stub := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"id":"sub_1","status":"canceled"}`), nil
	}}
	g := newTestGateway(stub)

	sub, err := g.CancelSubscription(context.Background(), "app1", "sub_1", false)
	require.NoError(t, err)
	assert.Equal(t, "canceled", sub.Status)
	assert.Equal(t, "DELETE", stub.lastReq.Method)
}

func TestBackpressure_ShedsWhenSaturated(t *testing.T) {
	block := make(chan struct{})
	stub := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		<-block
		return jsonResponse(200, `{}`), nil
	}}
	client := NewClient(SandboxBaseURL, stub, &staticCredentials{}, zap.NewNop(), 1)
	g := NewGateway(client)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		release, err := client.acquire()
		require.NoError(t, err)
		close(started)
		<-block
		release()
	}()
	<-started

	_, err := g.GetPaymentMethod(context.Background(), "app1", "pm_1")
	assert.ErrorIs(t, err, domain.ErrBackpressure)

	close(block)
	<-done
}

func TestGetPaymentMethod_MapsCardFields(t *testing.T) {
	stub := &stubHTTPClient{fn: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"id":"pm_1","type":"card","card":{"brand":"visa","last4":"4242","exp_month":12,"exp_year":2030}}`), nil
	}}
	g := newTestGateway(stub)

	pm, err := g.GetPaymentMethod(context.Background(), "app1", "pm_1")
	require.NoError(t, err)
	assert.Equal(t, "visa", pm.Brand)
	assert.Equal(t, "4242", pm.Last4)
	assert.Equal(t, 12, pm.ExpMonth)
	assert.Equal(t, 2030, pm.ExpYear)
}
