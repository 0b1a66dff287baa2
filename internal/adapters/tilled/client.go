package tilled

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production API host
	DefaultBaseURL = "https://api.tilled.com"
	// SandboxBaseURL is the sandbox API host
	SandboxBaseURL = "https://sandbox-api.tilled.com"
)

// errorResponse is the PSP's error envelope
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	// Some endpoints flatten the envelope
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *errorResponse) code() string {
	if e.Error.Code != "" {
		return e.Error.Code
	}
	return e.Code
}

func (e *errorResponse) message() string {
	if e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}

// Client is the typed HTTP client for the PSP API. All requests are
// per-app authenticated; credentials are resolved on every call so
// rotation needs no restart. A bounded semaphore caps in-flight requests
// and sheds load as backpressure instead of queueing.
type Client struct {
	baseURL     string
	httpClient  ports.HTTPClient
	credentials ports.CredentialSource
	logger      *zap.Logger
	inflight    chan struct{}
}

// NewClient creates a PSP client. maxInflight bounds concurrent requests
// to the processor; zero or negative means 64.
func NewClient(baseURL string, httpClient ports.HTTPClient, credentials ports.CredentialSource, logger *zap.Logger, maxInflight int) *Client {
	if maxInflight <= 0 {
		maxInflight = 64
	}
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		httpClient:  httpClient,
		credentials: credentials,
		logger:      logger,
		inflight:    make(chan struct{}, maxInflight),
	}
}

// acquire reserves an in-flight slot without blocking. Saturation is
// surfaced as backpressure so the edge can return 503 immediately.
func (c *Client) acquire() (release func(), err error) {
	select {
	case c.inflight <- struct{}{}:
		return func() { <-c.inflight }, nil
	default:
		return nil, domain.ErrBackpressure
	}
}

// makeRequest performs one authenticated request and decodes the response
// into out. Non-2xx responses are mapped to domain payment-processor
// errors carrying the PSP's code and message.
func (c *Client) makeRequest(ctx context.Context, appID, method, endpoint string, request, out interface{}) error {
	release, err := c.acquire()
	if err != nil {
		return err
	}
	defer release()

	creds, err := c.credentials.Credentials(ctx, appID)
	if err != nil {
		return err
	}

	var body io.Reader
	if request != nil {
		payload, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+creds.SecretKey)
	httpReq.Header.Set("tilled-account", creds.AccountID)

	c.logger.Debug("psp request",
		zap.String("app_id", appID),
		zap.String("method", method),
		zap.String("endpoint", endpoint),
	)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return domain.WrapError(domain.ErrorCodeProcessorTimeout, "payment processor timed out", err)
		}
		return domain.WrapError(domain.ErrorCodeProcessorError, "payment processor unreachable", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return c.mapError(appID, endpoint, httpResp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

func (c *Client) mapError(appID, endpoint string, status int, body []byte) error {
	var pspErr errorResponse
	_ = json.Unmarshal(body, &pspErr)

	code := pspErr.code()
	message := pspErr.message()
	if code == "" {
		code = fmt.Sprintf("http_%d", status)
	}
	if message == "" {
		message = http.StatusText(status)
	}

	c.logger.Warn("psp error response",
		zap.String("app_id", appID),
		zap.String("endpoint", endpoint),
		zap.Int("status", status),
		zap.String("psp_code", code),
	)

	perr := domain.NewProcessorError(code, message)
	if status == http.StatusPaymentRequired || strings.Contains(code, "declined") {
		perr.Code = domain.ErrorCodeProcessorDeclined
	}
	return perr
}

func escape(s string) string {
	return url.PathEscape(s)
}
