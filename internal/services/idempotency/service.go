package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/models"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"go.uber.org/zap"
)

// DefaultTTL is how long cached responses live when no TTL is configured
const DefaultTTL = 30 * 24 * time.Hour

// Service is the request-level replay cache. Before any side effect the
// edge asks Lookup; after the handler completes it calls Save. The cache
// is database-backed so replays survive restarts.
type Service struct {
	repo   ports.IdempotencyRepository
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewService creates an idempotency service. Zero ttl means the 30 day
// default.
func NewService(repo ports.IdempotencyRepository, logger *zap.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestHash computes SHA-256(method || path || canonical-json(body)).
// The body is canonicalized by decode/re-encode so that key order and
// whitespace do not defeat replay detection.
func RequestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte(path))
	h.Write(canonicalJSON(body))
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalJSON(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		// Not JSON: hash the raw bytes as-is.
		return body
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return body
	}
	return canonical
}

// Lookup returns the cached record for (appID, key) when the request hash
// matches, nil when the key is unseen, and an idempotency-conflict error
// when the key was used with a different payload.
func (s *Service) Lookup(ctx context.Context, appID, key, requestHash string) (*models.IdempotencyRecord, error) {
	record, err := s.repo.Get(ctx, nil, appID, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	if record.RequestHash != requestHash {
		return nil, domain.ErrIdempotencyConflict
	}
	return record, nil
}

// Save persists the completed response. A concurrent duplicate loses the
// insert race; in that case the winner's record is read back and returned
// so the caller can serve the winning response verbatim.
func (s *Service) Save(ctx context.Context, appID, key, requestHash string, statusCode int, responseBody []byte) (*models.IdempotencyRecord, error) {
	record := &models.IdempotencyRecord{
		AppID:        appID,
		Key:          key,
		RequestHash:  requestHash,
		StatusCode:   statusCode,
		ResponseBody: responseBody,
		ExpiresAt:    s.now().Add(s.ttl),
	}

	err := s.repo.Put(ctx, nil, record)
	if err == nil {
		return record, nil
	}
	if !domain.IsConflictError(err) {
		return nil, err
	}

	winner, readErr := s.repo.Get(ctx, nil, appID, key)
	if readErr != nil || winner == nil {
		return nil, err
	}
	if winner.RequestHash != requestHash {
		return nil, domain.ErrIdempotencyConflict
	}
	s.logger.Debug("idempotency insert lost race, serving winner",
		zap.String("app_id", appID),
		zap.String("key", key),
	)
	return winner, nil
}

// PurgeExpired removes entries past their TTL, returning rows removed
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteExpired(ctx, nil)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("purged expired idempotency records", zap.Int64("removed", removed))
	}
	return removed, nil
}
