package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"vayva-webhooks/pkg/config"
	"vayva-webhooks/pkg/security"
	"vayva-webhooks/services/endpoint"
	"vayva-webhooks/services/event"
)

const (
	maxAttempts    = 10
	requestTimeout = 10 * time.Second
	backoffCap     = 60 * time.Minute

	// claimLease bounds how long a worker owns a claimed row; a crashed
	// worker's claim expires with it and the scheduler re-enqueues.
	claimLease = 2 * time.Minute

	snippetMax      = 500
	maxResponseBody = 1024
)

// Engine executes one delivery transition at a time. It is the only component
// allowed to decrypt endpoint signing secrets.
type Engine struct {
	db     *gorm.DB
	client *http.Client
	aesKey []byte
}

func NewEngine(db *gorm.DB, cfg *config.Config) *Engine {
	return &Engine{
		db:     db,
		client: &http.Client{Timeout: requestTimeout},
		aesKey: security.KeyFromSecret(cfg.SecretAES),
	}
}

// Process claims and runs a single transition for the attempt. Attempts that
// are not due, already terminal, or owned by another worker are skipped.
func (e *Engine) Process(ctx context.Context, attemptID string) error {
	now := time.Now()

	// Claim: push next_retry_at forward conditionally. RowsAffected == 1
	// means this worker owns the row for the lease window.
	res := e.db.WithContext(ctx).Model(&Attempt{}).
		Where("id = ? AND status IN ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?",
			attemptID, []AttemptStatus{StatusPending, StatusFailed}, now).
		Update("next_retry_at", now.Add(claimLease))
	if res.Error != nil {
		return fmt.Errorf("claim attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	var attempt Attempt
	if err := e.db.WithContext(ctx).Where("id = ?", attemptID).First(&attempt).Error; err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("delivery_id", attempt.ID),
		zap.String("tenant_id", attempt.TenantID),
		zap.String("endpoint_id", attempt.EndpointID),
		zap.String("event_id", attempt.EventID),
	)

	// The engine only sees rows for the tenant that owns them.
	var ep endpoint.Endpoint
	if err := e.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", attempt.EndpointID, attempt.TenantID).
		First(&ep).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			zapLog.Warn("endpoint missing, dead-lettering attempt")
			return e.markDead(ctx, &attempt, "endpoint not found")
		}
		return fmt.Errorf("load endpoint: %w", err)
	}

	var ev event.Event
	if err := e.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", attempt.EventID, attempt.TenantID).
		First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			zapLog.Warn("event record missing, dead-lettering attempt")
			return e.markDead(ctx, &attempt, "event record not found")
		}
		return fmt.Errorf("load event: %w", err)
	}

	attempt.AttemptCount++

	code, snippet, delivered := e.send(ctx, &ep, &ev)

	attempt.ResponseCode = code
	attempt.ResponseSnippet = truncate(snippet, snippetMax)

	switch {
	case delivered:
		deliveredAt := time.Now()
		attempt.Status = StatusDelivered
		attempt.DeliveredAt = &deliveredAt
		attempt.NextRetryAt = nil
		zapLog.Info("webhook delivered", zap.Int("attempt", attempt.AttemptCount))

	case attempt.AttemptCount >= maxAttempts:
		attempt.Status = StatusDead
		attempt.NextRetryAt = nil
		zapLog.Warn("webhook dead-lettered, retries exhausted",
			zap.Int("attempt", attempt.AttemptCount),
			zap.String("snippet", attempt.ResponseSnippet),
		)

	default:
		retryAt := time.Now().Add(backoffDelay(attempt.AttemptCount))
		attempt.Status = StatusFailed
		attempt.NextRetryAt = &retryAt
		zapLog.Info("webhook delivery failed, retry scheduled",
			zap.Int("attempt", attempt.AttemptCount),
			zap.Time("next_retry_at", retryAt),
		)
	}

	if err := e.db.WithContext(ctx).Save(&attempt).Error; err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}

	return nil
}

// send posts the raw payload to the endpoint. Returns the response code (nil
// on transport error), a snippet of the response or error, and success.
func (e *Engine) send(ctx context.Context, ep *endpoint.Endpoint, ev *event.Event) (*int, string, bool) {
	secret, err := security.Decrypt(ep.SecretEnc, e.aesKey)
	if err != nil {
		return nil, fmt.Sprintf("decrypt endpoint secret: %v", err), false
	}

	body := []byte(ev.Payload)
	ts := time.Now().UnixMilli()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Sprintf("create request: %v", err), false
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, Sign(secret, ts, body))
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderEventType, ev.Type)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err.Error(), false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return &code, "", true
	}

	return &code, string(respBody), false
}

// markDead terminates an attempt that references missing data; retrying
// cannot help.
func (e *Engine) markDead(ctx context.Context, attempt *Attempt, reason string) error {
	attempt.Status = StatusDead
	attempt.ResponseSnippet = reason
	attempt.NextRetryAt = nil
	return e.db.WithContext(ctx).Save(attempt).Error
}

// backoffDelay is the exponential backoff for the n-th failed attempt,
// capped at one hour: min(2^n, 60) minutes.
func backoffDelay(n int) time.Duration {
	if n >= 6 { // 2^6 = 64 > 60
		return backoffCap
	}
	d := time.Duration(1<<uint(n)) * time.Minute
	if d > backoffCap {
		return backoffCap
	}
	return d
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
