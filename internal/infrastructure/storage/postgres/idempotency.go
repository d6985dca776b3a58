package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"magazzino/internal/core/apperror"
)

// IdempotencyStatus is the lifecycle state of an idempotent operation.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyRecord is one row of sys_idempotency: the outcome of a
// mutating request keyed by its Idempotency-Key header.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"` // sha256 of the request body
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is the cached HTTP response served on a retry.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// IdempotencyStore persists idempotency keys in the tenant database so
// an unknown-outcome append can be retried safely.
type IdempotencyStore struct {
	pool      *pgxpool.Pool
	txManager *TxManager
	ttl       time.Duration
}

// NewIdempotencyStore creates a store over the wrapped pool.
func NewIdempotencyStore(pool *Pool, txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		pool:      pool.Pool, // unwrap the raw pgxpool.Pool
		txManager: txManager,
		ttl:       ttl,
	}
}

// NewIdempotencyStoreFromRawPool creates a store over a raw pool, for
// the per-tenant case where the pool comes from the request context.
func NewIdempotencyStoreFromRawPool(pool *pgxpool.Pool, txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		pool:      pool,
		txManager: txManager,
		ttl:       ttl,
	}
}

// AcquireKey claims an idempotency key. It returns (nil, nil) when the
// key is fresh, the cached response when the operation already finished,
// and an error when another request still holds the key or the key is
// being reused for a different request.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	// xmax = 0 distinguishes a genuine insert from the conflict-update
	// path; two concurrent requests with the same key must not both
	// think they inserted it.
	var record IdempotencyRecord
	var inserted bool
	err := s.txManager.GetQuerier(ctx).QueryRow(ctx, `
		INSERT INTO sys_idempotency (idempotency_key, user_id, operation, status, request_hash, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7)
		ON CONFLICT (idempotency_key) DO UPDATE SET
			expires_at = GREATEST(sys_idempotency.expires_at, $7)
		RETURNING idempotency_key, user_id, operation, status, request_hash, response, response_status, response_content_type, created_at, updated_at, expires_at, (xmax = 0)
	`, key, userID, operation, IdempotencyStatusPending, requestHash, now, expiresAt).Scan(
		&record.Key, &record.UserID, &record.Operation, &record.Status,
		&record.RequestHash, &record.Response, &record.StatusCode, &record.ContentType,
		&record.CreatedAt, &record.UpdatedAt, &record.ExpiresAt, &inserted,
	)

	if err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}

	outcome, replay, err := classifyAcquiredKey(record, inserted, userID, operation, requestHash, now)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case acquireReplay:
		return replay, nil

	case acquireReclaim:
		_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
			UPDATE sys_idempotency 
			SET status = $1, updated_at = $2
			WHERE idempotency_key = $3 AND status = $4
		`, IdempotencyStatusPending, now, key, IdempotencyStatusPending)
		if err != nil {
			return nil, fmt.Errorf("reclaim stale key: %w", err)
		}
		return nil, nil
	}

	return nil, nil
}

type acquireOutcome int

const (
	// acquireFresh means this request owns the key and should execute.
	acquireFresh acquireOutcome = iota
	// acquireReplay means the operation already finished; serve the
	// stored response.
	acquireReplay
	// acquireReclaim means a crashed request left the key pending; take
	// it over.
	acquireReclaim
)

// classifyAcquiredKey decides what an acquired key row means for this
// request. Ownership rests on whether the row was actually inserted:
// two concurrent requests with the same key must resolve to one owner
// and one conflict, never two executions.
func classifyAcquiredKey(record IdempotencyRecord, inserted bool, userID, operation, requestHash string, now time.Time) (acquireOutcome, *IdempotencyReplay, error) {
	if inserted {
		return acquireFresh, nil, nil
	}

	// Key exists: protect against reuse for a different request.
	if record.UserID != userID || record.Operation != operation || record.RequestHash != requestHash {
		return 0, nil, apperror.NewIdempotencyMismatch(record.Key).
			WithDetail("stored_user_id", record.UserID).
			WithDetail("request_user_id", userID).
			WithDetail("stored_operation", record.Operation).
			WithDetail("request_operation", operation).
			WithDetail("stored_request_hash", record.RequestHash).
			WithDetail("request_request_hash", requestHash)
	}

	switch record.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return acquireReplay, &IdempotencyReplay{
			StatusCode:  normalizeReplayStatus(record.StatusCode),
			ContentType: normalizeReplayContentType(record.ContentType),
			Body:        record.Response,
		}, nil

	case IdempotencyStatusPending:
		// a pending key older than a minute belongs to a crashed request
		if now.Sub(record.UpdatedAt) > time.Minute {
			return acquireReclaim, nil, nil
		}
		return 0, nil, apperror.NewIdempotencyConflict(record.Key)
	}

	return acquireFresh, nil, nil
}

// CompleteKey records the successful response against the key.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	var responseBytes []byte
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			return fmt.Errorf("marshal response: %w", err)
		}
		responseBytes = b
	}

	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency 
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, IdempotencyStatusSuccess, responseBytes, statusCode, contentType, time.Now().UTC(), key)

	return err
}

// FailKey records a failed response against the key so retries replay
// the same error instead of re-executing. Only terminal failures belong
// here; retryable outcomes release the key instead.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	var responseBytes []byte
	if response != nil {
		b, err := json.Marshal(response)
		if err != nil {
			responseBytes, _ = json.Marshal(map[string]string{"error": err.Error()})
		} else {
			responseBytes = b
		}
	}

	_, execErr := s.txManager.GetQuerier(ctx).Exec(ctx, `
		UPDATE sys_idempotency 
		SET status = $1,
		    response = $2,
		    response_status = $3,
		    response_content_type = $4,
		    updated_at = $5
		WHERE idempotency_key = $6
	`, IdempotencyStatusFailed, responseBytes, statusCode, contentType, time.Now().UTC(), key)

	return execErr
}

// ReleaseKey drops a still-pending key so the caller can resubmit and
// actually re-execute. Used for retryable outcomes such as BUSY, where
// caching the failure would make the retry replay it forever.
func (s *IdempotencyStore) ReleaseKey(ctx context.Context, key string) error {
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency
		WHERE idempotency_key = $1 AND status = $2
	`, key, IdempotencyStatusPending)
	return err
}

func normalizeReplayStatus(status int) int {
	// rows written before response_status existed carry 0
	if status == 0 {
		return 200
	}
	return status
}

func normalizeReplayContentType(ct string) string {
	if ct == "" {
		return "application/json"
	}
	return ct
}

// CleanupExpired deletes expired records. The worker runs it on a
// timer.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.txManager.GetQuerier(ctx).Exec(ctx, `
		DELETE FROM sys_idempotency WHERE expires_at < $1
	`, time.Now().UTC())

	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
