package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magazzino/internal/core/apperror"
)

func pendingRecord(now time.Time) IdempotencyRecord {
	return IdempotencyRecord{
		Key:         "idem-key-1",
		UserID:      "user-1",
		Operation:   "ledger.append",
		Status:      IdempotencyStatusPending,
		RequestHash: "hash-1",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestClassifyAcquiredKey_InsertedOwnsTheKey(t *testing.T) {
	now := time.Now().UTC()

	outcome, replay, err := classifyAcquiredKey(pendingRecord(now), true, "user-1", "ledger.append", "hash-1", now)

	require.NoError(t, err)
	assert.Nil(t, replay)
	assert.Equal(t, acquireFresh, outcome)
}

func TestClassifyAcquiredKey_ConcurrentDuplicateConflicts(t *testing.T) {
	// Two requests race on the same fresh key. The loser sees the row
	// the winner just inserted, created moments ago. Only the actual
	// insert may execute; the loser must get a conflict.
	now := time.Now().UTC()

	_, _, err := classifyAcquiredKey(pendingRecord(now), false, "user-1", "ledger.append", "hash-1", now)

	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIdempotency, appErr.Code)
}

func TestClassifyAcquiredKey_FinishedOperationReplays(t *testing.T) {
	now := time.Now().UTC()

	for _, status := range []IdempotencyStatus{IdempotencyStatusSuccess, IdempotencyStatusFailed} {
		rec := pendingRecord(now.Add(-10 * time.Second))
		rec.Status = status
		rec.StatusCode = 201
		rec.ContentType = "application/json"
		rec.Response = []byte(`{"id":"m-1"}`)

		outcome, replay, err := classifyAcquiredKey(rec, false, "user-1", "ledger.append", "hash-1", now)

		require.NoError(t, err)
		assert.Equal(t, acquireReplay, outcome)
		require.NotNil(t, replay)
		assert.Equal(t, 201, replay.StatusCode)
		assert.Equal(t, []byte(`{"id":"m-1"}`), replay.Body)
	}
}

func TestClassifyAcquiredKey_StalePendingIsReclaimed(t *testing.T) {
	now := time.Now().UTC()
	rec := pendingRecord(now.Add(-2 * time.Minute))

	outcome, replay, err := classifyAcquiredKey(rec, false, "user-1", "ledger.append", "hash-1", now)

	require.NoError(t, err)
	assert.Nil(t, replay)
	assert.Equal(t, acquireReclaim, outcome)
}

func TestClassifyAcquiredKey_DifferentRequestHashRejected(t *testing.T) {
	now := time.Now().UTC()

	_, _, err := classifyAcquiredKey(pendingRecord(now), false, "user-1", "ledger.append", "other-hash", now)

	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeIdempotency, appErr.Code)
	assert.Equal(t, "hash-1", appErr.Details["stored_request_hash"])
}
