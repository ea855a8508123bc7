package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/approvalflow/internal/domain"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(time.Hour, time.Minute, zap.NewNop())
}

func pendingRecord(id string) *domain.ApprovalRecord {
	return &domain.ApprovalRecord{
		ID:          id,
		RequesterID: "U1",
		ApproverID:  "U2",
		RequestText: "Need sign-off",
		Status:      domain.StatusPending,
	}
}

func TestMemoryStorePutGet(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, pendingRecord("a1")))

	rec, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, rec.Status)
	assert.Equal(t, "U1", rec.RequesterID)
	assert.Equal(t, "U2", rec.ApproverID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestMemoryStorePutDuplicate(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, pendingRecord("a1")))
	assert.ErrorIs(t, s.Put(ctx, pendingRecord("a1")), ErrAlreadyExists)
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := newTestStore()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDecideUnknown(t *testing.T) {
	s := newTestStore()

	_, _, err := s.Decide(context.Background(), "missing", domain.StatusApproved, "U2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDecideFirstWriteWins(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, pendingRecord("a1")))

	rec, swapped, err := s.Decide(ctx, "a1", domain.StatusApproved, "U2")
	require.NoError(t, err)
	assert.True(t, swapped)
	assert.Equal(t, domain.StatusApproved, rec.Status)
	require.NotNil(t, rec.DecidedBy)
	assert.Equal(t, "U2", *rec.DecidedBy)

	// Повторный клик (reject) не меняет зафиксированный статус
	rec, swapped, err = s.Decide(ctx, "a1", domain.StatusRejected, "U3")
	require.NoError(t, err)
	assert.False(t, swapped)
	assert.Equal(t, domain.StatusApproved, rec.Status)
	assert.Equal(t, "U2", *rec.DecidedBy)

	stored, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, stored.Status)
}

func TestMemoryStoreReturnedRecordIsCopy(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, pendingRecord("a1")))

	rec, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	rec.Status = domain.StatusRejected

	stored, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.Status)
}

func TestMemoryStoreSweepEvictsOnlyStaleResolved(t *testing.T) {
	s := NewMemoryStore(time.Hour, time.Minute, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, pendingRecord("stale-resolved")))
	require.NoError(t, s.Put(ctx, pendingRecord("fresh-resolved")))
	require.NoError(t, s.Put(ctx, pendingRecord("still-pending")))

	_, _, err := s.Decide(ctx, "stale-resolved", domain.StatusApproved, "U2")
	require.NoError(t, err)
	_, _, err = s.Decide(ctx, "fresh-resolved", domain.StatusRejected, "U2")
	require.NoError(t, err)

	// Старим первую решенную заявку руками
	s.mu.Lock()
	s.records["stale-resolved"].UpdatedAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	evicted := s.sweep(time.Now())
	assert.Equal(t, 1, evicted)

	_, err = s.Get(ctx, "stale-resolved")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get(ctx, "fresh-resolved")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "still-pending")
	assert.NoError(t, err)
}

func TestMemoryStoreSweepNeverEvictsPending(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, pendingRecord("old-pending")))
	s.mu.Lock()
	s.records["old-pending"].UpdatedAt = time.Now().Add(-48 * time.Hour)
	s.mu.Unlock()

	assert.Equal(t, 0, s.sweep(time.Now()))

	_, err := s.Get(ctx, "old-pending")
	assert.NoError(t, err)
}
