package api

import (
	"bytes"
	"context"
	"log"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/store/sqlite"
)

func setupScheduler(t *testing.T, spec string) (*ReconciliationScheduler, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewReconciliationScheduler(store, store.KV(), spec, log.New(&bytes.Buffer{}, "", 0)), store
}

func TestScheduler_InvalidSpec(t *testing.T) {
	rs, _ := setupScheduler(t, "every now and then")

	err := rs.Start()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "every now and then")
}

func TestScheduler_StartStop(t *testing.T) {
	rs, _ := setupScheduler(t, "@every 1h")

	require.NoError(t, rs.Start())
	require.NoError(t, rs.Start(), "second start is a no-op")
	rs.Stop()
	rs.Stop()

	_, ran := rs.LastRun()
	assert.False(t, ran)
}

func TestScheduler_DisabledDoesNotSchedule(t *testing.T) {
	rs, _ := setupScheduler(t, "not a spec")
	rs.Enabled = false

	assert.NoError(t, rs.Start())
}

func TestScheduler_RunNowIsIdempotent(t *testing.T) {
	// GIVEN: A ledger row for a course that no longer exists
	rs, store := setupScheduler(t, "@every 1h")
	ctx := context.Background()
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rs.Now = func() time.Time { return at }

	require.NoError(t, rs.Ledger.Append(ctx, core.Transaction{
		ID:               "tx-1",
		PayerID:          "p1",
		CourseID:         "gone",
		ExternalChargeID: "ch_1",
		Amount:           decimal.NewFromInt(5),
		Currency:         "usd",
		CreatedAt:        at.Add(-time.Hour),
	}))

	// WHEN: Two passes run
	first := rs.RunNow(ctx)
	second := rs.RunNow(ctx)

	// THEN: Both passes see both gaps but each gap is stored once
	require.NoError(t, first.Err)
	assert.Equal(t, 1, first.Scanned)
	assert.Equal(t, 2, first.Gaps)
	assert.Equal(t, 2, second.Gaps)

	gaps, err := store.ListGaps(ctx)
	require.NoError(t, err)
	assert.Len(t, gaps, 2)

	last, ok := rs.LastRun()
	require.True(t, ok)
	assert.Equal(t, at, last.CompletedAt)
}

func TestScheduler_SweepsExpiredKeys(t *testing.T) {
	rs, store := setupScheduler(t, "@every 1h")
	ctx := context.Background()

	clock := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	kv := store.KV().WithClock(func() time.Time { return clock })
	require.NoError(t, kv.Set(ctx, cache.CourseKey("c1"), "{}", time.Minute))
	require.NoError(t, kv.Set(ctx, cache.CourseKey("c2"), "{}", time.Hour))
	clock = clock.Add(2 * time.Minute)

	run := rs.RunNow(ctx)

	require.NoError(t, run.Err)
	assert.Equal(t, 1, run.Swept)
}
