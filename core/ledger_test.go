package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/enrollment-engine/core"
	"github.com/warp/enrollment-engine/core/store"
)

func purchase(id, payer, course string, at time.Time) core.Transaction {
	return core.Transaction{
		ID:               core.TransactionID(id),
		PayerID:          core.UserID(payer),
		CourseID:         core.CourseID(course),
		ExternalChargeID: "ch_" + id,
		Amount:           decimal.NewFromInt(20),
		Currency:         "usd",
		Provider:         "stripe",
		CreatedAt:        at,
	}
}

func TestLedger_DuplicateChargeID_Rejected(t *testing.T) {
	// GIVEN: A purchase recorded with charge id ch_tx-1
	// WHEN: The same charge is replayed
	// THEN: The store rejects it and the ledger holds one row

	ctx := context.Background()
	ledger := core.NewLedger(store.NewMemory())

	tx := purchase("tx-1", "p1", "c1", refNow)
	require.NoError(t, ledger.Append(ctx, tx))

	err := ledger.Append(ctx, tx)
	assert.ErrorIs(t, err, core.ErrDuplicateChargeID)

	all, err := ledger.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLedger_MissingChargeID_Rejected(t *testing.T) {
	ledger := core.NewLedger(store.NewMemory())
	tx := purchase("tx-1", "p1", "c1", refNow)
	tx.ExternalChargeID = ""

	err := ledger.Append(context.Background(), tx)
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestLedger_FindByPayerCourse(t *testing.T) {
	ctx := context.Background()
	ledger := core.NewLedger(store.NewMemory())
	require.NoError(t, ledger.Append(ctx, purchase("tx-1", "p1", "c1", refNow)))

	found, err := ledger.FindByPayerCourse(ctx, "p1", "c1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, core.TransactionID("tx-1"), found.ID)

	missing, err := ledger.FindByPayerCourse(ctx, "p1", "c2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLedger_Queries_NewestFirstAndFiltered(t *testing.T) {
	// GIVEN: Purchases across two payers, two courses and three days
	ctx := context.Background()
	ledger := core.NewLedger(store.NewMemory())

	d1 := time.Date(2025, time.March, 1, 10, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	d3 := d1.AddDate(0, 0, 2)
	require.NoError(t, ledger.Append(ctx, purchase("tx-2", "p1", "c2", d2)))
	require.NoError(t, ledger.Append(ctx, purchase("tx-1", "p1", "c1", d1)))
	require.NoError(t, ledger.Append(ctx, purchase("tx-3", "p2", "c1", d3)))

	// WHEN/THEN: Range queries are inclusive and sorted newest first
	all, err := ledger.InRange(ctx, core.Period{Start: d1, End: d3})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.TransactionID("tx-3"), all[0].ID)
	assert.Equal(t, core.TransactionID("tx-1"), all[2].ID)

	byPayer, err := ledger.ByPayer(ctx, "p1", core.Period{Start: d1, End: d3})
	require.NoError(t, err)
	assert.Len(t, byPayer, 2)

	byCourse, err := ledger.ByCourses(ctx, []core.CourseID{"c1"}, core.Period{Start: d2, End: d3})
	require.NoError(t, err)
	require.Len(t, byCourse, 1)
	assert.Equal(t, core.TransactionID("tx-3"), byCourse[0].ID)

	none, err := ledger.ByCourses(ctx, nil, core.Period{Start: d1, End: d3})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestErrors_Classification(t *testing.T) {
	storageErr := &core.StorageError{Op: "append transaction", Err: core.ErrDuplicateChargeID}
	assert.ErrorIs(t, storageErr, core.ErrStorageFailure)
	assert.ErrorIs(t, storageErr, core.ErrDuplicateChargeID)

	gwErr := &core.GatewayError{Op: "create intent", StatusCode: 502, Err: errors.New("bad gateway")}
	assert.ErrorIs(t, gwErr, core.ErrGatewayFailure)
	assert.Contains(t, gwErr.Error(), "502")

	assert.True(t, core.IsRetryable(core.ErrEnrollmentInProgress))
	assert.True(t, core.IsConflict(core.ErrAlreadyEnrolled))
	assert.True(t, core.IsNotFound(core.ErrPayerNotFound))
	assert.False(t, core.IsClientError(core.ErrStorageFailure))
}

func TestMemoryStore_ProgressUniquePerPayerCourse(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	p := core.CourseProgress{PayerID: "p1", CourseID: "c1", EnrollmentDate: refNow}
	require.NoError(t, s.CreateProgress(ctx, p))
	assert.ErrorIs(t, s.CreateProgress(ctx, p), core.ErrDuplicateProgress)

	got, err := s.GetProgress(ctx, "p1", "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.CourseID("c1"), got.CourseID)
}

func TestMemoryStore_AppendEnrollment(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.SaveCourse(ctx, core.Course{ID: "c1", Title: "Go"}))

	require.NoError(t, s.AppendEnrollment(ctx, "c1", core.EnrollmentRecord{PayerID: "p1", EnrolledAt: refNow}))
	assert.ErrorIs(t, s.AppendEnrollment(ctx, "missing", core.EnrollmentRecord{PayerID: "p1"}), core.ErrCourseNotFound)

	c, err := s.GetCourse(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, c.IsEnrolled("p1"))

	// Mutating the returned copy does not leak into the store.
	c.Enrollments = nil
	again, err := s.GetCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, again.Enrollments, 1)
}
