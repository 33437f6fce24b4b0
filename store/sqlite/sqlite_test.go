package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagekit/policy-engine/policy"
	"github.com/engagekit/policy-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id string, p policy.Priority, scope policy.Scope) policy.ExceptionRecord {
	now := time.Now().UTC()
	return policy.ExceptionRecord{
		ID:              id,
		Domain:          policy.DomainTask,
		Priority:        p,
		CompanyID:       scope.CompanyID,
		SubDepartmentID: scope.SubDepartmentID,
		UserID:          scope.UserID,
		Payload:         json.RawMessage(`{"daily_task_quota": 10}`),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// =============================================================================
// SCOPE UNIQUENESS
// =============================================================================

func TestInsertException_DuplicateAdminScope_Conflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertException(ctx, record("a1", policy.PriorityAdmin, policy.Scope{CompanyID: "acme"})))

	err := s.InsertException(ctx, record("a2", policy.PriorityAdmin, policy.Scope{CompanyID: "acme"}))
	assert.ErrorIs(t, err, policy.ErrScopeConflict)
}

func TestInsertException_DuplicateSubDepartmentScope_Conflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	scope := policy.Scope{CompanyID: "acme", SubDepartmentID: "sd-1"}

	require.NoError(t, s.InsertException(ctx, record("s1", policy.PrioritySubDepartment, scope)))

	err := s.InsertException(ctx, record("s2", policy.PrioritySubDepartment, scope))
	assert.ErrorIs(t, err, policy.ErrScopeConflict)
}

func TestInsertException_SameScopeDifferentPriority_Allowed(t *testing.T) {
	// The partial indexes are per priority level: an ADMIN record and a
	// SUB_DEPARTMENT record can share a company.
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertException(ctx, record("a1", policy.PriorityAdmin, policy.Scope{CompanyID: "acme"})))
	require.NoError(t, s.InsertException(ctx, record("s1", policy.PrioritySubDepartment,
		policy.Scope{CompanyID: "acme", SubDepartmentID: "sd-1"})))
}

func TestUpdateException_MoveOntoOccupiedScope_Conflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertException(ctx, record("s1", policy.PrioritySubDepartment,
		policy.Scope{CompanyID: "acme", SubDepartmentID: "sd-1"})))
	require.NoError(t, s.InsertException(ctx, record("s2", policy.PrioritySubDepartment,
		policy.Scope{CompanyID: "acme", SubDepartmentID: "sd-2"})))

	moved := record("s2", policy.PrioritySubDepartment, policy.Scope{CompanyID: "acme", SubDepartmentID: "sd-1"})
	err := s.UpdateException(ctx, moved)
	assert.ErrorIs(t, err, policy.ErrScopeConflict)
}

func TestUpdateException_UnknownID_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateException(context.Background(),
		record("ghost", policy.PrioritySubDepartment, policy.Scope{CompanyID: "acme", SubDepartmentID: "sd-1"}))
	assert.ErrorIs(t, err, policy.ErrNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx policy.Store) error {
		if err := tx.InsertException(ctx, record("a1", policy.PriorityAdmin, policy.Scope{CompanyID: "acme"})); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	rec, err := s.GetException(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, rec, "rolled-back insert must not be visible")
}

func TestWithTx_ReadsSeeEarlierWritesInSameTx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx policy.Store) error {
		if err := tx.InsertException(ctx, record("a1", policy.PriorityAdmin, policy.Scope{CompanyID: "acme"})); err != nil {
			return err
		}
		rec, err := tx.GetException(ctx, "a1")
		if err != nil {
			return err
		}
		if rec == nil {
			return errors.New("uncommitted write invisible inside its own transaction")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestWithTx_CommitMakesWritesVisible(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx policy.Store) error {
		return tx.InsertException(ctx, record("a1", policy.PriorityAdmin, policy.Scope{CompanyID: "acme"}))
	}))

	rec, err := s.GetException(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, policy.PriorityAdmin, rec.Priority)
}

// =============================================================================
// POINTERS
// =============================================================================

func TestSetPointer_Upserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetPointer(ctx, policy.PolicyPointer{
		UserID: "u1", Domain: policy.DomainTask, ExceptionID: "a1",
		Priority: policy.PriorityAdmin, UpdatedAt: time.Now(),
	}))
	require.NoError(t, s.SetPointer(ctx, policy.PolicyPointer{
		UserID: "u1", Domain: policy.DomainTask, ExceptionID: "s1",
		Priority: policy.PrioritySubDepartment, UpdatedAt: time.Now(),
	}))

	ptr, err := s.GetPointer(ctx, "u1", policy.DomainTask)
	require.NoError(t, err)
	require.NotNil(t, ptr)
	assert.Equal(t, "s1", ptr.ExceptionID)
	assert.Equal(t, policy.PrioritySubDepartment, ptr.Priority)

	ptrs, err := s.PointersForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ptrs, 1, "upsert must not create a second row")
}

func TestSubDepartmentPointers_FiltersBySubDepartment(t *testing.T) {
	// u1 and u2 are in sd-1, u3 in sd-2. u2 is USER-pinned onto the record
	// being deleted, so the exception-id branch must still catch them;
	// u3 holds a SUB_DEPARTMENT pointer but lives elsewhere and must not
	// be touched.
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, u := range []policy.User{
		{ID: "u1", CompanyID: "acme", SubDepartmentID: "sd-1", CreatedAt: now},
		{ID: "u2", CompanyID: "acme", SubDepartmentID: "sd-1", CreatedAt: now},
		{ID: "u3", CompanyID: "acme", SubDepartmentID: "sd-2", CreatedAt: now},
	} {
		require.NoError(t, s.SaveUser(ctx, u))
	}

	require.NoError(t, s.SetPointer(ctx, policy.PolicyPointer{
		UserID: "u1", Domain: policy.DomainTask, ExceptionID: "sd1-rec",
		Priority: policy.PrioritySubDepartment, UpdatedAt: now,
	}))
	require.NoError(t, s.SetPointer(ctx, policy.PolicyPointer{
		UserID: "u2", Domain: policy.DomainTask, ExceptionID: "sd1-rec",
		Priority: policy.PriorityUser, UpdatedAt: now,
	}))
	require.NoError(t, s.SetPointer(ctx, policy.PolicyPointer{
		UserID: "u3", Domain: policy.DomainTask, ExceptionID: "sd2-rec",
		Priority: policy.PrioritySubDepartment, UpdatedAt: now,
	}))

	ptrs, err := s.SubDepartmentPointers(ctx, policy.DomainTask, "sd-1", "sd1-rec")
	require.NoError(t, err)
	require.Len(t, ptrs, 2)
	assert.Equal(t, "u1", ptrs[0].UserID)
	assert.Equal(t, "u2", ptrs[1].UserID)
}

// =============================================================================
// EFFECTS OUTBOX
// =============================================================================

func TestEffects_FullLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	eff := policy.Effect{
		ID: "eff-1",
		Change: policy.Change{
			Domain:           policy.DomainLeadScore,
			CompanyID:        "acme",
			UserIDs:          []string{"u1", "u2"},
			SubDepartmentIDs: []string{"sd-1"},
			OldPayload:       json.RawMessage(`{"score_threshold": "10"}`),
			NewPayload:       json.RawMessage(`{"score_threshold": "20"}`),
		},
		NextAttemptAt: now.Add(-time.Second),
		CreatedAt:     now,
	}
	require.NoError(t, s.EnqueueEffect(ctx, eff))

	due, err := s.DueEffects(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, []string{"u1", "u2"}, due[0].Change.UserIDs)
	assert.Equal(t, []string{"sd-1"}, due[0].Change.SubDepartmentIDs)
	assert.JSONEq(t, `{"score_threshold": "20"}`, string(due[0].Change.NewPayload))

	// Reschedule pushes it past the horizon.
	require.NoError(t, s.RescheduleEffect(ctx, "eff-1", 1, now.Add(time.Minute), "boom"))
	due, err = s.DueEffects(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Due again after the backoff, carrying the attempt count.
	due, err = s.DueEffects(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	// Dispatched effects leave the queue for good.
	require.NoError(t, s.MarkDispatched(ctx, "eff-1", now))
	due, err = s.DueEffects(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestEffects_MarkFailedRemovesFromQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.EnqueueEffect(ctx, policy.Effect{
		ID:            "eff-1",
		Change:        policy.Change{Domain: policy.DomainTask, CompanyID: "acme"},
		NextAttemptAt: now,
		CreatedAt:     now,
	}))
	require.NoError(t, s.MarkFailed(ctx, "eff-1", "gave up"))

	due, err := s.DueEffects(ctx, now.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestMarkDispatched_UnknownEffect_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.MarkDispatched(context.Background(), "ghost", time.Now())
	assert.ErrorIs(t, err, policy.ErrNotFound)
}
