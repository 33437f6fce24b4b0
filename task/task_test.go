package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagekit/policy-engine/policy"
	"github.com/engagekit/policy-engine/task"
)

func TestNormalize_ValidPayload(t *testing.T) {
	raw := json.RawMessage(`{"daily_task_quota": 20, "late_after_days": 3, "carry_over_unfinished": true}`)

	normalized, err := task.Codec{}.Normalize(raw)
	require.NoError(t, err)

	p, err := task.Parse(normalized)
	require.NoError(t, err)
	assert.Equal(t, 20, p.DailyTaskQuota)
	assert.Equal(t, 3, p.LateAfterDays)
	assert.True(t, p.CarryOverUnfinished)
}

func TestNormalize_RejectsZeroQuota(t *testing.T) {
	_, err := task.Codec{}.Normalize(json.RawMessage(`{"daily_task_quota": 0}`))
	assert.ErrorIs(t, err, policy.ErrValidation)
}

func TestNormalize_RejectsNegativeLateThreshold(t *testing.T) {
	_, err := task.Codec{}.Normalize(json.RawMessage(`{"daily_task_quota": 5, "late_after_days": -1}`))
	assert.ErrorIs(t, err, policy.ErrValidation)
}

func TestRegistered_AlwaysRecomputes(t *testing.T) {
	desc, ok := policy.LookupDomain(policy.DomainTask)
	require.True(t, ok)
	assert.Equal(t, task.Slug, desc.Slug)
	assert.True(t, desc.NeedsRecompute(nil, nil))
}

// recordingRecalc captures what the handler asked to be recalculated.
type recordingRecalc struct {
	users []string
	sds   []string
	err   error
}

func (r *recordingRecalc) RecalculateUsers(_ context.Context, _ string, userIDs []string) error {
	r.users = append(r.users, userIDs...)
	return r.err
}

func (r *recordingRecalc) RecalculateSubDepartments(_ context.Context, _ string, sdIDs []string) error {
	r.sds = append(r.sds, sdIDs...)
	return r.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestHandler_RecalculatesUsersAndSubDepartments(t *testing.T) {
	recalc := &recordingRecalc{}
	h := &task.Handler{Recalc: recalc, Log: quietLogger()}

	err := h.HandleEffect(context.Background(), policy.Change{
		Domain:           policy.DomainTask,
		CompanyID:        "acme",
		UserIDs:          []string{"u1", "u2"},
		SubDepartmentIDs: []string{"sd-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, recalc.users)
	assert.Equal(t, []string{"sd-1"}, recalc.sds)
}

func TestHandler_PropagatesRecalcFailure(t *testing.T) {
	recalc := &recordingRecalc{err: errors.New("quota service down")}
	h := &task.Handler{Recalc: recalc, Log: quietLogger()}

	err := h.HandleEffect(context.Background(), policy.Change{
		Domain:  policy.DomainTask,
		UserIDs: []string{"u1"},
	})
	assert.Error(t, err)
}
