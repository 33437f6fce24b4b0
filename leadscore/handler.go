package leadscore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/engagekit/policy-engine/policy"
)

// ScoreResetter rebuilds accumulated lead scores for the affected reps.
// Implementations must be idempotent across relay retries.
type ScoreResetter interface {
	ResetUsers(ctx context.Context, companyID string, userIDs []string) error
	ResetSubDepartments(ctx context.Context, companyID string, sdIDs []string) error
}

// Handler applies committed lead score changes to derived score state.
// Changes that leave the threshold and reset period untouched are dropped
// without touching the resetter.
type Handler struct {
	Resetter ScoreResetter
	Log      *logrus.Logger
}

func (h *Handler) HandleEffect(ctx context.Context, ch policy.Change) error {
	if !NeedsRecompute(ch.OldPayload, ch.NewPayload) {
		h.Log.WithField("company", ch.CompanyID).Debug("lead score change is cosmetic, skipping reset")
		return nil
	}
	if len(ch.SubDepartmentIDs) > 0 {
		if err := h.Resetter.ResetSubDepartments(ctx, ch.CompanyID, ch.SubDepartmentIDs); err != nil {
			return fmt.Errorf("reset sub-department scores: %w", err)
		}
	}
	if len(ch.UserIDs) > 0 {
		if err := h.Resetter.ResetUsers(ctx, ch.CompanyID, ch.UserIDs); err != nil {
			return fmt.Errorf("reset user scores: %w", err)
		}
	}
	return nil
}
