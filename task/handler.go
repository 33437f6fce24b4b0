package task

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/engagekit/policy-engine/policy"
)

// QuotaRecalculator re-derives per-user daily quotas and late thresholds.
// Implementations must be idempotent: the relay retries on failure and may
// deliver the same change twice.
type QuotaRecalculator interface {
	RecalculateUsers(ctx context.Context, companyID string, userIDs []string) error
	RecalculateSubDepartments(ctx context.Context, companyID string, sdIDs []string) error
}

// Handler applies committed task setting changes to downstream quota state.
type Handler struct {
	Recalc QuotaRecalculator
	Log    *logrus.Logger
}

func (h *Handler) HandleEffect(ctx context.Context, ch policy.Change) error {
	if len(ch.SubDepartmentIDs) > 0 {
		if err := h.Recalc.RecalculateSubDepartments(ctx, ch.CompanyID, ch.SubDepartmentIDs); err != nil {
			return fmt.Errorf("recalculate sub-department quotas: %w", err)
		}
	}
	if len(ch.UserIDs) > 0 {
		if err := h.Recalc.RecalculateUsers(ctx, ch.CompanyID, ch.UserIDs); err != nil {
			return fmt.Errorf("recalculate user quotas: %w", err)
		}
	}
	h.Log.WithFields(logrus.Fields{
		"company": ch.CompanyID,
		"users":   len(ch.UserIDs),
		"sds":     len(ch.SubDepartmentIDs),
	}).Debug("task quotas recalculated")
	return nil
}
