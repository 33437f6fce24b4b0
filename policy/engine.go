/*
engine.go - The cascade algorithm

PURPOSE:
  Every create/update/delete of an override must atomically re-point every
  affected user so the resolution invariant holds at commit: a user's pointer
  targets their own USER override if one exists, else the SUB_DEPARTMENT
  override for their sub-department if one exists, else the company ADMIN
  override. This file is the only writer of pointers.

CASCADE RULES:
  Create SUB_DEPARTMENT for sd S:
    re-point every user of S whose pointer priority is not USER.
  Create USER for user U:
    re-point U unconditionally (USER always dominates).
  Update that changes scope:
    validate the new scope is free, revert the old scope's users to their
    next-lower applicable level, then apply the create rule at the new scope.
    One transaction; any failure rolls the whole thing back.
  Update that keeps scope:
    payload only; pointers untouched, but an effect still fires so downstream
    jobs can compare old vs new payloads.
  Delete SUB_DEPARTMENT:
    revert that sub-department's affected users to the company ADMIN record.
  Delete USER:
    revert the user to their sub-department override if one exists, else ADMIN.
  ADMIN records are never created, updated, or deleted through this API.

EFFECTS:
  Each mutation enqueues exactly one Effect row inside the same transaction;
  the dispatch relay delivers it after commit.

SEE ALSO:
  - provision.go: Company/user provisioning and sub-department reassignment
  - store.go: Interface contract, incl. the scope-uniqueness constraint
*/
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store TxStore
	log   *logrus.Logger

	now   func() time.Time
	newID func() string
}

func NewEngine(store TxStore, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// =============================================================================
// CREATE
// =============================================================================

// CreateException creates a SUB_DEPARTMENT or USER override and re-points the
// affected users inside one transaction.
func (e *Engine) CreateException(ctx context.Context, d Domain, p Priority, scope Scope, payload json.RawMessage) (*ExceptionRecord, error) {
	desc, err := mustLookupDomain(d)
	if err != nil {
		return nil, err
	}
	switch p {
	case PriorityAdmin:
		return nil, fmt.Errorf("%w: admin overrides are provisioned, not created", ErrForbidden)
	case PrioritySubDepartment:
		if scope.UserID != "" {
			return nil, fmt.Errorf("%w: sub-department override must not carry a user id", ErrForbidden)
		}
		if scope.SubDepartmentID == "" {
			return nil, &ValidationError{Domain: d, Field: "sd_id", Message: "required for sub-department priority"}
		}
	case PriorityUser:
		if scope.UserID == "" {
			return nil, &ValidationError{Domain: d, Field: "user_id", Message: "required for user priority"}
		}
	default:
		return nil, &ValidationError{Domain: d, Field: "priority", Message: "unknown priority"}
	}
	if scope.CompanyID == "" {
		return nil, &ValidationError{Domain: d, Field: "company_id", Message: "required"}
	}

	normalized, err := desc.Codec.Normalize(payload)
	if err != nil {
		return nil, err
	}

	var rec *ExceptionRecord
	err = e.store.WithTx(ctx, func(s Store) error {
		company, err := s.GetCompany(ctx, scope.CompanyID)
		if err != nil {
			return storeErr(err)
		}
		if company == nil {
			return &NotFoundError{Kind: "company", ID: scope.CompanyID}
		}

		// The user's sub-department is taken from the directory, not from the
		// client: a USER record carries it for fallback lookups and it must
		// match reality.
		if p == PriorityUser {
			user, err := s.GetUser(ctx, scope.UserID)
			if err != nil {
				return storeErr(err)
			}
			if user == nil {
				return &NotFoundError{Kind: "user", ID: scope.UserID}
			}
			if user.CompanyID != scope.CompanyID {
				return &ValidationError{Domain: d, Field: "user_id", Message: "user belongs to a different company"}
			}
			scope.SubDepartmentID = user.SubDepartmentID
		}

		// Fast-path conflict check; the unique index is the real guard.
		existing, err := s.FindByScope(ctx, d, p, scope)
		if err != nil {
			return storeErr(err)
		}
		if existing != nil {
			return &ScopeConflictError{Domain: d, Priority: p, Scope: scope, ExistingID: existing.ID}
		}

		now := e.now()
		newRec := ExceptionRecord{
			ID:              e.newID(),
			Domain:          d,
			Priority:        p,
			CompanyID:       scope.CompanyID,
			SubDepartmentID: scope.SubDepartmentID,
			UserID:          scope.UserID,
			Payload:         normalized,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.InsertException(ctx, newRec); err != nil {
			return err // store maps constraint violations to ErrScopeConflict
		}

		affected, err := e.applyAtScope(ctx, s, newRec)
		if err != nil {
			return err
		}

		if err := e.enqueue(ctx, s, Change{
			Domain:           d,
			CompanyID:        newRec.CompanyID,
			UserIDs:          affected,
			SubDepartmentIDs: sdList(newRec),
			NewPayload:       normalized,
		}); err != nil {
			return err
		}

		rec = &newRec
		return nil
	})
	if err != nil {
		return nil, err
	}

	mutationsTotal.WithLabelValues(string(d), "create").Inc()
	e.log.WithFields(logrus.Fields{
		"domain":       d,
		"priority":     p,
		"exception_id": rec.ID,
	}).Info("override created")
	return rec, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// UpdateException rewrites a record's payload and, when newScope is non-nil
// and differs from the current scope, re-parents it: the old scope's users
// revert to their next-lower applicable level and the create rule runs at the
// new scope. payload may be nil to keep the stored payload. A record whose
// domain differs from d is invisible to this operation: ids minted under one
// settings domain must not be reachable through another.
func (e *Engine) UpdateException(ctx context.Context, d Domain, id string, payload json.RawMessage, newScope *Scope) (*ExceptionRecord, error) {
	var (
		rec      *ExceptionRecord
		domain   Domain
		priority Priority
	)
	err := e.store.WithTx(ctx, func(s Store) error {
		current, err := s.GetException(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if current == nil || current.Domain != d {
			return &NotFoundError{Kind: "exception", ID: id}
		}
		if current.Priority == PriorityAdmin {
			return fmt.Errorf("%w: admin overrides cannot be modified", ErrForbidden)
		}
		domain, priority = current.Domain, current.Priority

		desc, err := mustLookupDomain(current.Domain)
		if err != nil {
			return err
		}
		if payload == nil {
			payload = current.Payload
		}
		normalized, err := desc.Codec.Normalize(payload)
		if err != nil {
			return err
		}
		oldPayload := current.Payload

		target := current.Scope()
		if newScope != nil {
			if current.Priority == PrioritySubDepartment && newScope.UserID != "" {
				return fmt.Errorf("%w: sub-department override must not carry a user id", ErrForbidden)
			}
			if newScope.SubDepartmentID != "" {
				target.SubDepartmentID = newScope.SubDepartmentID
			}
			if newScope.UserID != "" {
				target.UserID = newScope.UserID
			}
		}

		scopeChanged := false
		switch current.Priority {
		case PrioritySubDepartment:
			scopeChanged = target.SubDepartmentID != current.SubDepartmentID
		case PriorityUser:
			scopeChanged = target.UserID != current.UserID
		}

		if !scopeChanged {
			updated := *current
			updated.Payload = normalized
			updated.UpdatedAt = e.now()
			if err := s.UpdateException(ctx, updated); err != nil {
				return err
			}
			holders, err := s.PointersByException(ctx, updated.ID)
			if err != nil {
				return storeErr(err)
			}
			if err := e.enqueue(ctx, s, Change{
				Domain:           updated.Domain,
				CompanyID:        updated.CompanyID,
				UserIDs:          pointerUsers(holders),
				SubDepartmentIDs: sdList(updated),
				OldPayload:       oldPayload,
				NewPayload:       normalized,
			}); err != nil {
				return err
			}
			rec = &updated
			return nil
		}

		// Re-scope. Reject before any pointer changes if the new scope is
		// already occupied.
		occupied, err := s.FindByScope(ctx, current.Domain, current.Priority, target)
		if err != nil {
			return storeErr(err)
		}
		if occupied != nil && occupied.ID != current.ID {
			return &ScopeConflictError{Domain: current.Domain, Priority: current.Priority, Scope: target, ExistingID: occupied.ID}
		}

		reverted, err := e.revertAtScope(ctx, s, *current)
		if err != nil {
			return err
		}

		updated := *current
		updated.SubDepartmentID = target.SubDepartmentID
		updated.Payload = normalized
		updated.UpdatedAt = e.now()
		if current.Priority == PriorityUser {
			user, err := s.GetUser(ctx, target.UserID)
			if err != nil {
				return storeErr(err)
			}
			if user == nil {
				return &NotFoundError{Kind: "user", ID: target.UserID}
			}
			if user.CompanyID != current.CompanyID {
				return &ValidationError{Domain: current.Domain, Field: "user_id", Message: "user belongs to a different company"}
			}
			updated.UserID = user.ID
			updated.SubDepartmentID = user.SubDepartmentID
		}
		if err := s.UpdateException(ctx, updated); err != nil {
			return err
		}

		applied, err := e.applyAtScope(ctx, s, updated)
		if err != nil {
			return err
		}

		sds := sdList(*current)
		if updated.SubDepartmentID != current.SubDepartmentID {
			sds = append(sds, sdList(updated)...)
		}
		if err := e.enqueue(ctx, s, Change{
			Domain:           updated.Domain,
			CompanyID:        updated.CompanyID,
			UserIDs:          dedupe(append(reverted, applied...)),
			SubDepartmentIDs: sds,
			OldPayload:       oldPayload,
			NewPayload:       normalized,
		}); err != nil {
			return err
		}
		rec = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	mutationsTotal.WithLabelValues(string(domain), "update").Inc()
	e.log.WithFields(logrus.Fields{
		"domain":       domain,
		"priority":     priority,
		"exception_id": rec.ID,
	}).Info("override updated")
	return rec, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteException removes a SUB_DEPARTMENT or USER override after reverting
// every user it was pointing at to their next-lower applicable level. As with
// UpdateException, a record from another domain reads as not found.
func (e *Engine) DeleteException(ctx context.Context, d Domain, id string) error {
	var domain Domain
	err := e.store.WithTx(ctx, func(s Store) error {
		current, err := s.GetException(ctx, id)
		if err != nil {
			return storeErr(err)
		}
		if current == nil || current.Domain != d {
			return &NotFoundError{Kind: "exception", ID: id}
		}
		if current.Priority == PriorityAdmin {
			return fmt.Errorf("%w: admin overrides cannot be deleted", ErrForbidden)
		}
		domain = current.Domain

		reverted, err := e.revertAtScope(ctx, s, *current)
		if err != nil {
			return err
		}
		if err := s.DeleteException(ctx, id); err != nil {
			return storeErr(err)
		}
		return e.enqueue(ctx, s, Change{
			Domain:           current.Domain,
			CompanyID:        current.CompanyID,
			UserIDs:          reverted,
			SubDepartmentIDs: sdList(*current),
			OldPayload:       current.Payload,
		})
	})
	if err != nil {
		return err
	}

	mutationsTotal.WithLabelValues(string(domain), "delete").Inc()
	e.log.WithFields(logrus.Fields{
		"domain":       domain,
		"exception_id": id,
	}).Info("override deleted")
	return nil
}

// =============================================================================
// RESOLUTION READ PATH
// =============================================================================

// Resolve returns the record a user's pointer currently targets.
func (e *Engine) Resolve(ctx context.Context, userID string, d Domain) (*ExceptionRecord, error) {
	ptr, err := e.store.GetPointer(ctx, userID, d)
	if err != nil {
		return nil, storeErr(err)
	}
	if ptr == nil {
		return nil, &NotFoundError{Kind: "pointer", ID: userID + "/" + string(d)}
	}
	rec, err := e.store.GetException(ctx, ptr.ExceptionID)
	if err != nil {
		return nil, storeErr(err)
	}
	if rec == nil {
		// A dangling pointer violates the core invariant; surface loudly.
		return nil, fmt.Errorf("%w: pointer %s/%s targets missing record %s",
			ErrStore, userID, d, ptr.ExceptionID)
	}
	return rec, nil
}

// Pointers returns all pointer rows for a user.
func (e *Engine) Pointers(ctx context.Context, userID string) ([]PolicyPointer, error) {
	ptrs, err := e.store.PointersForUser(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return ptrs, nil
}

// ListExceptions returns a company's records for a domain.
func (e *Engine) ListExceptions(ctx context.Context, d Domain, companyID string) ([]ExceptionRecord, error) {
	recs, err := e.store.ListExceptions(ctx, d, companyID)
	if err != nil {
		return nil, storeErr(err)
	}
	return recs, nil
}

// =============================================================================
// CASCADE PRIMITIVES
// =============================================================================

// applyAtScope runs the create re-pointing rule for rec's scope and returns
// the re-pointed user ids.
func (e *Engine) applyAtScope(ctx context.Context, s Store, rec ExceptionRecord) ([]string, error) {
	now := e.now()
	switch rec.Priority {
	case PrioritySubDepartment:
		users, err := s.UsersBySubDepartment(ctx, rec.SubDepartmentID)
		if err != nil {
			return nil, storeErr(err)
		}
		var affected []string
		for _, u := range users {
			ptr, err := s.GetPointer(ctx, u.ID, rec.Domain)
			if err != nil {
				return nil, storeErr(err)
			}
			if ptr != nil && ptr.Priority == PriorityUser {
				continue // USER always dominates
			}
			if err := s.SetPointer(ctx, PolicyPointer{
				UserID:      u.ID,
				Domain:      rec.Domain,
				ExceptionID: rec.ID,
				Priority:    PrioritySubDepartment,
				UpdatedAt:   now,
			}); err != nil {
				return nil, storeErr(err)
			}
			affected = append(affected, u.ID)
		}
		return affected, nil

	case PriorityUser:
		if err := s.SetPointer(ctx, PolicyPointer{
			UserID:      rec.UserID,
			Domain:      rec.Domain,
			ExceptionID: rec.ID,
			Priority:    PriorityUser,
			UpdatedAt:   now,
		}); err != nil {
			return nil, storeErr(err)
		}
		return []string{rec.UserID}, nil
	}
	return nil, nil
}

// revertAtScope re-points everyone currently held by rec back to their
// next-lower applicable level and returns the reverted user ids.
func (e *Engine) revertAtScope(ctx context.Context, s Store, rec ExceptionRecord) ([]string, error) {
	now := e.now()
	switch rec.Priority {
	case PrioritySubDepartment:
		admin, err := s.AdminException(ctx, rec.Domain, rec.CompanyID)
		if err != nil {
			return nil, storeErr(err)
		}
		if admin == nil {
			return nil, fmt.Errorf("%w: company %s has no %s admin record",
				ErrStore, rec.CompanyID, rec.Domain)
		}
		ptrs, err := s.SubDepartmentPointers(ctx, rec.Domain, rec.SubDepartmentID, rec.ID)
		if err != nil {
			return nil, storeErr(err)
		}
		var reverted []string
		for _, ptr := range ptrs {
			if err := s.SetPointer(ctx, PolicyPointer{
				UserID:      ptr.UserID,
				Domain:      rec.Domain,
				ExceptionID: admin.ID,
				Priority:    PriorityAdmin,
				UpdatedAt:   now,
			}); err != nil {
				return nil, storeErr(err)
			}
			reverted = append(reverted, ptr.UserID)
		}
		return reverted, nil

	case PriorityUser:
		target, err := e.fallbackFor(ctx, s, rec.Domain, rec.CompanyID, rec.SubDepartmentID)
		if err != nil {
			return nil, err
		}
		if err := s.SetPointer(ctx, PolicyPointer{
			UserID:      rec.UserID,
			Domain:      rec.Domain,
			ExceptionID: target.ID,
			Priority:    target.Priority,
			UpdatedAt:   now,
		}); err != nil {
			return nil, storeErr(err)
		}
		return []string{rec.UserID}, nil
	}
	return nil, nil
}

// fallbackFor resolves the next-lower applicable record for a user in sdID:
// the sub-department override if one exists, else the company ADMIN record.
func (e *Engine) fallbackFor(ctx context.Context, s Store, d Domain, companyID, sdID string) (*ExceptionRecord, error) {
	if sdID != "" {
		sdRec, err := s.SubDepartmentException(ctx, d, sdID)
		if err != nil {
			return nil, storeErr(err)
		}
		if sdRec != nil {
			return sdRec, nil
		}
	}
	admin, err := s.AdminException(ctx, d, companyID)
	if err != nil {
		return nil, storeErr(err)
	}
	if admin == nil {
		return nil, fmt.Errorf("%w: company %s has no %s admin record", ErrStore, companyID, d)
	}
	return admin, nil
}

func (e *Engine) enqueue(ctx context.Context, s Store, change Change) error {
	now := e.now()
	if err := s.EnqueueEffect(ctx, Effect{
		ID:            e.newID(),
		Change:        change,
		NextAttemptAt: now,
		CreatedAt:     now,
	}); err != nil {
		return storeErr(err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	if IsClientError(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStore, err)
}

func sdList(rec ExceptionRecord) []string {
	if rec.Priority == PrioritySubDepartment && rec.SubDepartmentID != "" {
		return []string{rec.SubDepartmentID}
	}
	return nil
}

func pointerUsers(ptrs []PolicyPointer) []string {
	out := make([]string, 0, len(ptrs))
	for _, p := range ptrs {
		out = append(out, p.UserID)
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
