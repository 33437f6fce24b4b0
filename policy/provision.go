/*
provision.go - Company/user provisioning and sub-department reassignment

PURPOSE:
  ADMIN records exist from the moment a company is provisioned and can never
  be deleted; every user carries one pointer per domain from the moment they
  are provisioned. Reassigning a user to another sub-department is an external
  event the engine must react to: the user's non-USER pointers are re-resolved
  against the new sub-department, and the sd_id carried by the user's own USER
  records is refreshed.

SEE ALSO:
  - engine.go: Mutation cascades
  - factory/: Default payloads used at company provisioning
*/
package policy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ProvisionCompany creates the company and one ADMIN record per registered
// domain from the supplied defaults. This is the only path that creates
// ADMIN-priority records.
func (e *Engine) ProvisionCompany(ctx context.Context, company Company, defaults map[Domain]json.RawMessage) error {
	descs := RegisteredDomains()
	normalized := make(map[Domain]json.RawMessage, len(descs))
	for _, desc := range descs {
		raw, ok := defaults[desc.Domain]
		if !ok {
			return &ValidationError{Domain: desc.Domain, Message: "missing company default payload"}
		}
		n, err := desc.Codec.Normalize(raw)
		if err != nil {
			return err
		}
		normalized[desc.Domain] = n
	}

	err := e.store.WithTx(ctx, func(s Store) error {
		existing, err := s.GetCompany(ctx, company.ID)
		if err != nil {
			return storeErr(err)
		}
		if existing != nil {
			return &ScopeConflictError{Priority: PriorityAdmin, Scope: Scope{CompanyID: company.ID}, ExistingID: company.ID}
		}
		if company.CreatedAt.IsZero() {
			company.CreatedAt = e.now()
		}
		if err := s.SaveCompany(ctx, company); err != nil {
			return storeErr(err)
		}
		now := e.now()
		for _, desc := range descs {
			if err := s.InsertException(ctx, ExceptionRecord{
				ID:        e.newID(),
				Domain:    desc.Domain,
				Priority:  PriorityAdmin,
				CompanyID: company.ID,
				Payload:   normalized[desc.Domain],
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.WithField("company_id", company.ID).Info("company provisioned")
	return nil
}

// ProvisionUser inserts the user and one pointer per registered domain,
// resolved against the overrides that already exist.
func (e *Engine) ProvisionUser(ctx context.Context, user User) error {
	if user.ID == "" || user.CompanyID == "" {
		return &ValidationError{Message: "user id and company id are required"}
	}
	err := e.store.WithTx(ctx, func(s Store) error {
		company, err := s.GetCompany(ctx, user.CompanyID)
		if err != nil {
			return storeErr(err)
		}
		if company == nil {
			return &NotFoundError{Kind: "company", ID: user.CompanyID}
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = e.now()
		}
		if err := s.SaveUser(ctx, user); err != nil {
			return storeErr(err)
		}
		now := e.now()
		for _, desc := range RegisteredDomains() {
			target, err := e.fallbackFor(ctx, s, desc.Domain, user.CompanyID, user.SubDepartmentID)
			if err != nil {
				return err
			}
			if err := s.SetPointer(ctx, PolicyPointer{
				UserID:      user.ID,
				Domain:      desc.Domain,
				ExceptionID: target.ID,
				Priority:    target.Priority,
				UpdatedAt:   now,
			}); err != nil {
				return storeErr(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"company_id": user.CompanyID,
		"sd_id":      user.SubDepartmentID,
	}).Info("user provisioned")
	return nil
}

// ReassignUser moves a user to another sub-department and re-resolves every
// pointer the move invalidates. USER-pinned domains keep their pointer; the
// sd_id carried by those records is refreshed so later fallbacks look at the
// right sub-department. Domains whose applied record changed emit effects.
func (e *Engine) ReassignUser(ctx context.Context, userID, newSubDepartmentID string) error {
	var changed []Domain
	err := e.store.WithTx(ctx, func(s Store) error {
		user, err := s.GetUser(ctx, userID)
		if err != nil {
			return storeErr(err)
		}
		if user == nil {
			return &NotFoundError{Kind: "user", ID: userID}
		}
		if user.SubDepartmentID == newSubDepartmentID {
			return nil
		}
		user.SubDepartmentID = newSubDepartmentID
		if err := s.SaveUser(ctx, *user); err != nil {
			return storeErr(err)
		}

		now := e.now()
		for _, desc := range RegisteredDomains() {
			own, err := s.FindByScope(ctx, desc.Domain, PriorityUser, Scope{UserID: userID})
			if err != nil {
				return storeErr(err)
			}
			if own != nil {
				own.SubDepartmentID = newSubDepartmentID
				own.UpdatedAt = now
				if err := s.UpdateException(ctx, *own); err != nil {
					return err
				}
				continue // USER pointer survives the move untouched
			}

			target, err := e.fallbackFor(ctx, s, desc.Domain, user.CompanyID, newSubDepartmentID)
			if err != nil {
				return err
			}
			ptr, err := s.GetPointer(ctx, userID, desc.Domain)
			if err != nil {
				return storeErr(err)
			}
			if ptr != nil && ptr.ExceptionID == target.ID {
				continue
			}
			var oldPayload json.RawMessage
			if ptr != nil {
				if old, err := s.GetException(ctx, ptr.ExceptionID); err != nil {
					return storeErr(err)
				} else if old != nil {
					oldPayload = old.Payload
				}
			}
			if err := s.SetPointer(ctx, PolicyPointer{
				UserID:      userID,
				Domain:      desc.Domain,
				ExceptionID: target.ID,
				Priority:    target.Priority,
				UpdatedAt:   now,
			}); err != nil {
				return storeErr(err)
			}
			if err := e.enqueue(ctx, s, Change{
				Domain:     desc.Domain,
				CompanyID:  user.CompanyID,
				UserIDs:    []string{userID},
				OldPayload: oldPayload,
				NewPayload: target.Payload,
			}); err != nil {
				return err
			}
			changed = append(changed, desc.Domain)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"user_id":         userID,
		"sd_id":           newSubDepartmentID,
		"changed_domains": fmt.Sprint(changed),
	}).Info("user reassigned")
	return nil
}
