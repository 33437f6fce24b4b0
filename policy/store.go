/*
store.go - Persistence interfaces for overrides, pointers, and effects

PURPOSE:
  Defines the interface between the cascade engine and the database.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:       Record/pointer persistence used inside a cascade
  TxStore:     Transactional wrapper; every mutation runs through WithTx
  EffectQueue: Outbox consumed by the dispatch relay after commit

SCOPE UNIQUENESS:
  Implementations MUST enforce per-scope uniqueness with a constraint:
  one ADMIN record per (domain, company), at most one SUB_DEPARTMENT record
  per (domain, sub-department), at most one USER record per (domain, user).
  The engine pre-checks with FindByScope for a friendly error, but the
  constraint is the correctness mechanism under concurrent requests;
  a plain check-then-insert races. Constraint violations surface as
  ErrScopeConflict.

ATOMICITY:
  WithTx must make the enclosed record mutation, every pointer write, and the
  effect enqueue visible atomically. Reads inside the callback must observe
  writes made earlier in the same callback.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - policy/store:  In-memory for tests

SEE ALSO:
  - engine.go: The only writer of pointers
  - dispatcher.go: Effect shape delivered by the queue
*/
package policy

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Used by the engine inside (and outside) a transaction
// =============================================================================

type Store interface {
	// Directory ------------------------------------------------------------

	SaveCompany(ctx context.Context, c Company) error
	GetCompany(ctx context.Context, id string) (*Company, error)

	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	UsersBySubDepartment(ctx context.Context, sdID string) ([]User, error)

	// Exception records ----------------------------------------------------

	// InsertException persists a new record. A scope-uniqueness violation
	// returns an error matching ErrScopeConflict.
	InsertException(ctx context.Context, rec ExceptionRecord) error

	// UpdateException rewrites scope columns and payload. Moving the record
	// onto an occupied scope returns an error matching ErrScopeConflict.
	UpdateException(ctx context.Context, rec ExceptionRecord) error

	DeleteException(ctx context.Context, id string) error

	// GetException returns nil without error when the id is unknown.
	GetException(ctx context.Context, id string) (*ExceptionRecord, error)

	// FindByScope returns the record occupying (domain, priority, scope),
	// or nil. ADMIN matches on company, SUB_DEPARTMENT on sub-department,
	// USER on user.
	FindByScope(ctx context.Context, d Domain, p Priority, scope Scope) (*ExceptionRecord, error)

	// AdminException is the fallback of last resort for a company.
	AdminException(ctx context.Context, d Domain, companyID string) (*ExceptionRecord, error)

	// SubDepartmentException is the middle fallback level.
	SubDepartmentException(ctx context.Context, d Domain, sdID string) (*ExceptionRecord, error)

	ListExceptions(ctx context.Context, d Domain, companyID string) ([]ExceptionRecord, error)

	// Pointers -------------------------------------------------------------

	// GetPointer returns nil without error when no row exists yet.
	GetPointer(ctx context.Context, userID string, d Domain) (*PolicyPointer, error)

	// SetPointer upserts on (user, domain).
	SetPointer(ctx context.Context, ptr PolicyPointer) error

	// PointersByException returns every pointer currently targeting a record.
	PointersByException(ctx context.Context, exceptionID string) ([]PolicyPointer, error)

	PointersForUser(ctx context.Context, userID string) ([]PolicyPointer, error)

	// SubDepartmentPointers returns pointers of users in sdID whose row has
	// priority SUB_DEPARTMENT or targets exceptionID. The sub-department
	// filter is load-bearing; the exception-id branch also catches pointers
	// left dangling by a partial earlier cascade.
	SubDepartmentPointers(ctx context.Context, d Domain, sdID, exceptionID string) ([]PolicyPointer, error)

	// Effects outbox -------------------------------------------------------

	// EnqueueEffect stores an effect in the same transaction as the mutation
	// that produced it. The relay delivers it after commit.
	EnqueueEffect(ctx context.Context, eff Effect) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back; otherwise it is committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// EFFECT QUEUE - Consumed by the dispatch relay, outside any transaction
// =============================================================================

type EffectQueue interface {
	// DueEffects returns pending effects whose next attempt is due, oldest
	// first, up to limit.
	DueEffects(ctx context.Context, now time.Time, limit int) ([]Effect, error)

	// MarkDispatched finalizes a delivered effect.
	MarkDispatched(ctx context.Context, id string, at time.Time) error

	// RescheduleEffect records a failed attempt and the next retry time.
	RescheduleEffect(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error

	// MarkFailed parks an effect permanently after the retry budget is spent.
	MarkFailed(ctx context.Context, id string, reason string) error
}
