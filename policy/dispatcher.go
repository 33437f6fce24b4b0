/*
dispatcher.go - Derived-effect contract between the engine and downstream jobs

PURPOSE:
  After a cascade commits, external recompute jobs (daily task quotas, "late"
  thresholds, lead-score resets) must learn which users and sub-departments
  were touched. Those jobs are collaborators, not part of this core: the
  engine only writes an Effect row inside the mutation transaction, and the
  dispatch relay delivers it after commit.

DELIVERY SEMANTICS:
  - Best-effort, at-least-once. Handlers must be idempotent.
  - A failed delivery never rolls back the already-committed mutation.
  - Payload-only edits still emit an effect; the handler compares old and new
    payloads and no-ops when the derived outcome did not change.
*/
package policy

import (
	"encoding/json"
	"time"
)

// =============================================================================
// CHANGE - What a mutation affected
// =============================================================================

type Change struct {
	Domain           Domain
	CompanyID        string
	UserIDs          []string
	SubDepartmentIDs []string
	OldPayload       json.RawMessage // nil on create
	NewPayload       json.RawMessage // nil on delete
}

// =============================================================================
// EFFECT - A Change queued for post-commit delivery
// =============================================================================

type Effect struct {
	ID            string
	Change        Change
	Attempts      int
	NextAttemptAt time.Time
	CreatedAt     time.Time
}
