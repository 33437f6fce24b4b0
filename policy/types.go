/*
Package policy provides the core override-resolution engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for hierarchical
  settings overrides. Whether the setting is a daily task quota, a skip-reason
  list, a lead-scoring threshold, or unsubscribe-mail behavior, the same engine
  decides which override applies to which user and keeps every pointer
  consistent across mutations.

KEY CONCEPTS IN THIS FILE (types.go):
  - Domain: Which settings family a record belongs to
  - Priority: ADMIN < SUB_DEPARTMENT < USER; higher wins
  - Scope: The (company, sub-department?, user?) tuple a record applies to
  - ExceptionRecord: A single override with its domain payload
  - PolicyPointer: Per (user, domain) reference to the applicable record

DESIGN PRINCIPLES:
  1. One pointer per (user, domain), at every committed state
  2. The pointer always targets the highest-priority applicable record
  3. Pointers are maintained only by the engine, never by clients
  4. Payloads are opaque JSON here; domain packages own their shape

SEE ALSO:
  - engine.go: The cascade algorithm
  - descriptor.go: Domain registration and payload codecs
  - store.go: Persistence interfaces
*/
package policy

import (
	"encoding/json"
	"time"
)

// =============================================================================
// DOMAIN - Settings family
// =============================================================================

type Domain string

const (
	DomainTask            Domain = "task"
	DomainSkip            Domain = "skip"
	DomainLeadScore       Domain = "lead_score"
	DomainUnsubscribeMail Domain = "unsubscribe_mail"
)

func (d Domain) Valid() bool {
	switch d {
	case DomainTask, DomainSkip, DomainLeadScore, DomainUnsubscribeMail:
		return true
	}
	return false
}

// AllDomains returns the settings families in stable order.
func AllDomains() []Domain {
	return []Domain{DomainTask, DomainSkip, DomainLeadScore, DomainUnsubscribeMail}
}

// =============================================================================
// PRIORITY - ADMIN < SUB_DEPARTMENT < USER
// =============================================================================

type Priority string

const (
	PriorityAdmin         Priority = "ADMIN"
	PrioritySubDepartment Priority = "SUB_DEPARTMENT"
	PriorityUser          Priority = "USER"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityAdmin, PrioritySubDepartment, PriorityUser:
		return true
	}
	return false
}

// Rank orders priorities; a higher rank wins resolution.
func (p Priority) Rank() int {
	switch p {
	case PriorityAdmin:
		return 0
	case PrioritySubDepartment:
		return 1
	case PriorityUser:
		return 2
	}
	return -1
}

// =============================================================================
// SCOPE - Where an override applies
// =============================================================================

// Scope identifies where an override applies. SubDepartmentID is set for
// SUB_DEPARTMENT and USER priorities (a user-level record still carries the
// user's sub-department for fallback lookups); UserID only for USER priority.
type Scope struct {
	CompanyID       string
	SubDepartmentID string
	UserID          string
}

// =============================================================================
// EXCEPTION RECORD - A single override
// =============================================================================

type ExceptionRecord struct {
	ID              string
	Domain          Domain
	Priority        Priority
	CompanyID       string
	SubDepartmentID string // present for SUB_DEPARTMENT and USER priorities
	UserID          string // present only for USER priority
	Payload         json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Scope returns the record's scope tuple.
func (r ExceptionRecord) Scope() Scope {
	return Scope{CompanyID: r.CompanyID, SubDepartmentID: r.SubDepartmentID, UserID: r.UserID}
}

// =============================================================================
// POLICY POINTER - Per (user, domain) resolution result
// =============================================================================

// PolicyPointer records which override currently applies to a user for a
// domain. Exactly one row per (user, domain) exists at all committed states.
type PolicyPointer struct {
	UserID      string
	Domain      Domain
	ExceptionID string
	Priority    Priority
	UpdatedAt   time.Time
}

// =============================================================================
// DIRECTORY RECORDS - Companies and users
// =============================================================================

type Company struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type User struct {
	ID              string
	CompanyID       string
	SubDepartmentID string
	CreatedAt       time.Time
}
