// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/engagekit/policy-engine/policy"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	companies  map[string]policy.Company
	users      map[string]policy.User
	exceptions map[string]policy.ExceptionRecord
	pointers   map[pointerKey]policy.PolicyPointer
	effects    map[string]effectRow
}

type pointerKey struct {
	UserID string
	Domain policy.Domain
}

type effectRow struct {
	policy.Effect
	Status       string // pending, dispatched, failed
	LastError    string
	DispatchedAt time.Time
}

func NewMemory() *Memory {
	return &Memory{
		companies:  make(map[string]policy.Company),
		users:      make(map[string]policy.User),
		exceptions: make(map[string]policy.ExceptionRecord),
		pointers:   make(map[pointerKey]policy.PolicyPointer),
		effects:    make(map[string]effectRow),
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveCompany(_ context.Context, c policy.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCompanyLocked(c)
}

func (m *Memory) saveCompanyLocked(c policy.Company) error {
	m.companies[c.ID] = c
	return nil
}

func (m *Memory) GetCompany(_ context.Context, id string) (*policy.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCompanyLocked(id), nil
}

func (m *Memory) getCompanyLocked(id string) *policy.Company {
	if c, ok := m.companies[id]; ok {
		out := c
		return &out
	}
	return nil
}

func (m *Memory) SaveUser(_ context.Context, u policy.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUserLocked(u)
}

func (m *Memory) saveUserLocked(u policy.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*policy.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id), nil
}

func (m *Memory) getUserLocked(id string) *policy.User {
	if u, ok := m.users[id]; ok {
		out := u
		return &out
	}
	return nil
}

func (m *Memory) UsersBySubDepartment(_ context.Context, sdID string) ([]policy.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usersBySubDepartmentLocked(sdID), nil
}

func (m *Memory) usersBySubDepartmentLocked(sdID string) []policy.User {
	var out []policy.User
	for _, u := range m.users {
		if u.SubDepartmentID == sdID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

func (m *Memory) InsertException(_ context.Context, rec policy.ExceptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertExceptionLocked(rec)
}

func (m *Memory) insertExceptionLocked(rec policy.ExceptionRecord) error {
	if conflict := m.scopeOccupantLocked(rec.Domain, rec.Priority, rec.Scope(), rec.ID); conflict != nil {
		return &policy.ScopeConflictError{
			Domain: rec.Domain, Priority: rec.Priority, Scope: rec.Scope(), ExistingID: conflict.ID,
		}
	}
	m.exceptions[rec.ID] = rec
	return nil
}

func (m *Memory) UpdateException(_ context.Context, rec policy.ExceptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateExceptionLocked(rec)
}

func (m *Memory) updateExceptionLocked(rec policy.ExceptionRecord) error {
	if _, ok := m.exceptions[rec.ID]; !ok {
		return &policy.NotFoundError{Kind: "exception", ID: rec.ID}
	}
	if conflict := m.scopeOccupantLocked(rec.Domain, rec.Priority, rec.Scope(), rec.ID); conflict != nil {
		return &policy.ScopeConflictError{
			Domain: rec.Domain, Priority: rec.Priority, Scope: rec.Scope(), ExistingID: conflict.ID,
		}
	}
	m.exceptions[rec.ID] = rec
	return nil
}

// scopeOccupantLocked mimics the partial unique indexes of the sqlite store.
func (m *Memory) scopeOccupantLocked(d policy.Domain, p policy.Priority, scope policy.Scope, excludeID string) *policy.ExceptionRecord {
	for _, rec := range m.exceptions {
		if rec.ID == excludeID || rec.Domain != d || rec.Priority != p {
			continue
		}
		switch p {
		case policy.PriorityAdmin:
			if rec.CompanyID == scope.CompanyID {
				out := rec
				return &out
			}
		case policy.PrioritySubDepartment:
			if rec.SubDepartmentID == scope.SubDepartmentID {
				out := rec
				return &out
			}
		case policy.PriorityUser:
			if rec.UserID == scope.UserID {
				out := rec
				return &out
			}
		}
	}
	return nil
}

func (m *Memory) DeleteException(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteExceptionLocked(id)
}

func (m *Memory) deleteExceptionLocked(id string) error {
	delete(m.exceptions, id)
	return nil
}

func (m *Memory) GetException(_ context.Context, id string) (*policy.ExceptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getExceptionLocked(id), nil
}

func (m *Memory) getExceptionLocked(id string) *policy.ExceptionRecord {
	if rec, ok := m.exceptions[id]; ok {
		out := rec
		return &out
	}
	return nil
}

func (m *Memory) FindByScope(_ context.Context, d policy.Domain, p policy.Priority, scope policy.Scope) (*policy.ExceptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scopeOccupantLocked(d, p, scope, ""), nil
}

func (m *Memory) AdminException(_ context.Context, d policy.Domain, companyID string) (*policy.ExceptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scopeOccupantLocked(d, policy.PriorityAdmin, policy.Scope{CompanyID: companyID}, ""), nil
}

func (m *Memory) SubDepartmentException(_ context.Context, d policy.Domain, sdID string) (*policy.ExceptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.scopeOccupantLocked(d, policy.PrioritySubDepartment, policy.Scope{SubDepartmentID: sdID}, ""), nil
}

func (m *Memory) ListExceptions(_ context.Context, d policy.Domain, companyID string) ([]policy.ExceptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []policy.ExceptionRecord
	for _, rec := range m.exceptions {
		if rec.Domain == d && rec.CompanyID == companyID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// POINTERS
// =============================================================================

func (m *Memory) GetPointer(_ context.Context, userID string, d policy.Domain) (*policy.PolicyPointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPointerLocked(userID, d), nil
}

func (m *Memory) getPointerLocked(userID string, d policy.Domain) *policy.PolicyPointer {
	if ptr, ok := m.pointers[pointerKey{UserID: userID, Domain: d}]; ok {
		out := ptr
		return &out
	}
	return nil
}

func (m *Memory) SetPointer(_ context.Context, ptr policy.PolicyPointer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setPointerLocked(ptr)
}

func (m *Memory) setPointerLocked(ptr policy.PolicyPointer) error {
	m.pointers[pointerKey{UserID: ptr.UserID, Domain: ptr.Domain}] = ptr
	return nil
}

func (m *Memory) PointersByException(_ context.Context, exceptionID string) ([]policy.PolicyPointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pointersByExceptionLocked(exceptionID), nil
}

func (m *Memory) pointersByExceptionLocked(exceptionID string) []policy.PolicyPointer {
	var out []policy.PolicyPointer
	for _, ptr := range m.pointers {
		if ptr.ExceptionID == exceptionID {
			out = append(out, ptr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (m *Memory) PointersForUser(_ context.Context, userID string) ([]policy.PolicyPointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []policy.PolicyPointer
	for _, ptr := range m.pointers {
		if ptr.UserID == userID {
			out = append(out, ptr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (m *Memory) SubDepartmentPointers(_ context.Context, d policy.Domain, sdID, exceptionID string) ([]policy.PolicyPointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subDepartmentPointersLocked(d, sdID, exceptionID), nil
}

func (m *Memory) subDepartmentPointersLocked(d policy.Domain, sdID, exceptionID string) []policy.PolicyPointer {
	var out []policy.PolicyPointer
	for _, ptr := range m.pointers {
		if ptr.Domain != d {
			continue
		}
		u, ok := m.users[ptr.UserID]
		if !ok || u.SubDepartmentID != sdID {
			continue
		}
		if ptr.Priority == policy.PrioritySubDepartment || ptr.ExceptionID == exceptionID {
			out = append(out, ptr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// =============================================================================
// EFFECTS OUTBOX
// =============================================================================

func (m *Memory) EnqueueEffect(_ context.Context, eff policy.Effect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enqueueEffectLocked(eff)
}

func (m *Memory) enqueueEffectLocked(eff policy.Effect) error {
	m.effects[eff.ID] = effectRow{Effect: eff, Status: "pending"}
	return nil
}

func (m *Memory) DueEffects(_ context.Context, now time.Time, limit int) ([]policy.Effect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []policy.Effect
	for _, row := range m.effects {
		if row.Status == "pending" && !row.NextAttemptAt.After(now) {
			out = append(out, row.Effect)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkDispatched(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.effects[id]
	if !ok {
		return &policy.NotFoundError{Kind: "effect", ID: id}
	}
	row.Status = "dispatched"
	row.DispatchedAt = at
	m.effects[id] = row
	return nil
}

func (m *Memory) RescheduleEffect(_ context.Context, id string, attempts int, next time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.effects[id]
	if !ok {
		return &policy.NotFoundError{Kind: "effect", ID: id}
	}
	row.Attempts = attempts
	row.NextAttemptAt = next
	row.LastError = lastErr
	m.effects[id] = row
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.effects[id]
	if !ok {
		return &policy.NotFoundError{Kind: "effect", ID: id}
	}
	row.Status = "failed"
	row.LastError = reason
	m.effects[id] = row
	return nil
}

// PendingEffects returns undelivered effects; test helper.
func (m *Memory) PendingEffects() []policy.Effect {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []policy.Effect
	for _, row := range m.effects {
		if row.Status == "pending" {
			out = append(out, row.Effect)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(policy.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	companies  map[string]policy.Company
	users      map[string]policy.User
	exceptions map[string]policy.ExceptionRecord
	pointers   map[pointerKey]policy.PolicyPointer
	effects    map[string]effectRow
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		companies:  make(map[string]policy.Company, len(tm.companies)),
		users:      make(map[string]policy.User, len(tm.users)),
		exceptions: make(map[string]policy.ExceptionRecord, len(tm.exceptions)),
		pointers:   make(map[pointerKey]policy.PolicyPointer, len(tm.pointers)),
		effects:    make(map[string]effectRow, len(tm.effects)),
	}
	for k, v := range tm.companies {
		s.companies[k] = v
	}
	for k, v := range tm.users {
		s.users[k] = v
	}
	for k, v := range tm.exceptions {
		s.exceptions[k] = v
	}
	for k, v := range tm.pointers {
		s.pointers[k] = v
	}
	for k, v := range tm.effects {
		s.effects[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.companies = s.companies
	tm.users = s.users
	tm.exceptions = s.exceptions
	tm.pointers = s.pointers
	tm.effects = s.effects
}

// txMemoryView routes calls to the locked helpers; the outer WithTx holds the
// mutex for the whole callback.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) SaveCompany(_ context.Context, c policy.Company) error {
	return tv.parent.saveCompanyLocked(c)
}

func (tv *txMemoryView) GetCompany(_ context.Context, id string) (*policy.Company, error) {
	return tv.parent.getCompanyLocked(id), nil
}

func (tv *txMemoryView) SaveUser(_ context.Context, u policy.User) error {
	return tv.parent.saveUserLocked(u)
}

func (tv *txMemoryView) GetUser(_ context.Context, id string) (*policy.User, error) {
	return tv.parent.getUserLocked(id), nil
}

func (tv *txMemoryView) UsersBySubDepartment(_ context.Context, sdID string) ([]policy.User, error) {
	return tv.parent.usersBySubDepartmentLocked(sdID), nil
}

func (tv *txMemoryView) InsertException(_ context.Context, rec policy.ExceptionRecord) error {
	return tv.parent.insertExceptionLocked(rec)
}

func (tv *txMemoryView) UpdateException(_ context.Context, rec policy.ExceptionRecord) error {
	return tv.parent.updateExceptionLocked(rec)
}

func (tv *txMemoryView) DeleteException(_ context.Context, id string) error {
	return tv.parent.deleteExceptionLocked(id)
}

func (tv *txMemoryView) GetException(_ context.Context, id string) (*policy.ExceptionRecord, error) {
	return tv.parent.getExceptionLocked(id), nil
}

func (tv *txMemoryView) FindByScope(_ context.Context, d policy.Domain, p policy.Priority, scope policy.Scope) (*policy.ExceptionRecord, error) {
	return tv.parent.scopeOccupantLocked(d, p, scope, ""), nil
}

func (tv *txMemoryView) AdminException(_ context.Context, d policy.Domain, companyID string) (*policy.ExceptionRecord, error) {
	return tv.parent.scopeOccupantLocked(d, policy.PriorityAdmin, policy.Scope{CompanyID: companyID}, ""), nil
}

func (tv *txMemoryView) SubDepartmentException(_ context.Context, d policy.Domain, sdID string) (*policy.ExceptionRecord, error) {
	return tv.parent.scopeOccupantLocked(d, policy.PrioritySubDepartment, policy.Scope{SubDepartmentID: sdID}, ""), nil
}

func (tv *txMemoryView) ListExceptions(ctx context.Context, d policy.Domain, companyID string) ([]policy.ExceptionRecord, error) {
	var out []policy.ExceptionRecord
	for _, rec := range tv.parent.exceptions {
		if rec.Domain == d && rec.CompanyID == companyID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tv *txMemoryView) GetPointer(_ context.Context, userID string, d policy.Domain) (*policy.PolicyPointer, error) {
	return tv.parent.getPointerLocked(userID, d), nil
}

func (tv *txMemoryView) SetPointer(_ context.Context, ptr policy.PolicyPointer) error {
	return tv.parent.setPointerLocked(ptr)
}

func (tv *txMemoryView) PointersByException(_ context.Context, exceptionID string) ([]policy.PolicyPointer, error) {
	return tv.parent.pointersByExceptionLocked(exceptionID), nil
}

func (tv *txMemoryView) PointersForUser(_ context.Context, userID string) ([]policy.PolicyPointer, error) {
	var out []policy.PolicyPointer
	for _, ptr := range tv.parent.pointers {
		if ptr.UserID == userID {
			out = append(out, ptr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

func (tv *txMemoryView) SubDepartmentPointers(_ context.Context, d policy.Domain, sdID, exceptionID string) ([]policy.PolicyPointer, error) {
	return tv.parent.subDepartmentPointersLocked(d, sdID, exceptionID), nil
}

func (tv *txMemoryView) EnqueueEffect(_ context.Context, eff policy.Effect) error {
	return tv.parent.enqueueEffectLocked(eff)
}
