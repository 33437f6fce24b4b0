/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements policy.Store, policy.TxStore, and policy.EffectQueue using
  SQLite. In production, the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

KEY TABLES:
  companies:  Tenant directory
  users:      Rep directory with sub-department membership
  exceptions: Override records, one scope each
  pointers:   Resolved (user, domain) -> exception mapping
  effects:    Outbox of committed changes awaiting dispatch

SCOPE UNIQUENESS:
  Partial unique indexes enforce one record per scope per domain:
  - idx_exceptions_admin_scope: (domain, company_id) WHERE priority ADMIN
  - idx_exceptions_sd_scope:    (domain, sd_id)      WHERE priority SUB_DEPARTMENT
  - idx_exceptions_user_scope:  (domain, user_id)    WHERE priority USER
  A violation is translated into policy.ScopeConflictError, so the engine's
  FindByScope pre-check can lose a race without corrupting anything.

TRANSACTIONS:
  WithTx hands the callback a store bound to the open *sql.Tx, so reads made
  inside the callback observe writes made earlier in the same callback. The
  effects outbox is written through the same transaction; an effect row exists
  iff the cascade that produced it committed.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/policy.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := policy.NewEngine(store, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - policy/store.go: Interface definitions
  - policy/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/engagekit/policy-engine/policy"
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries need. Binding the
// query layer to this interface keeps every read inside WithTx on the open
// transaction instead of the pool.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{queries: queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Tenant directory
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Rep directory
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		sd_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_sd ON users(sd_id);
	CREATE INDEX IF NOT EXISTS idx_users_company ON users(company_id);

	-- Override records, one scope each
	CREATE TABLE IF NOT EXISTS exceptions (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		priority TEXT NOT NULL,
		company_id TEXT NOT NULL,
		sd_id TEXT,
		user_id TEXT,
		payload TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_exceptions_admin_scope
		ON exceptions(domain, company_id) WHERE priority = 'ADMIN';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_exceptions_sd_scope
		ON exceptions(domain, sd_id) WHERE priority = 'SUB_DEPARTMENT';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_exceptions_user_scope
		ON exceptions(domain, user_id) WHERE priority = 'USER';
	CREATE INDEX IF NOT EXISTS idx_exceptions_company ON exceptions(domain, company_id);

	-- Resolved pointers, one per (user, domain)
	CREATE TABLE IF NOT EXISTS pointers (
		user_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		exception_id TEXT NOT NULL,
		priority TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, domain)
	);
	CREATE INDEX IF NOT EXISTS idx_pointers_exception ON pointers(exception_id);

	-- Outbox of committed changes awaiting dispatch
	CREATE TABLE IF NOT EXISTS effects (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		company_id TEXT NOT NULL,
		user_ids TEXT NOT NULL,
		sd_ids TEXT NOT NULL,
		old_payload TEXT,
		new_payload TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL,
		last_error TEXT,
		dispatched_at TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_effects_due ON effects(status, next_attempt_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store policy.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// queries implements policy.Store against either the pool or an open
// transaction.
type queries struct {
	db dbtx
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (q *queries) SaveCompany(ctx context.Context, c policy.Company) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		c.ID, c.Name, formatTime(c.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}
	return nil
}

func (q *queries) GetCompany(ctx context.Context, id string) (*policy.Company, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM companies WHERE id = ?`, id)

	var c policy.Company
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	var err error
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan company: %w", err)
	}
	return &c, nil
}

func (q *queries) SaveUser(ctx context.Context, u policy.User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, company_id, sd_id, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET company_id = excluded.company_id, sd_id = excluded.sd_id`,
		u.ID, u.CompanyID, u.SubDepartmentID, formatTime(u.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (q *queries) GetUser(ctx context.Context, id string) (*policy.User, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT id, company_id, sd_id, created_at FROM users WHERE id = ?`, id)

	var u policy.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.CompanyID, &u.SubDepartmentID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var err error
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

func (q *queries) UsersBySubDepartment(ctx context.Context, sdID string) ([]policy.User, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, company_id, sd_id, created_at FROM users
		WHERE sd_id = ? ORDER BY id`, sdID)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var out []policy.User
	for rows.Next() {
		var u policy.User
		var createdAt string
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.SubDepartmentID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if u.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

func (q *queries) InsertException(ctx context.Context, rec policy.ExceptionRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO exceptions (id, domain, priority, company_id, sd_id, user_id, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Domain), string(rec.Priority), rec.CompanyID,
		nullString(rec.SubDepartmentID), nullString(rec.UserID),
		string(rec.Payload), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		if isScopeConflictError(err) {
			return scopeConflict(rec)
		}
		return fmt.Errorf("failed to insert exception: %w", err)
	}
	return nil
}

func (q *queries) UpdateException(ctx context.Context, rec policy.ExceptionRecord) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE exceptions
		SET priority = ?, company_id = ?, sd_id = ?, user_id = ?, payload = ?, updated_at = ?
		WHERE id = ?`,
		string(rec.Priority), rec.CompanyID,
		nullString(rec.SubDepartmentID), nullString(rec.UserID),
		string(rec.Payload), formatTime(rec.UpdatedAt), rec.ID,
	)
	if err != nil {
		if isScopeConflictError(err) {
			return scopeConflict(rec)
		}
		return fmt.Errorf("failed to update exception: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update exception: %w", err)
	}
	if n == 0 {
		return &policy.NotFoundError{Kind: "exception", ID: rec.ID}
	}
	return nil
}

func (q *queries) DeleteException(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM exceptions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete exception: %w", err)
	}
	return nil
}

func (q *queries) GetException(ctx context.Context, id string) (*policy.ExceptionRecord, error) {
	return q.queryException(ctx, `WHERE id = ?`, id)
}

func (q *queries) FindByScope(ctx context.Context, d policy.Domain, p policy.Priority, scope policy.Scope) (*policy.ExceptionRecord, error) {
	switch p {
	case policy.PriorityAdmin:
		return q.queryException(ctx, `WHERE domain = ? AND priority = ? AND company_id = ?`,
			string(d), string(p), scope.CompanyID)
	case policy.PrioritySubDepartment:
		return q.queryException(ctx, `WHERE domain = ? AND priority = ? AND sd_id = ?`,
			string(d), string(p), scope.SubDepartmentID)
	case policy.PriorityUser:
		return q.queryException(ctx, `WHERE domain = ? AND priority = ? AND user_id = ?`,
			string(d), string(p), scope.UserID)
	default:
		return nil, fmt.Errorf("unknown priority %q", p)
	}
}

func (q *queries) AdminException(ctx context.Context, d policy.Domain, companyID string) (*policy.ExceptionRecord, error) {
	return q.FindByScope(ctx, d, policy.PriorityAdmin, policy.Scope{CompanyID: companyID})
}

func (q *queries) SubDepartmentException(ctx context.Context, d policy.Domain, sdID string) (*policy.ExceptionRecord, error) {
	return q.FindByScope(ctx, d, policy.PrioritySubDepartment, policy.Scope{SubDepartmentID: sdID})
}

func (q *queries) queryException(ctx context.Context, where string, args ...any) (*policy.ExceptionRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, domain, priority, company_id, sd_id, user_id, payload, created_at, updated_at
		FROM exceptions `+where, args...)

	rec, err := scanException(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get exception: %w", err)
	}
	return rec, nil
}

func (q *queries) ListExceptions(ctx context.Context, d policy.Domain, companyID string) ([]policy.ExceptionRecord, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, domain, priority, company_id, sd_id, user_id, payload, created_at, updated_at
		FROM exceptions
		WHERE domain = ? AND company_id = ?
		ORDER BY CASE priority WHEN 'ADMIN' THEN 0 WHEN 'SUB_DEPARTMENT' THEN 1 ELSE 2 END, id`,
		string(d), companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}
	defer rows.Close()

	var out []policy.ExceptionRecord
	for rows.Next() {
		rec, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exception: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanException(row rowScanner) (*policy.ExceptionRecord, error) {
	var rec policy.ExceptionRecord
	var domain, priority, payload, createdAt, updatedAt string
	var sdID, userID sql.NullString
	if err := row.Scan(&rec.ID, &domain, &priority, &rec.CompanyID, &sdID, &userID,
		&payload, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Domain = policy.Domain(domain)
	rec.Priority = policy.Priority(priority)
	rec.SubDepartmentID = sdID.String
	rec.UserID = userID.String
	rec.Payload = json.RawMessage(payload)
	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// =============================================================================
// POINTERS
// =============================================================================

func (q *queries) GetPointer(ctx context.Context, userID string, d policy.Domain) (*policy.PolicyPointer, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT user_id, domain, exception_id, priority, updated_at
		FROM pointers WHERE user_id = ? AND domain = ?`, userID, string(d))

	ptr, err := scanPointer(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pointer: %w", err)
	}
	return ptr, nil
}

func (q *queries) SetPointer(ctx context.Context, ptr policy.PolicyPointer) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO pointers (user_id, domain, exception_id, priority, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, domain) DO UPDATE SET
			exception_id = excluded.exception_id,
			priority = excluded.priority,
			updated_at = excluded.updated_at`,
		ptr.UserID, string(ptr.Domain), ptr.ExceptionID, string(ptr.Priority),
		formatTime(ptr.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to set pointer: %w", err)
	}
	return nil
}

func (q *queries) PointersByException(ctx context.Context, exceptionID string) ([]policy.PolicyPointer, error) {
	return q.queryPointers(ctx, `
		SELECT user_id, domain, exception_id, priority, updated_at
		FROM pointers WHERE exception_id = ? ORDER BY user_id`, exceptionID)
}

func (q *queries) PointersForUser(ctx context.Context, userID string) ([]policy.PolicyPointer, error) {
	return q.queryPointers(ctx, `
		SELECT user_id, domain, exception_id, priority, updated_at
		FROM pointers WHERE user_id = ? ORDER BY domain`, userID)
}

func (q *queries) SubDepartmentPointers(ctx context.Context, d policy.Domain, sdID, exceptionID string) ([]policy.PolicyPointer, error) {
	return q.queryPointers(ctx, `
		SELECT p.user_id, p.domain, p.exception_id, p.priority, p.updated_at
		FROM pointers p
		JOIN users u ON u.id = p.user_id
		WHERE p.domain = ? AND u.sd_id = ?
		  AND (p.priority = 'SUB_DEPARTMENT' OR p.exception_id = ?)
		ORDER BY p.user_id`,
		string(d), sdID, exceptionID)
}

func (q *queries) queryPointers(ctx context.Context, query string, args ...any) ([]policy.PolicyPointer, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pointers: %w", err)
	}
	defer rows.Close()

	var out []policy.PolicyPointer
	for rows.Next() {
		ptr, err := scanPointer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pointer: %w", err)
		}
		out = append(out, *ptr)
	}
	return out, rows.Err()
}

func scanPointer(row rowScanner) (*policy.PolicyPointer, error) {
	var ptr policy.PolicyPointer
	var domain, priority, updatedAt string
	if err := row.Scan(&ptr.UserID, &domain, &ptr.ExceptionID, &priority, &updatedAt); err != nil {
		return nil, err
	}
	ptr.Domain = policy.Domain(domain)
	ptr.Priority = policy.Priority(priority)
	var err error
	if ptr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &ptr, nil
}

// =============================================================================
// EFFECTS OUTBOX
// =============================================================================

func (q *queries) EnqueueEffect(ctx context.Context, eff policy.Effect) error {
	userIDs, err := json.Marshal(eff.Change.UserIDs)
	if err != nil {
		return fmt.Errorf("failed to encode effect user ids: %w", err)
	}
	sdIDs, err := json.Marshal(eff.Change.SubDepartmentIDs)
	if err != nil {
		return fmt.Errorf("failed to encode effect sd ids: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO effects (id, domain, company_id, user_ids, sd_ids, old_payload, new_payload,
			status, attempts, next_attempt_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		eff.ID, string(eff.Change.Domain), eff.Change.CompanyID,
		string(userIDs), string(sdIDs),
		nullString(string(eff.Change.OldPayload)), nullString(string(eff.Change.NewPayload)),
		eff.Attempts, formatTime(eff.NextAttemptAt), formatTime(eff.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue effect: %w", err)
	}
	return nil
}

func (q *queries) DueEffects(ctx context.Context, now time.Time, limit int) ([]policy.Effect, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, domain, company_id, user_ids, sd_ids, old_payload, new_payload,
			attempts, next_attempt_at, created_at
		FROM effects
		WHERE status = 'pending' AND next_attempt_at <= ?
		ORDER BY created_at
		LIMIT ?`,
		formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query effects: %w", err)
	}
	defer rows.Close()

	var out []policy.Effect
	for rows.Next() {
		var eff policy.Effect
		var domain, userIDs, sdIDs, nextAt, createdAt string
		var oldPayload, newPayload sql.NullString
		if err := rows.Scan(&eff.ID, &domain, &eff.Change.CompanyID, &userIDs, &sdIDs,
			&oldPayload, &newPayload, &eff.Attempts, &nextAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan effect: %w", err)
		}
		eff.Change.Domain = policy.Domain(domain)
		if err := json.Unmarshal([]byte(userIDs), &eff.Change.UserIDs); err != nil {
			return nil, fmt.Errorf("failed to decode effect user ids: %w", err)
		}
		if err := json.Unmarshal([]byte(sdIDs), &eff.Change.SubDepartmentIDs); err != nil {
			return nil, fmt.Errorf("failed to decode effect sd ids: %w", err)
		}
		if oldPayload.Valid {
			eff.Change.OldPayload = json.RawMessage(oldPayload.String)
		}
		if newPayload.Valid {
			eff.Change.NewPayload = json.RawMessage(newPayload.String)
		}
		if eff.NextAttemptAt, err = parseTime(nextAt); err != nil {
			return nil, fmt.Errorf("failed to scan effect: %w", err)
		}
		if eff.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan effect: %w", err)
		}
		out = append(out, eff)
	}
	return out, rows.Err()
}

func (q *queries) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	return q.updateEffect(ctx, id, `
		UPDATE effects SET status = 'dispatched', dispatched_at = ? WHERE id = ?`,
		formatTime(at), id)
}

func (q *queries) RescheduleEffect(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return q.updateEffect(ctx, id, `
		UPDATE effects SET attempts = ?, next_attempt_at = ?, last_error = ? WHERE id = ?`,
		attempts, formatTime(next), lastErr, id)
}

func (q *queries) MarkFailed(ctx context.Context, id string, reason string) error {
	return q.updateEffect(ctx, id, `
		UPDATE effects SET status = 'failed', last_error = ? WHERE id = ?`,
		reason, id)
}

func (q *queries) updateEffect(ctx context.Context, id, query string, args ...any) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update effect: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update effect: %w", err)
	}
	if n == 0 {
		return &policy.NotFoundError{Kind: "effect", ID: id}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// timeLayout keeps a fixed-width fraction so lexicographic comparison of
// stored timestamps matches chronological order (RFC3339Nano trims zeros
// and breaks that).
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed timestamp %q: %w", s, err)
	}
	return t, nil
}

func isScopeConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "idx_exceptions_admin_scope") ||
		strings.Contains(msg, "idx_exceptions_sd_scope") ||
		strings.Contains(msg, "idx_exceptions_user_scope") ||
		strings.Contains(msg, "UNIQUE constraint failed: exceptions")
}

func scopeConflict(rec policy.ExceptionRecord) error {
	return &policy.ScopeConflictError{
		Domain:   rec.Domain,
		Priority: rec.Priority,
		Scope:    rec.Scope(),
	}
}
