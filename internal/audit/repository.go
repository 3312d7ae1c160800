// Package audit records security-relevant registry activity in the
// audit_logs table and serves it back with filtering and pagination.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded in the audit trail.
const (
	ActionRegister    = "register"
	ActionLogin       = "login"
	ActionLoginFailed = "login_failed"
	ActionRoleUpdate  = "role_update"
	ActionCreate      = "create"
	ActionUpdate      = "update"
	ActionReassign    = "reassign"
	ActionDelete      = "delete"
)

// Entity types recorded in the audit trail.
const (
	EntityStaff   = "staff"
	EntityStudent = "student"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	// timeLayout is fixed-width so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000Z"
)

// Entry is a single audit trail record. ActorID is zero when the action had
// no authenticated actor (self-registration, failed login).
type Entry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    int64          `json:"actor_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// EntityIDOf formats a numeric entity id for Entry.EntityID.
func EntityIDOf(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Filter controls which entries List returns.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorID    int64
	Limit      int // default 50, max 200
	Offset     int
}

// ListResult is one page of entries.
type ListResult struct {
	Logs   []Entry `json:"logs"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository defines the interface for audit trail persistence.
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores entries in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts entry, generating ID, Source and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()
	}
	if entry.Source == "" {
		entry.Source = "api"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var details sql.NullString
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	var actor sql.NullInt64
	if entry.ActorID > 0 {
		actor = sql.NullInt64{Int64: entry.ActorID, Valid: true}
	}
	var entityID sql.NullString
	if entry.EntityID != "" {
		entityID = sql.NullString{String: entry.EntityID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (id, action, entity_type, entity_id, actor_id, source, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.EntityType, entityID, actor,
		entry.Source, details, entry.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// normalise clamps Limit to 1..maxLimit, using defaultLimit for zero, and
// floors Offset at zero.
func (f Filter) normalise() Filter {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultLimit
	case f.Limit > maxLimit:
		f.Limit = maxLimit
	}
	f.Offset = max(f.Offset, 0)
	return f
}

// where renders the set filter fields as a WHERE clause over fixed column
// names, with values passed as placeholders.
func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(column string, value any, set bool) {
		if set {
			clauses = append(clauses, column+" = ?")
			args = append(args, value)
		}
	}
	add("action", f.Action, f.Action != "")
	add("entity_type", f.EntityType, f.EntityType != "")
	add("entity_id", f.EntityID, f.EntityID != "")
	add("actor_id", f.ActorID, f.ActorID > 0)

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns one page of entries matching filter, newest first, with the
// total number of matches.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter = filter.normalise()
	where, args := filter.where()

	page := &ListResult{Logs: []Entry{}, Limit: filter.Limit, Offset: filter.Offset}
	//nolint:gosec // where holds only fixed column names
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("counting audit entries: %w", err)
	}

	//nolint:gosec // as above
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, action, entity_type, entity_id, actor_id, source, details, created_at FROM audit_logs"+
			where+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		page.Logs = append(page.Logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	return page, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                 Entry
		entityID, details sql.NullString
		actor             sql.NullInt64
		stamp             string
	)
	if err := rows.Scan(&e.ID, &e.Action, &e.EntityType, &entityID, &actor, &e.Source, &details, &stamp); err != nil {
		return e, fmt.Errorf("reading audit entry: %w", err)
	}
	e.EntityID = entityID.String
	e.ActorID = actor.Int64
	if details.String != "" {
		_ = json.Unmarshal([]byte(details.String), &e.Details) //nolint:errcheck // written by Create
	}

	var err error
	if e.CreatedAt, err = time.Parse(timeLayout, stamp); err != nil {
		return e, fmt.Errorf("audit entry %s: bad created_at %q", e.ID, stamp)
	}
	return e, nil
}
