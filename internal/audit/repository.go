// Package audit records security-relevant events: logins, token rotations
// and revocations, registrations and stand changes. Entries are append-only.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actions recorded by the service.
const (
	ActionUserRegistered = "user.registered"
	ActionUserLogin      = "user.login"
	ActionLoginFailed    = "user.login_failed"
	ActionTokenRefreshed = "token.refreshed"
	ActionTokenRevoked   = "token.revoked"
	ActionStandCreated   = "stand.created"
	ActionStandUpdated   = "stand.updated"
	ActionStandDeleted   = "stand.deleted"
	ActionSaleRecorded   = "sale.recorded"
)

// Entry is one audit record. UserID identifies the acting user when known;
// Details carries free-form context such as the client address.
type Entry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Details    string    `json:"details,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Filter narrows List results. Zero values mean no constraint.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	Since      time.Time
	Limit      int
}

// Repository stores and queries audit entries.
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, filter Filter) ([]*Entry, error)
}

// SQLiteRepository is the SQLite-backed Repository.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, entity_type, entity_id, user_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.EntityType,
		nullString(entry.EntityID), nullString(entry.UserID), nullString(entry.Details),
		entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conds = append(conds, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}

	query := `SELECT id, action, entity_type, entity_id, user_id, details, created_at FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			entry                      Entry
			entityID, userID, details  sql.NullString
			createdAt                  string
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType, &entityID, &userID, &details, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		entry.EntityID = entityID.String
		entry.UserID = userID.String
		entry.Details = details.String
		entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
