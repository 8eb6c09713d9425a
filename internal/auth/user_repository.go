package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// UserRepository persists user accounts and their role assignments.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	AssignRole(ctx context.Context, userID, roleName string) error
}

// NewUserID generates a short prefixed identifier for a new user.
func NewUserID() string {
	return "usr-" + uuid.NewString()[:8]
}

// SQLiteUserRepository is the SQLite-backed UserRepository.
type SQLiteUserRepository struct {
	db *sql.DB
}

func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts the user row. Emails are stored lowercased; a duplicate
// maps to ErrUserExists.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = NewUserID()
	}
	user.Email = strings.ToLower(user.Email)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, age, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Age,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// GetByID loads a user with roles and permissions attached.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "id = ?", id)
}

// GetByEmail loads a user by email, case-insensitively.
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "email = ?", strings.ToLower(email))
}

func (r *SQLiteUserRepository) getUser(ctx context.Context, where string, arg any) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, age, created_at, updated_at
		FROM users WHERE `+where, arg)

	user, err := scanUserFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}

	if err := r.loadRoles(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// List returns all users with their roles, ordered by creation time.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]*User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, email, password_hash, first_name, last_name, age, created_at, updated_at
		FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUserFrom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	for _, user := range users {
		if err := r.loadRoles(ctx, user); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// AssignRole links the user to a role by name. Assigning an already held
// role is a no-op.
func (r *SQLiteUserRepository) AssignRole(ctx context.Context, userID, roleName string) error {
	var roleID int64
	err := r.db.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = ?`, roleName).Scan(&roleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("looking up role: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO role_to_user (user_id, role_id) VALUES (?, ?)`,
		userID, roleID)
	if err != nil {
		return fmt.Errorf("assigning role: %w", err)
	}
	return nil
}

// loadRoles attaches the user's roles with permissions nested, ordered by
// role then permission identifier. That ordering fixes the sequence of the
// flattened permission list stamped into access tokens.
func (r *SQLiteUserRepository) loadRoles(ctx context.Context, user *User) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.name, p.id, p.name
		FROM roles r
		JOIN role_to_user ru ON ru.role_id = r.id
		LEFT JOIN role_to_permission rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ru.user_id = ?
		ORDER BY r.id, p.id`, user.ID)
	if err != nil {
		return fmt.Errorf("loading roles: %w", err)
	}
	defer rows.Close()

	user.Roles = nil
	for rows.Next() {
		var (
			roleID   int64
			roleName string
			permID   sql.NullInt64
			permName sql.NullString
		)
		if err := rows.Scan(&roleID, &roleName, &permID, &permName); err != nil {
			return fmt.Errorf("scanning role: %w", err)
		}

		if len(user.Roles) == 0 || user.Roles[len(user.Roles)-1].ID != roleID {
			user.Roles = append(user.Roles, Role{ID: roleID, Name: roleName})
		}
		if permID.Valid {
			role := &user.Roles[len(user.Roles)-1]
			role.Permissions = append(role.Permissions, Permission{ID: permID.Int64, Name: permName.String})
		}
	}
	return rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUserFrom(s scanner) (*User, error) {
	var (
		user               User
		createdAt, updated string
	)
	err := s.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.FirstName,
		&user.LastName, &user.Age, &createdAt, &updated)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = parseTime(createdAt)
	user.UpdatedAt = parseTime(updated)
	return &user, nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// Timestamps are stored as RFC 3339 text.

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
