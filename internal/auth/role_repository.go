package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// RoleRepository persists roles and their permission grants.
type RoleRepository interface {
	List(ctx context.Context) ([]*Role, error)
	GetByName(ctx context.Context, name string) (*Role, error)
	Ensure(ctx context.Context, name string, permissions []string) error
}

// SQLiteRoleRepository is the SQLite-backed RoleRepository.
type SQLiteRoleRepository struct {
	db *sql.DB
}

func NewSQLiteRoleRepository(db *sql.DB) *SQLiteRoleRepository {
	return &SQLiteRoleRepository{db: db}
}

// List returns all roles with permissions nested, ordered by identifier.
func (r *SQLiteRoleRepository) List(ctx context.Context) ([]*Role, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.id, r.name, p.id, p.name
		FROM roles r
		LEFT JOIN role_to_permission rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		ORDER BY r.id, p.id`)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		var (
			roleID   int64
			roleName string
			permID   sql.NullInt64
			permName sql.NullString
		)
		if err := rows.Scan(&roleID, &roleName, &permID, &permName); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		if len(roles) == 0 || roles[len(roles)-1].ID != roleID {
			roles = append(roles, &Role{ID: roleID, Name: roleName})
		}
		if permID.Valid {
			role := roles[len(roles)-1]
			role.Permissions = append(role.Permissions, Permission{ID: permID.Int64, Name: permName.String})
		}
	}
	return roles, rows.Err()
}

// GetByName loads a single role with its permissions.
func (r *SQLiteRoleRepository) GetByName(ctx context.Context, name string) (*Role, error) {
	roles, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, ErrRoleNotFound
}

// Ensure creates the role and its permission grants if absent. Existing
// rows are left untouched, so repeated calls are idempotent.
func (r *SQLiteRoleRepository) Ensure(ctx context.Context, name string, permissions []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO roles (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("inserting role: %w", err)
	}

	var roleID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = ?`, name).Scan(&roleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("looking up role: %w", err)
	}

	for _, perm := range permissions {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO permissions (name) VALUES (?)`, perm); err != nil {
			return fmt.Errorf("inserting permission: %w", err)
		}

		var permID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM permissions WHERE name = ?`, perm).Scan(&permID); err != nil {
			return fmt.Errorf("looking up permission: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO role_to_permission (role_id, permission_id) VALUES (?, ?)`,
			roleID, permID); err != nil {
			return fmt.Errorf("granting permission: %w", err)
		}
	}

	return tx.Commit()
}
