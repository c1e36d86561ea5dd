package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/repositories"
)

// RoleChangesChannel is the LISTEN/NOTIFY channel raised when a role's permissions change.
// The payload is the role ID.
const RoleChangesChannel = "role_permissions_changed"

// PostgresRoleRepository implements RoleRepository using PostgreSQL
type PostgresRoleRepository struct {
	db *sql.DB
}

// NewPostgresRoleRepository creates a new PostgreSQL role repository
func NewPostgresRoleRepository(db *sql.DB) repositories.RoleRepository {
	return &PostgresRoleRepository{db: db}
}

// Create stores a new role and sets its ID
func (r *PostgresRoleRepository) Create(ctx context.Context, role *entities.Role) error {
	if err := role.Validate(); err != nil {
		return fmt.Errorf("invalid role: %w", err)
	}

	query := `
		INSERT INTO roles (name, description, permission_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	now := time.Now()
	err := r.db.QueryRowContext(ctx, query,
		role.Name, role.Description, pq.Array(toStrings(role.PermissionIDs)), now, now,
	).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetByID retrieves a role by ID
func (r *PostgresRoleRepository) GetByID(ctx context.Context, id int64) (*entities.Role, error) {
	query := `
		SELECT id, name, description, permission_ids, created_at, updated_at
		FROM roles
		WHERE id = $1
	`
	role, err := scanRole(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("role %d: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	return role, nil
}

// List returns every role ordered by ID
func (r *PostgresRoleRepository) List(ctx context.Context) ([]*entities.Role, error) {
	query := `
		SELECT id, name, description, permission_ids, created_at, updated_at
		FROM roles
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*entities.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	return roles, nil
}

// SetPermissions replaces the raw permission identifiers of a role.
// The roles table trigger notifies RoleChangesChannel.
func (r *PostgresRoleRepository) SetPermissions(ctx context.Context, id int64, permissionIDs []entities.PermissionID) error {
	query := `
		UPDATE roles
		SET permission_ids = $1, updated_at = $2
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, pq.Array(toStrings(permissionIDs)), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set role permissions: %w", err)
	}

	return expectRow(result, fmt.Sprintf("role %d", id))
}

// Delete removes a role
func (r *PostgresRoleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	return expectRow(result, fmt.Sprintf("role %d", id))
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRole(row rowScanner) (*entities.Role, error) {
	var (
		role = &entities.Role{}
		ids  pq.StringArray
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &ids, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	role.PermissionIDs = entities.PermissionIDs(ids...)
	return role, nil
}

func toStrings(ids []entities.PermissionID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
