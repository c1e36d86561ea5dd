package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/repositories"
)

// PostgresUserRepository implements UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db *sql.DB
}

// NewPostgresUserRepository creates a new PostgreSQL user repository
func NewPostgresUserRepository(db *sql.DB) repositories.UserRepository {
	return &PostgresUserRepository{db: db}
}

// Create stores a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *entities.User) error {
	if err := user.Validate(); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}

	attrs := user.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("failed to marshal user attributes: %w", err)
	}

	query := `
		INSERT INTO users (id, email, name, region_code, role_id, attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.RegionCode, nullRoleID(user.RoleID), string(attrsJSON), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = createdAt
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	query := `
		SELECT email, name, region_code, role_id, attributes, created_at
		FROM users
		WHERE id = $1
	`
	var (
		user      = &entities.User{ID: id}
		roleID    sql.NullInt64
		attrsJSON string
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.Email, &user.Name, &user.RegionCode, &roleID, &attrsJSON, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.RoleID = roleID.Int64
	if err := json.Unmarshal([]byte(attrsJSON), &user.Attributes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user attributes: %w", err)
	}

	return user, nil
}

// UpdateRole assigns a role to a user. A zero roleID removes the assignment.
func (r *PostgresUserRepository) UpdateRole(ctx context.Context, id uuid.UUID, roleID int64) error {
	query := `UPDATE users SET role_id = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, nullRoleID(roleID), id)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}

	return expectRow(result, fmt.Sprintf("user %s", id))
}

// ListIDsByRole returns the IDs of every user holding the role
func (r *PostgresUserRepository) ListIDsByRole(ctx context.Context, roleID int64) ([]uuid.UUID, error) {
	query := `SELECT id FROM users WHERE role_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users by role: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return ids, nil
}

// Delete removes a user
func (r *PostgresUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	return expectRow(result, fmt.Sprintf("user %s", id))
}

func nullRoleID(roleID int64) sql.NullInt64 {
	return sql.NullInt64{Int64: roleID, Valid: roleID != 0}
}

// expectRow returns ErrNotFound when the statement touched no rows
func expectRow(result sql.Result, what string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", what, repositories.ErrNotFound)
	}
	return nil
}
