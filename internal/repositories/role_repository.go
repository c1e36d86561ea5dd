package repositories

import (
	"context"

	"github.com/asakaida/epiguard/internal/entities"
)

// RoleRepository defines the interface for role data access
type RoleRepository interface {
	// Create stores a new role and sets its ID
	Create(ctx context.Context, role *entities.Role) error

	// GetByID retrieves a role, returning ErrNotFound if it does not exist
	GetByID(ctx context.Context, id int64) (*entities.Role, error)

	// List returns every role ordered by ID
	List(ctx context.Context) ([]*entities.Role, error)

	// SetPermissions replaces the raw permission identifiers of a role
	SetPermissions(ctx context.Context, id int64, permissionIDs []entities.PermissionID) error

	// Delete removes a role
	Delete(ctx context.Context, id int64) error
}
