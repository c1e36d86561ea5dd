package repositories

import (
	"context"

	"github.com/google/uuid"

	"github.com/asakaida/epiguard/internal/entities"
)

// UserRepository defines the interface for user data access.
// Returned users carry no effective permission set; the service layer installs it.
type UserRepository interface {
	// Create stores a new user
	Create(ctx context.Context, user *entities.User) error

	// GetByID retrieves a user, returning ErrNotFound if it does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error)

	// UpdateRole assigns a role to a user
	UpdateRole(ctx context.Context, id uuid.UUID, roleID int64) error

	// ListIDsByRole returns the IDs of every user holding the role
	ListIDsByRole(ctx context.Context, roleID int64) ([]uuid.UUID, error)

	// Delete removes a user
	Delete(ctx context.Context, id uuid.UUID) error
}
