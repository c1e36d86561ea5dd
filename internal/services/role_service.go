package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/repositories"
	"github.com/asakaida/epiguard/internal/services/authorization"
)

// RoleServiceInterface defines the interface for role administration
type RoleServiceInterface interface {
	SetRolePermissions(ctx context.Context, roleID int64, ids []entities.PermissionID) (*entities.PermissionSet, error)
	AssignRole(ctx context.Context, userID uuid.UUID, roleID int64) error
	RoleChanged(ctx context.Context, roleID int64) error
}

// RoleService changes role permissions and assignments and keeps the
// user cache consistent with them
type RoleService struct {
	roleRepo repositories.RoleRepository
	userRepo repositories.UserRepository
	expander *authorization.Expander
	users    UserServiceInterface
	logger   *slog.Logger
}

// NewRoleService creates a new RoleService
func NewRoleService(
	roleRepo repositories.RoleRepository,
	userRepo repositories.UserRepository,
	expander *authorization.Expander,
	users UserServiceInterface,
	logger *slog.Logger,
) *RoleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{
		roleRepo: roleRepo,
		userRepo: userRepo,
		expander: expander,
		users:    users,
		logger:   logger,
	}
}

// SetRolePermissions replaces a role's raw identifiers and returns the
// resulting effective set. Duplicates are dropped keeping first occurrence.
// Unknown identifiers and unmet catalog requirements are logged, not rejected.
func (s *RoleService) SetRolePermissions(ctx context.Context, roleID int64, ids []entities.PermissionID) (*entities.PermissionSet, error) {
	if roleID <= 0 {
		return nil, fmt.Errorf("role ID is required")
	}

	raw := dedupe(ids)
	for _, id := range raw {
		if !id.Known() {
			s.logger.Warn("role granted unknown permission", "role_id", roleID, "permission", id)
		}
	}

	role, err := s.roleRepo.GetByID(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	role.PermissionIDs = raw

	set, err := s.expander.ExpandRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to expand role: %w", err)
	}

	catalog, err := s.expander.Catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get permission catalog: %w", err)
	}
	for _, req := range catalog.MissingRequirements(set) {
		s.logger.Warn("role permission missing its requirements",
			"role_id", roleID,
			"permission", req.ID,
			"missing", req.Missing,
		)
	}

	if err := s.roleRepo.SetPermissions(ctx, roleID, raw); err != nil {
		return nil, fmt.Errorf("failed to set role permissions: %w", err)
	}

	if err := s.RoleChanged(ctx, roleID); err != nil {
		return nil, err
	}

	s.logger.Info("role permissions updated",
		"role_id", roleID,
		"raw", len(raw),
		"effective", set.Len(),
		"fingerprint", set.Fingerprint().String(),
	)

	return set, nil
}

// AssignRole gives a user a role (0 removes it) and drops the user's cached snapshot
func (s *RoleService) AssignRole(ctx context.Context, userID uuid.UUID, roleID int64) error {
	if userID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}

	if roleID != 0 {
		if _, err := s.roleRepo.GetByID(ctx, roleID); err != nil {
			return fmt.Errorf("failed to get role: %w", err)
		}
	}

	if err := s.userRepo.UpdateRole(ctx, userID, roleID); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}

	if err := s.users.Invalidate(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("role assigned", "user_id", userID, "role_id", roleID)
	return nil
}

// RoleChanged drops the cached snapshot of every user holding the role.
// When the role no longer exists its former holders cannot be listed
// (storage already cleared their role), so every cached user is dropped.
func (s *RoleService) RoleChanged(ctx context.Context, roleID int64) error {
	if _, err := s.roleRepo.GetByID(ctx, roleID); err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("failed to get role %d: %w", roleID, err)
		}
		if err := s.users.InvalidateAll(ctx); err != nil {
			return err
		}
		s.logger.Info("role removed, invalidated all users", "role_id", roleID)
		return nil
	}

	userIDs, err := s.userRepo.ListIDsByRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("failed to list users of role %d: %w", roleID, err)
	}

	for _, userID := range userIDs {
		if err := s.users.Invalidate(ctx, userID); err != nil {
			return err
		}
	}

	s.logger.Debug("invalidated users of role", "role_id", roleID, "users", len(userIDs))
	return nil
}

func dedupe(ids []entities.PermissionID) []entities.PermissionID {
	seen := make(map[entities.PermissionID]struct{}, len(ids))
	out := make([]entities.PermissionID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
