package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/repositories"
	"github.com/asakaida/epiguard/internal/services/authorization"
	"github.com/asakaida/epiguard/pkg/cache"
)

// UserServiceInterface defines the interface for user materialization
type UserServiceInterface interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*entities.User, error)
	Invalidate(ctx context.Context, userID uuid.UUID) error
	InvalidateAll(ctx context.Context) error
}

// UserService loads users and installs their effective permission set
type UserService struct {
	userRepo repositories.UserRepository
	roleRepo repositories.RoleRepository
	expander *authorization.Expander
	cache    cache.Cache // Optional cache of encoded user snapshots
	cacheTTL time.Duration
	logger   *slog.Logger
	loads    singleflight.Group

	// Invalidation generations. A load only caches its snapshot when neither
	// the global generation nor its user's stripe moved while it ran.
	generation atomic.Uint64
	stripes    [generationStripes]atomic.Uint64
}

const generationStripes = 64

// NewUserService creates a new UserService. c may be nil to disable caching.
func NewUserService(
	userRepo repositories.UserRepository,
	roleRepo repositories.RoleRepository,
	expander *authorization.Expander,
	c cache.Cache,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		userRepo: userRepo,
		roleRepo: roleRepo,
		expander: expander,
		cache:    c,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func userCacheKey(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func (s *UserService) stripe(userID uuid.UUID) *atomic.Uint64 {
	return &s.stripes[int(userID[15])%generationStripes]
}

// loadGeneration identifies the invalidation state a load started from
type loadGeneration struct {
	global uint64
	user   uint64
}

func (s *UserService) currentGeneration(userID uuid.UUID) loadGeneration {
	return loadGeneration{
		global: s.generation.Load(),
		user:   s.stripe(userID).Load(),
	}
}

// GetUser returns the user with its effective permission set installed.
// Concurrent misses for the same user share one load.
func (s *UserService) GetUser(ctx context.Context, userID uuid.UUID) (*entities.User, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user ID is required")
	}

	key := userCacheKey(userID)
	if s.cache != nil {
		if cached, found := s.cache.Get(ctx, key); found {
			if data, ok := cached.([]byte); ok {
				user, err := decodeUser(data)
				if err == nil {
					return user, nil
				}
				s.logger.Warn("discarding unreadable user snapshot", "user_id", userID, "error", err)
			}
		}
	}

	result := s.loads.DoChan(key, func() (interface{}, error) {
		return s.materialize(context.WithoutCancel(ctx), userID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*entities.User), nil
	}
}

// materialize loads the user and role from storage and expands the role
func (s *UserService) materialize(ctx context.Context, userID uuid.UUID) (*entities.User, error) {
	started := s.currentGeneration(userID)

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var role *entities.Role
	if user.RoleID != 0 {
		role, err = s.roleRepo.GetByID(ctx, user.RoleID)
		if err != nil {
			return nil, fmt.Errorf("failed to get role %d: %w", user.RoleID, err)
		}
	}

	set, err := s.expander.ExpandRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to expand role: %w", err)
	}
	user.SetPermissions(set)

	s.logger.Debug("materialized user",
		"user_id", userID,
		"role_id", user.RoleID,
		"permissions", set.Len(),
		"fingerprint", set.Fingerprint().String(),
	)

	if s.cache != nil {
		if s.currentGeneration(userID) != started {
			// Invalidated while loading; the result may predate the change
			s.logger.Debug("skipping snapshot of invalidated user", "user_id", userID)
			return user, nil
		}
		data, err := encodeUser(user)
		if err != nil {
			s.logger.Warn("failed to encode user snapshot", "user_id", userID, "error", err)
		} else if err := s.cache.Set(ctx, userCacheKey(userID), data, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache user snapshot", "user_id", userID, "error", err)
		}
	}

	return user, nil
}

// Invalidate drops the cached snapshot of one user.
// Loads already in flight for the user will not cache their result.
func (s *UserService) Invalidate(ctx context.Context, userID uuid.UUID) error {
	key := userCacheKey(userID)
	s.stripe(userID).Add(1)
	s.loads.Forget(key)

	if s.cache == nil {
		return nil
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to invalidate user %s: %w", userID, err)
	}
	return nil
}

// InvalidateAll drops every cached user snapshot.
// Loads already in flight will not cache their result.
func (s *UserService) InvalidateAll(ctx context.Context) error {
	s.generation.Add(1)

	if s.cache == nil {
		return nil
	}
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("failed to invalidate users: %w", err)
	}
	return nil
}
