package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/repositories"
	"github.com/asakaida/epiguard/internal/services/authorization"
)

// mockUserRepository stores users in memory
type mockUserRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*entities.User
	gets  atomic.Int32
	delay time.Duration
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{users: make(map[uuid.UUID]*entities.User)}
}

func (m *mockUserRepository) Create(ctx context.Context, user *entities.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.User, error) {
	m.gets.Add(1)
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	// Hand out a copy without permissions, like a real repository
	return &entities.User{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		RegionCode: user.RegionCode,
		RoleID:     user.RoleID,
		Attributes: user.Attributes,
		CreatedAt:  user.CreatedAt,
	}, nil
}

func (m *mockUserRepository) UpdateRole(ctx context.Context, id uuid.UUID, roleID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	user.RoleID = roleID
	return nil
}

func (m *mockUserRepository) ListIDsByRole(ctx context.Context, roleID int64) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, u := range m.users {
		if u.RoleID == roleID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

// mockRoleRepository stores roles in memory
type mockRoleRepository struct {
	mu     sync.Mutex
	roles  map[int64]*entities.Role
	nextID int64
}

func newMockRoleRepository() *mockRoleRepository {
	return &mockRoleRepository{roles: make(map[int64]*entities.Role)}
}

func (m *mockRoleRepository) Create(ctx context.Context, role *entities.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	role.ID = m.nextID
	m.roles[role.ID] = role
	return nil
}

func (m *mockRoleRepository) GetByID(ctx context.Context, id int64) (*entities.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %d: %w", id, repositories.ErrNotFound)
	}
	copied := *role
	copied.PermissionIDs = append([]entities.PermissionID(nil), role.PermissionIDs...)
	return &copied, nil
}

func (m *mockRoleRepository) List(ctx context.Context) ([]*entities.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []*entities.Role
	for _, r := range m.roles {
		roles = append(roles, r)
	}
	return roles, nil
}

func (m *mockRoleRepository) SetPermissions(ctx context.Context, id int64, ids []entities.PermissionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return fmt.Errorf("role %d: %w", id, repositories.ErrNotFound)
	}
	role.PermissionIDs = ids
	return nil
}

func (m *mockRoleRepository) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.roles, id)
	return nil
}

func testExpander() *authorization.Expander {
	return authorization.NewExpander(authorization.NewStaticCatalog(&entities.Catalog{
		Groups: []*entities.PermissionGroup{
			{
				GroupAllID: entities.CaseAll,
				Label:      "Cases",
				Children: []entities.PermissionChild{
					{ID: entities.CaseView, Label: "View"},
					{ID: entities.CaseEdit, Label: "Edit", RequiresIDs: []entities.PermissionID{entities.CaseView}},
					{ID: entities.CaseExport, Label: "Export"},
				},
			},
			{
				GroupAllID: entities.MapAll,
				Label:      "Map",
				Children: []entities.PermissionChild{
					{ID: entities.MapView, Label: "View"},
					{ID: entities.MapAnimate, Label: "Animate"},
				},
			},
		},
	}))
}
