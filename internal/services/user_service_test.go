package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/epiguard/internal/entities"
	"github.com/asakaida/epiguard/internal/repositories"
	"github.com/asakaida/epiguard/pkg/cache/memorycache"
)

type userServiceFixture struct {
	users   *mockUserRepository
	roles   *mockRoleRepository
	cache   *memorycache.Cache
	service *UserService
	role    *entities.Role
	user    *entities.User
}

func newUserServiceFixture(t *testing.T, withCache bool) *userServiceFixture {
	t.Helper()
	ctx := context.Background()

	f := &userServiceFixture{
		users: newMockUserRepository(),
		roles: newMockRoleRepository(),
	}

	f.role = &entities.Role{Name: "analyst", PermissionIDs: []entities.PermissionID{entities.CaseAll, entities.ReportView}}
	require.NoError(t, f.roles.Create(ctx, f.role))

	f.user = &entities.User{
		ID:         uuid.New(),
		Email:      "analyst@example.org",
		Name:       "Analyst",
		RegionCode: "north",
		RoleID:     f.role.ID,
		Attributes: map[string]interface{}{"ward": "icu", "shifts": []interface{}{"day", "night"}},
		CreatedAt:  time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.users.Create(ctx, f.user))

	if withCache {
		c, err := memorycache.New(&memorycache.Config{MaxSizeBytes: 1 << 20, DefaultTTL: time.Minute, EnableMetrics: true})
		require.NoError(t, err)
		f.cache = c
		f.service = NewUserService(f.users, f.roles, testExpander(), c, time.Minute, nil)
	} else {
		f.service = NewUserService(f.users, f.roles, testExpander(), nil, 0, nil)
	}

	return f
}

func TestUserService_GetUser(t *testing.T) {
	f := newUserServiceFixture(t, false)

	user, err := f.service.GetUser(context.Background(), f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"case_all", "case_edit", "case_export", "case_view", "report_view"}, user.Permissions().Strings())
	assert.Equal(t, "north", user.RegionCode)
}

func TestUserService_GetUserWithoutRole(t *testing.T) {
	f := newUserServiceFixture(t, false)
	lone := &entities.User{ID: uuid.New(), Email: "lone@example.org"}
	require.NoError(t, f.users.Create(context.Background(), lone))

	user, err := f.service.GetUser(context.Background(), lone.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, user.Permissions().Len())
}

func TestUserService_Errors(t *testing.T) {
	f := newUserServiceFixture(t, false)
	ctx := context.Background()

	_, err := f.service.GetUser(ctx, uuid.Nil)
	assert.Error(t, err)

	_, err = f.service.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	orphan := &entities.User{ID: uuid.New(), Email: "orphan@example.org", RoleID: 999}
	require.NoError(t, f.users.Create(ctx, orphan))
	_, err = f.service.GetUser(ctx, orphan.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUserService_CachesSnapshots(t *testing.T) {
	f := newUserServiceFixture(t, true)
	ctx := context.Background()

	first, err := f.service.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	second, err := f.service.GetUser(ctx, f.user.ID)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.users.gets.Load(), "second load is served from cache")
	assert.Equal(t, first.Permissions().Fingerprint(), second.Permissions().Fingerprint())
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Email, second.Email)
	assert.Equal(t, first.RoleID, second.RoleID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
	assert.Equal(t, "icu", second.Attributes["ward"])
	assert.Equal(t, []interface{}{"day", "night"}, second.Attributes["shifts"])
}

func TestUserService_Invalidate(t *testing.T) {
	f := newUserServiceFixture(t, true)
	ctx := context.Background()

	before, err := f.service.GetUser(ctx, f.user.ID)
	require.NoError(t, err)

	require.NoError(t, f.roles.SetPermissions(ctx, f.role.ID, []entities.PermissionID{entities.MapView}))

	cached, err := f.service.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Permissions().Fingerprint(), cached.Permissions().Fingerprint(), "stale until invalidated")

	require.NoError(t, f.service.Invalidate(ctx, f.user.ID))

	after, err := f.service.GetUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, before.Permissions().Fingerprint(), after.Permissions().Fingerprint())
	assert.Equal(t, []string{"map_view"}, after.Permissions().Strings())

	require.NoError(t, f.service.InvalidateAll(ctx))
	assert.Equal(t, 0, f.cache.Len())
}

func TestUserService_InvalidateWithoutCache(t *testing.T) {
	f := newUserServiceFixture(t, false)
	assert.NoError(t, f.service.Invalidate(context.Background(), f.user.ID))
	assert.NoError(t, f.service.InvalidateAll(context.Background()))
}

func TestUserService_CollapsesConcurrentLoads(t *testing.T) {
	f := newUserServiceFixture(t, false)
	f.users.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := f.service.GetUser(context.Background(), f.user.ID)
			assert.NoError(t, err)
			assert.True(t, user.HasPermission(entities.CaseView))
		}()
	}
	wg.Wait()

	assert.Less(t, f.users.gets.Load(), int32(10))
}

func TestUserService_CanceledContext(t *testing.T) {
	f := newUserServiceFixture(t, false)
	f.users.delay = 200 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.service.GetUser(ctx, f.user.ID)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSnapshot_RoundTrip(t *testing.T) {
	user := &entities.User{
		ID:         uuid.New(),
		Email:      "x@example.org",
		RegionCode: "east",
		RoleID:     4,
		CreatedAt:  time.Date(2023, 1, 2, 3, 4, 5, 6, time.UTC),
	}
	user.SetPermissions(entities.NewPermissionSet(entities.BedView, entities.BedAll))

	data, err := encodeUser(user)
	require.NoError(t, err)

	restored, err := decodeUser(data)
	require.NoError(t, err)
	assert.Equal(t, user.ID, restored.ID)
	assert.Equal(t, user.RegionCode, restored.RegionCode)
	assert.True(t, user.Permissions().Equal(restored.Permissions()))
	assert.True(t, user.CreatedAt.Equal(restored.CreatedAt))

	_, err = decodeUser([]byte{0xff})
	assert.Error(t, err)
}
