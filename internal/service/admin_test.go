package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

// mockStatsRepo returns a fixed dashboard snapshot.
type mockStatsRepo struct {
	stats model.AdminStats
}

func (m *mockStatsRepo) AdminStats(_ context.Context, _ time.Time) (model.AdminStats, error) {
	return m.stats, nil
}

var _ repository.StatsRepository = (*mockStatsRepo)(nil)

type adminFixture struct {
	svc       *AdminService
	users     *mockUserRepo
	playlists *mockPlaylistRepo
	settings  *mockSettingsRepo
	admin     *model.User
	regular   *model.User
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()
	users := newMockUserRepo()
	playlists := newMockPlaylistRepo()
	settings := newMockSettingsRepo()
	ctx := context.Background()

	admin := &model.User{
		Email: "admin@example.com", Username: "admin",
		Role: model.RoleAdmin, Active: true, Approved: true,
	}
	require.NoError(t, users.CreateUser(ctx, admin))

	regular := &model.User{
		Email: "user@example.com", Username: "user",
		Role: model.RoleUser, Active: true, Approved: true,
	}
	require.NoError(t, users.CreateUser(ctx, regular))

	return &adminFixture{
		svc:       NewAdminService(users, playlists, settings, &mockStatsRepo{}, testLogger()),
		users:     users,
		playlists: playlists,
		settings:  settings,
		admin:     admin,
		regular:   regular,
	}
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	_, err := f.svc.Stats(ctx, f.regular.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.ListUsers(ctx, "missing", repository.UserListOptions{})
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	_, err = f.svc.ListUsers(ctx, f.admin.ID, repository.UserListOptions{})
	assert.NoError(t, err)
}

func TestAdmin_ApproveAndReject(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	pending := &model.User{Email: "p@example.com", Username: "pending", Role: model.RoleUser, Active: true}
	require.NoError(t, f.users.CreateUser(ctx, pending))

	require.NoError(t, f.svc.Approve(ctx, f.admin.ID, pending.ID))
	got := f.users.users[pending.ID]
	assert.True(t, got.Approved)
	assert.Equal(t, f.admin.ID, got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)

	// Approving twice reports NotFound, same as an absent user.
	assert.ErrorIs(t, f.svc.Approve(ctx, f.admin.ID, pending.ID), apperror.ErrNotFound)

	pending2 := &model.User{Email: "p2@example.com", Username: "pending2", Role: model.RoleUser, Active: true}
	require.NoError(t, f.users.CreateUser(ctx, pending2))

	require.NoError(t, f.svc.Reject(ctx, f.admin.ID, pending2.ID))
	_, ok := f.users.users[pending2.ID]
	assert.False(t, ok)

	// Approved accounts cannot be rejected.
	assert.ErrorIs(t, f.svc.Reject(ctx, f.admin.ID, f.regular.ID), apperror.ErrNotFound)
}

func TestAdmin_LastAdminGuards(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	role := model.RoleUser
	_, err := f.svc.UpdateUser(ctx, f.admin.ID, f.admin.ID, UserUpdate{Role: &role})
	assert.ErrorIs(t, err, apperror.ErrValidation)

	assert.ErrorIs(t, f.svc.DeleteUser(ctx, f.admin.ID, f.admin.ID), apperror.ErrValidation)

	// With a second admin the demotion goes through.
	second := &model.User{Email: "a2@example.com", Username: "admin2", Role: model.RoleAdmin, Active: true, Approved: true}
	require.NoError(t, f.users.CreateUser(ctx, second))

	got, err := f.svc.UpdateUser(ctx, f.admin.ID, second.ID, UserUpdate{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, got.Role)
}

func TestAdmin_UpdateUserInvalidRole(t *testing.T) {
	f := newAdminFixture(t)

	role := model.Role("superuser")
	_, err := f.svc.UpdateUser(context.Background(), f.admin.ID, f.regular.ID, UserUpdate{Role: &role})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestAdmin_DeleteUser(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteUser(ctx, f.admin.ID, f.regular.ID))
	_, ok := f.users.users[f.regular.ID]
	assert.False(t, ok)
}

func TestAdmin_PlaylistModeration(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	p := &model.Playlist{Token: "tok-1", CurrentContent: "#EXTM3U\n", Name: "x", AutoUpdateInterval: 3600, LastStatus: model.StatusUnknown}
	require.NoError(t, f.playlists.Create(ctx, p))

	_, err := f.svc.ListPlaylists(ctx, f.regular.ID, "")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	list, err := f.svc.ListPlaylists(ctx, f.admin.ID, "")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, f.svc.DeletePlaylist(ctx, f.admin.ID, "tok-1"))
	assert.ErrorIs(t, f.svc.DeletePlaylist(ctx, f.admin.ID, "tok-1"), apperror.ErrNotFound)
}

func TestAdmin_Settings(t *testing.T) {
	f := newAdminFixture(t)
	ctx := context.Background()

	settings, err := f.svc.Settings(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.False(t, settings[openRegistrationKey])

	require.NoError(t, f.svc.SetOpenRegistration(ctx, f.admin.ID, true))

	settings, err = f.svc.Settings(ctx, f.admin.ID)
	require.NoError(t, err)
	assert.True(t, settings[openRegistrationKey])

	assert.ErrorIs(t, f.svc.SetOpenRegistration(ctx, f.regular.ID, true), apperror.ErrForbidden)
}
