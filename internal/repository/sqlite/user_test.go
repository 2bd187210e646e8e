package sqlite

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

func newTestUser(t *testing.T, db *DB, mutate func(*model.User)) *model.User {
	t.Helper()
	u := &model.User{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "$2a$10$fakehash",
		Role:         model.RoleUser,
		Active:       true,
		Approved:     true,
	}
	if mutate != nil {
		mutate(u)
	}
	require.NoError(t, db.CreateUser(context.Background(), u))
	return u
}

func TestUserCreateGetRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(t, db, nil)
	require.NotEmpty(t, u.ID)

	got, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, model.RoleUser, got.Role)
	assert.True(t, got.Active)
	assert.True(t, got.Approved)
	assert.False(t, got.CreatedAt.IsZero())

	byEmail, err := db.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byName, err := db.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	newTestUser(t, db, nil)

	err := db.CreateUser(context.Background(), &model.User{
		Email:    "alice@example.com",
		Username: "alice2",
		Role:     model.RoleUser,
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestUserCreateDuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	newTestUser(t, db, nil)

	err := db.CreateUser(context.Background(), &model.User{
		Email:    "other@example.com",
		Username: "alice",
		Role:     model.RoleUser,
	})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestGetUserByGitHubID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(t, db, func(u *model.User) {
		u.GitHubID = 42
	})
	// A second OAuth-less user must not collide on github_id = 0.
	newTestUser(t, db, func(u *model.User) {
		u.Email = "bob@example.com"
		u.Username = "bob"
	})

	got, err := db.GetUserByGitHubID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = db.GetUserByGitHubID(ctx, 999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListUsersFiltering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	newTestUser(t, db, nil)
	pending := newTestUser(t, db, func(u *model.User) {
		u.Email = "carol@example.com"
		u.Username = "carol"
		u.Approved = false
	})

	all, err := db.ListUsers(ctx, repository.UserListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := db.ListUsers(ctx, repository.UserListOptions{PendingOnly: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	got, err = db.ListUsers(ctx, repository.UserListOptions{Search: "caro"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

func TestUpdateUserAndLastLogin(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(t, db, func(u *model.User) {
		u.Approved = false
	})

	now := time.Now().UTC()
	u.Approved = true
	u.ApprovedAt = &now
	u.ApprovedBy = "admin-id"
	u.Role = model.RoleAdmin
	require.NoError(t, db.UpdateUser(ctx, u))

	require.NoError(t, db.UpdateLastLogin(ctx, u.ID, now))

	got, err := db.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
	assert.Equal(t, model.RoleAdmin, got.Role)
	assert.Equal(t, "admin-id", got.ApprovedBy)
	require.NotNil(t, got.LastLoginAt)
	assert.WithinDuration(t, now, *got.LastLoginAt, time.Second)
}

func TestCountAdminsExcept(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	admin1 := newTestUser(t, db, func(u *model.User) {
		u.Role = model.RoleAdmin
	})
	admin2 := newTestUser(t, db, func(u *model.User) {
		u.Email = "bob@example.com"
		u.Username = "bob"
		u.Role = model.RoleAdmin
	})
	newTestUser(t, db, func(u *model.User) {
		u.Email = "carol@example.com"
		u.Username = "carol"
	})

	n, err := db.CountAdminsExcept(ctx, admin1.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.DeleteUser(ctx, admin2.ID))

	n, err = db.CountAdminsExcept(ctx, admin1.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSettingsRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Seeded by the migration.
	v, err := db.GetSetting(ctx, "open_registration")
	require.NoError(t, err)
	assert.Equal(t, "false", v)

	require.NoError(t, db.SetSetting(ctx, "open_registration", "true"))
	v, err = db.GetSetting(ctx, "open_registration")
	require.NoError(t, err)
	assert.Equal(t, "true", v)

	_, err = db.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
