package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/auth"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

// mockUserRepo is an in-memory repository.UserRepository.
type mockUserRepo struct {
	users  map[string]*model.User
	nextID int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) CreateUser(_ context.Context, u *model.User) error {
	for _, existing := range m.users {
		if (u.Email != "" && existing.Email == u.Email) || existing.Username == u.Username {
			return apperror.Conflict("user", "email or username already in use")
		}
	}
	m.nextID++
	u.ID = fmt.Sprintf("user-%d", m.nextID)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *mockUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (m *mockUserRepo) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", username)
}

func (m *mockUserRepo) GetUserByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	for _, u := range m.users {
		if u.GitHubID == githubID && githubID != 0 {
			result := *u
			return &result, nil
		}
	}
	return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
}

func (m *mockUserRepo) ListUsers(_ context.Context, opts repository.UserListOptions) ([]model.User, error) {
	var out []model.User
	for _, u := range m.users {
		if opts.PendingOnly && u.Approved {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *mockUserRepo) UpdateUser(_ context.Context, u *model.User) error {
	if _, ok := m.users[u.ID]; !ok {
		return apperror.NotFound("user", u.ID)
	}
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.LastLoginAt = &at
	return nil
}

func (m *mockUserRepo) DeleteUser(_ context.Context, id string) error {
	if _, ok := m.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) CountAdminsExcept(_ context.Context, excludeID string) (int, error) {
	n := 0
	for _, u := range m.users {
		if u.Role == model.RoleAdmin && u.ID != excludeID {
			n++
		}
	}
	return n, nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

// mockSettingsRepo is an in-memory repository.SettingsRepository.
type mockSettingsRepo struct {
	values map[string]string
}

func newMockSettingsRepo() *mockSettingsRepo {
	return &mockSettingsRepo{values: make(map[string]string)}
}

func (m *mockSettingsRepo) GetSetting(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", apperror.NotFound("setting", key)
	}
	return v, nil
}

func (m *mockSettingsRepo) SetSetting(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

var _ repository.SettingsRepository = (*mockSettingsRepo)(nil)

func newTestUserService(users *mockUserRepo, settings *mockSettingsRepo) *UserService {
	tokens, err := auth.NewTokenService("test-secret-0123456789abcdef")
	if err != nil {
		panic(err)
	}
	return NewUserService(
		users,
		settings,
		auth.NewPasswordServiceForTest(bcrypt.MinCost),
		tokens,
		testLogger(),
	)
}

func TestRegister_ClosedRegistrationCreatesPendingAccount(t *testing.T) {
	users := newMockUserRepo()
	svc := newTestUserService(users, newMockSettingsRepo())

	result, err := svc.Register(context.Background(), "alice@example.com", "alice", "secret1")
	require.NoError(t, err)
	assert.True(t, result.RequiresApproval)
	assert.False(t, result.User.Approved)
	assert.Nil(t, result.User.ApprovedAt)
	assert.True(t, result.User.Active)
}

func TestRegister_OpenRegistrationApprovesImmediately(t *testing.T) {
	users := newMockUserRepo()
	settings := newMockSettingsRepo()
	settings.values[openRegistrationKey] = "true"
	svc := newTestUserService(users, settings)

	result, err := svc.Register(context.Background(), "alice@example.com", "alice", "secret1")
	require.NoError(t, err)
	assert.False(t, result.RequiresApproval)
	assert.True(t, result.User.Approved)
	assert.NotNil(t, result.User.ApprovedAt)
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestUserService(newMockUserRepo(), newMockSettingsRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "alice", "secret1")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Register(ctx, "alice@example.com", "", "secret1")
	assert.ErrorIs(t, err, apperror.ErrValidation)

	_, err = svc.Register(ctx, "alice@example.com", "alice", "short")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := newTestUserService(newMockUserRepo(), newMockSettingsRepo())
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice@example.com", "alice2", "secret1")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = svc.Register(ctx, "other@example.com", "alice", "secret1")
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func registerApproved(t *testing.T, svc *UserService, users *mockUserRepo, email, username string) *model.User {
	t.Helper()
	result, err := svc.Register(context.Background(), email, username, "secret1")
	require.NoError(t, err)
	u := users.users[result.User.ID]
	u.Approved = true
	return result.User
}

func TestLogin_Success(t *testing.T) {
	users := newMockUserRepo()
	svc := newTestUserService(users, newMockSettingsRepo())
	u := registerApproved(t, svc, users, "alice@example.com", "alice")

	result, err := svc.Login(context.Background(), "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, u.ID, result.User.ID)
	require.NotNil(t, users.users[u.ID].LastLoginAt)
}

func TestLogin_WrongCredentials(t *testing.T) {
	users := newMockUserRepo()
	svc := newTestUserService(users, newMockSettingsRepo())
	registerApproved(t, svc, users, "alice@example.com", "alice")
	ctx := context.Background()

	_, err := svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogin_PendingAndDisabledAccounts(t *testing.T) {
	users := newMockUserRepo()
	svc := newTestUserService(users, newMockSettingsRepo())
	ctx := context.Background()

	result, err := svc.Register(ctx, "alice@example.com", "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice@example.com", "secret1")
	assert.ErrorIs(t, err, apperror.ErrForbidden)

	users.users[result.User.ID].Approved = true
	users.users[result.User.ID].Active = false
	_, err = svc.Login(ctx, "alice@example.com", "secret1")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestUpdateMe_UsernameAndPassword(t *testing.T) {
	users := newMockUserRepo()
	svc := newTestUserService(users, newMockSettingsRepo())
	u := registerApproved(t, svc, users, "alice@example.com", "alice")
	registerApproved(t, svc, users, "bob@example.com", "bob")
	ctx := context.Background()

	_, err := svc.UpdateMe(ctx, u.ID, "bob", "")
	assert.ErrorIs(t, err, apperror.ErrConflict)

	got, err := svc.UpdateMe(ctx, u.ID, "alice2", "newsecret")
	require.NoError(t, err)
	assert.Equal(t, "alice2", got.Username)

	_, err = svc.Login(ctx, "alice@example.com", "newsecret")
	assert.NoError(t, err)
}

func TestLoginGitHub_CreatesAndReusesAccount(t *testing.T) {
	users := newMockUserRepo()
	settings := newMockSettingsRepo()
	settings.values[openRegistrationKey] = "true"
	svc := newTestUserService(users, settings)
	ctx := context.Background()

	gh := &auth.GitHubUser{ID: 42, Login: "octo", Email: "octo@example.com"}

	first, err := svc.LoginGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, "octo", first.User.Username)

	again, err := svc.LoginGitHub(ctx, gh)
	require.NoError(t, err)
	assert.Equal(t, first.User.ID, again.User.ID)
	assert.Len(t, users.users, 1)
}

func TestLoginGitHub_UsernameCollisionGetsSuffix(t *testing.T) {
	users := newMockUserRepo()
	settings := newMockSettingsRepo()
	settings.values[openRegistrationKey] = "true"
	svc := newTestUserService(users, settings)
	ctx := context.Background()

	registerApproved(t, svc, users, "octo@example.com", "octo")

	result, err := svc.LoginGitHub(ctx, &auth.GitHubUser{ID: 42, Login: "octo"})
	require.NoError(t, err)
	assert.Equal(t, "octo-42", result.User.Username)
}

func TestLoginGitHub_ClosedRegistrationPending(t *testing.T) {
	svc := newTestUserService(newMockUserRepo(), newMockSettingsRepo())

	_, err := svc.LoginGitHub(context.Background(), &auth.GitHubUser{ID: 42, Login: "octo"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestApprovedOwner(t *testing.T) {
	users := newMockUserRepo()
	svc := newTestUserService(users, newMockSettingsRepo())
	ctx := context.Background()

	assert.Empty(t, svc.ApprovedOwner(ctx, ""))
	assert.Empty(t, svc.ApprovedOwner(ctx, "missing"))

	result, err := svc.Register(ctx, "alice@example.com", "alice", "secret1")
	require.NoError(t, err)
	// Pending accounts publish anonymously.
	assert.Empty(t, svc.ApprovedOwner(ctx, result.User.ID))

	users.users[result.User.ID].Approved = true
	assert.Equal(t, result.User.ID, svc.ApprovedOwner(ctx, result.User.ID))
}
