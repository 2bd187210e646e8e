package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/auth"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

const minPasswordLength = 6

// openRegistrationKey is the system setting that controls whether new
// registrations are approved immediately.
const openRegistrationKey = "open_registration"

// UserService implements registration, login and profile management.
type UserService struct {
	users     repository.UserRepository
	settings  repository.SettingsRepository
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	settings repository.SettingsRepository,
	passwords *auth.PasswordService,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		settings:  settings,
		passwords: passwords,
		tokens:    tokens,
		logger:    logger,
	}
}

// RegisterResult reports whether the new account still needs admin
// approval before it can log in.
type RegisterResult struct {
	User             *model.User `json:"user"`
	RequiresApproval bool        `json:"requires_approval"`
}

// Register creates an account. When the open_registration setting is
// on the account is approved immediately; otherwise it stays pending
// until an admin approves it.
func (s *UserService) Register(ctx context.Context, email, username, password string) (*RegisterResult, error) {
	if email == "" {
		return nil, apperror.ValidationFailed("email", "email is required")
	}
	if username == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, apperror.Conflict("user", "email already registered")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return nil, apperror.Conflict("user", "username already taken")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	open, err := s.registrationOpen(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Active:       true,
		Approved:     open,
	}
	if open {
		now := time.Now().UTC()
		u.ApprovedAt = &now
	}

	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info("user registered",
		slog.String("user_id", u.ID),
		slog.Bool("requires_approval", !open))

	return &RegisterResult{User: u, RequiresApproval: !open}, nil
}

// LoginResult carries the issued access token and the account it
// belongs to.
type LoginResult struct {
	Token string      `json:"access_token"`
	User  *model.User `json:"user"`
}

// Login verifies credentials and issues a JWT. Wrong email and wrong
// password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if u.PasswordHash == "" || s.passwords.Verify(u.PasswordHash, password) != nil {
		return nil, apperror.Unauthorized("invalid credentials")
	}

	if !u.Active {
		return nil, apperror.Forbidden("account disabled")
	}
	if !u.Approved {
		return nil, apperror.Forbidden("account pending approval")
	}

	if err := s.users.UpdateLastLogin(ctx, u.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("updating last login", slog.String("user_id", u.ID), slog.String("error", err.Error()))
	}

	token, err := s.tokens.Generate(u.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Me returns the account for an authenticated user ID.
func (s *UserService) Me(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// UpdateMe changes the caller's username and/or password. Empty fields
// are left unchanged.
func (s *UserService) UpdateMe(ctx context.Context, userID, username, password string) (*model.User, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.Approved {
		return nil, apperror.Forbidden("account pending approval")
	}

	if username != "" && username != u.Username {
		if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
			return nil, apperror.Conflict("user", "username already taken")
		} else if !errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		u.Username = username
	}
	if password != "" {
		if len(password) < minPasswordLength {
			return nil, apperror.ValidationFailed("password",
				fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		}
		hash, err := s.passwords.Hash(password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
	}

	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginGitHub finds or creates the account for a GitHub profile and
// issues a JWT. New OAuth accounts follow the open_registration
// setting the same way password registration does, and a pending or
// disabled account cannot log in through OAuth either.
func (s *UserService) LoginGitHub(ctx context.Context, gh *auth.GitHubUser) (*LoginResult, error) {
	u, err := s.users.GetUserByGitHubID(ctx, gh.ID)
	if errors.Is(err, apperror.ErrNotFound) {
		u, err = s.createGitHubUser(ctx, gh)
	}
	if err != nil {
		return nil, err
	}

	if !u.Active {
		return nil, apperror.Forbidden("account disabled")
	}
	if !u.Approved {
		return nil, apperror.Forbidden("account pending approval")
	}

	if err := s.users.UpdateLastLogin(ctx, u.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("updating last login", slog.String("user_id", u.ID), slog.String("error", err.Error()))
	}

	token, err := s.tokens.Generate(u.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

func (s *UserService) createGitHubUser(ctx context.Context, gh *auth.GitHubUser) (*model.User, error) {
	open, err := s.registrationOpen(ctx)
	if err != nil {
		return nil, err
	}

	// The GitHub login may already be taken by a password account;
	// suffix with the numeric GitHub ID rather than failing the flow.
	username := gh.Login
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		username = fmt.Sprintf("%s-%d", gh.Login, gh.ID)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	u := &model.User{
		Email:    gh.Email,
		Username: username,
		GitHubID: gh.ID,
		Role:     model.RoleUser,
		Active:   true,
		Approved: open,
	}
	if open {
		now := time.Now().UTC()
		u.ApprovedAt = &now
	}

	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("github user created",
		slog.String("user_id", u.ID), slog.Int64("github_id", gh.ID))
	return u, nil
}

// ApprovedOwner resolves the owner ID for playlist creation: the user
// ID when the caller is an active approved account, empty (anonymous)
// otherwise. Anonymous requests pass straight through.
func (s *UserService) ApprovedOwner(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil || !u.Active || !u.Approved {
		return ""
	}
	return u.ID
}

func (s *UserService) registrationOpen(ctx context.Context) (bool, error) {
	v, err := s.settings.GetSetting(ctx, openRegistrationKey)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return v == "true", nil
}
