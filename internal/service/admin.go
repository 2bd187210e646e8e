package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

// AdminService implements user administration, the system dashboard
// and moderation of published playlists. Every method takes the acting
// user's ID and verifies the admin role itself, so authorization does
// not depend on the transport layer.
type AdminService struct {
	users     repository.UserRepository
	playlists repository.PlaylistRepository
	settings  repository.SettingsRepository
	stats     repository.StatsRepository
	logger    *slog.Logger
}

func NewAdminService(
	users repository.UserRepository,
	playlists repository.PlaylistRepository,
	settings repository.SettingsRepository,
	stats repository.StatsRepository,
	logger *slog.Logger,
) *AdminService {
	return &AdminService{
		users:     users,
		playlists: playlists,
		settings:  settings,
		stats:     stats,
		logger:    logger,
	}
}

// requireAdmin loads the acting user and verifies the admin role.
func (s *AdminService) requireAdmin(ctx context.Context, actorID string) (*model.User, error) {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Forbidden("admin access required")
		}
		return nil, err
	}
	if !actor.IsAdmin() || !actor.Active {
		return nil, apperror.Forbidden("admin access required")
	}
	return actor, nil
}

// Stats returns the dashboard counters.
func (s *AdminService) Stats(ctx context.Context, actorID string) (model.AdminStats, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return model.AdminStats{}, err
	}
	return s.stats.AdminStats(ctx, time.Now().UTC())
}

// ListUsers returns accounts, optionally filtered to pending ones or
// by an email/username substring.
func (s *AdminService) ListUsers(ctx context.Context, actorID string, opts repository.UserListOptions) ([]model.User, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.users.ListUsers(ctx, opts)
}

// UserUpdate carries the admin-editable account fields. Nil fields are
// left unchanged.
type UserUpdate struct {
	Role     *model.Role
	Active   *bool
	Approved *bool
}

// UpdateUser edits an account. Demoting the last remaining admin is
// refused; setting Approved records who approved and when.
func (s *AdminService) UpdateUser(ctx context.Context, actorID, userID string, upd UserUpdate) (*model.User, error) {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return nil, err
	}

	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Role != nil {
		if *upd.Role != model.RoleUser && *upd.Role != model.RoleAdmin {
			return nil, apperror.ValidationFailed("role", "role must be user or admin")
		}
		if target.IsAdmin() && *upd.Role == model.RoleUser {
			n, err := s.users.CountAdminsExcept(ctx, target.ID)
			if err != nil {
				return nil, err
			}
			if n == 0 {
				return nil, apperror.ValidationFailed("role", "cannot demote the last admin")
			}
		}
		target.Role = *upd.Role
	}
	if upd.Active != nil {
		target.Active = *upd.Active
	}
	if upd.Approved != nil {
		target.Approved = *upd.Approved
		if *upd.Approved {
			now := time.Now().UTC()
			target.ApprovedAt = &now
			target.ApprovedBy = actor.ID
		}
	}

	if err := s.users.UpdateUser(ctx, target); err != nil {
		return nil, err
	}
	s.logger.Info("user updated by admin",
		slog.String("user_id", target.ID), slog.String("admin_id", actor.ID))
	return target, nil
}

// Approve marks a pending account as approved. Already-approved
// accounts report NotFound, matching the lookup for absent ones.
func (s *AdminService) Approve(ctx context.Context, actorID, userID string) error {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return err
	}

	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.Approved {
		return apperror.NotFound("pending user", userID)
	}

	now := time.Now().UTC()
	target.Approved = true
	target.ApprovedAt = &now
	target.ApprovedBy = actor.ID

	if err := s.users.UpdateUser(ctx, target); err != nil {
		return err
	}
	s.logger.Info("user approved",
		slog.String("user_id", target.ID), slog.String("admin_id", actor.ID))
	return nil
}

// Reject deletes a pending account.
func (s *AdminService) Reject(ctx context.Context, actorID, userID string) error {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}

	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.Approved {
		return apperror.NotFound("pending user", userID)
	}
	return s.users.DeleteUser(ctx, userID)
}

// DeleteUser removes an account. Admins cannot delete themselves or
// the last remaining admin.
func (s *AdminService) DeleteUser(ctx context.Context, actorID, userID string) error {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if userID == actor.ID {
		return apperror.ValidationFailed("user_id", "cannot delete yourself")
	}

	target, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if target.IsAdmin() {
		n, err := s.users.CountAdminsExcept(ctx, target.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.ValidationFailed("user_id", "cannot delete the last admin")
		}
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted",
		slog.String("user_id", userID), slog.String("admin_id", actor.ID))
	return nil
}

// ListPlaylists returns all playlists, optionally filtered by a
// name/token substring.
func (s *AdminService) ListPlaylists(ctx context.Context, actorID, search string) ([]model.Playlist, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.playlists.ListAll(ctx, search)
}

// DeletePlaylist removes any playlist regardless of owner.
func (s *AdminService) DeletePlaylist(ctx context.Context, actorID, token string) error {
	actor, err := s.requireAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if err := s.playlists.Delete(ctx, token); err != nil {
		return err
	}
	s.logger.Info("playlist deleted by admin",
		slog.String("token", token), slog.String("admin_id", actor.ID))
	return nil
}

// Settings returns the system settings exposed to admins.
func (s *AdminService) Settings(ctx context.Context, actorID string) (map[string]bool, error) {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	v, err := s.settings.GetSetting(ctx, openRegistrationKey)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	return map[string]bool{openRegistrationKey: v == "true"}, nil
}

// SetOpenRegistration toggles whether new registrations are approved
// immediately.
func (s *AdminService) SetOpenRegistration(ctx context.Context, actorID string, open bool) error {
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	value := "false"
	if open {
		value = "true"
	}
	return s.settings.SetSetting(ctx, openRegistrationKey, value)
}
