// Package repository declares the storage contracts consumed by the
// services and schedulers. Implementations live in subpackages; callers
// program against these interfaces so tests can substitute in-memory
// fakes.
package repository

import (
	"context"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/model"
)

// PlaylistMetaUpdate carries owner-editable playlist metadata. Nil
// fields are left unchanged.
type PlaylistMetaUpdate struct {
	Name               *string
	ShowOnBoard        *bool
	AutoUpdate         *bool
	AutoUpdateInterval *int
}

// BoardPeriod selects the hit-aggregation window for the leaderboard.
type BoardPeriod string

const (
	BoardTotal BoardPeriod = "total"
	Board24h   BoardPeriod = "24h"
	Board7d    BoardPeriod = "7d"
	Board30d   BoardPeriod = "30d"
)

// PlaylistRepository is the durable store for published playlists, their
// reachability history and their hit counters.
//
// Writes against a single record are atomic: SetCheckResult persists the
// playlist's probe fields and the history row together, and concurrent
// refreshes of the same token resolve to one writer's complete outcome,
// never a mixture.
type PlaylistRepository interface {
	Create(ctx context.Context, p *model.Playlist) error
	GetByToken(ctx context.Context, token string) (*model.Playlist, error)
	ListByOwner(ctx context.Context, ownerID string) ([]model.Playlist, error)
	ListAll(ctx context.Context, search string) ([]model.Playlist, error)
	Delete(ctx context.Context, token string) error

	// UpdateMeta persists owner-editable fields only; scheduler-owned
	// fields are untouched.
	UpdateMeta(ctx context.Context, token string, upd PlaylistMetaUpdate) error

	// SetRefreshResult records one refresh attempt. content is non-nil
	// on success; refreshErr is non-empty on failure. The attempt
	// timestamp is persisted in both cases.
	SetRefreshResult(ctx context.Context, token string, content *string, at time.Time, refreshErr string) error

	// SetCheckResult updates the playlist's last-check fields and
	// appends rec to its history in one transaction.
	SetCheckResult(ctx context.Context, rec model.CheckRecord) error
	CheckHistory(ctx context.Context, token string, limit int) ([]model.CheckRecord, error)

	// ListRefreshDue returns playlists eligible for a content refresh
	// at now: auto-update enabled, a source URL set, and the configured
	// interval elapsed since the last attempt (or never attempted).
	ListRefreshDue(ctx context.Context, now time.Time) ([]model.Playlist, error)

	// ListCheckDue returns playlists with a source URL whose last
	// reachability probe is older than maxAge (or missing).
	ListCheckDue(ctx context.Context, now time.Time, maxAge time.Duration) ([]model.Playlist, error)

	// IncrementHits bumps the total and per-day counters for token in
	// one transaction. day is truncated to a calendar date.
	IncrementHits(ctx context.Context, token string, day time.Time) error
	Board(ctx context.Context, period BoardPeriod, limit int) ([]model.BoardEntry, error)
}

// UserListOptions filters the admin user listing.
type UserListOptions struct {
	PendingOnly bool
	Search      string // matches email or username, substring
}

// UserRepository stores accounts. Create and Update return
// apperror.Conflict on duplicate email or username.
type UserRepository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	ListUsers(ctx context.Context, opts UserListOptions) ([]model.User, error)
	UpdateUser(ctx context.Context, u *model.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	DeleteUser(ctx context.Context, id string) error

	// CountAdminsExcept counts admin accounts other than excludeID.
	// Used to keep the last admin from being demoted or deleted.
	CountAdminsExcept(ctx context.Context, excludeID string) (int, error)
}

// SettingsRepository is a small key/value store for system settings
// such as whether registration is open.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error) // apperror.NotFound when unset
	SetSetting(ctx context.Context, key, value string) error
}

// StatsRepository produces the aggregate counters for the admin
// dashboard.
type StatsRepository interface {
	AdminStats(ctx context.Context, now time.Time) (model.AdminStats, error)
}
