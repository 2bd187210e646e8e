package model

import "time"

// Role distinguishes regular accounts from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents a registered account.
//
// Accounts can be created two ways: email/password registration or
// GitHub OAuth (GitHubID != 0). Either way the account must be approved
// before it can own playlists — until then, anything the user publishes
// is recorded as anonymous.
//
// We generate our own internal string ID (xid) rather than reusing an
// email or GitHub's numbering as the primary key.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // bcrypt hash; empty for OAuth-only accounts
	GitHubID     int64  `json:"-"` // 0 when the account has no GitHub identity
	Role         Role   `json:"role"`
	Active       bool   `json:"is_active"`
	Approved     bool   `json:"is_approved"`

	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ApprovedBy  string     `json:"-"` // ID of the approving admin, empty if auto-approved
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
