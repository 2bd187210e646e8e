package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, email, username, password_hash, github_id, role, active,
	approved, approved_at, approved_by, created_at, last_login_at`

// CreateUser inserts a new user, generating the internal ID and creation
// timestamp. Duplicate email/username/github_id surfaces as a Conflict.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	u.ID = xid.New().String()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Email,
		u.Username,
		u.PasswordHash,
		u.GitHubID,
		string(u.Role),
		u.Active,
		u.Approved,
		nullTime(u.ApprovedAt),
		nullString(u.ApprovedBy),
		u.CreatedAt.UTC(),
		nullTime(u.LastLoginAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email or username already in use")
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, `id = ?`, id)
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, `email = ?`, email)
}

func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, `username = ?`, username)
}

func (db *DB) GetUserByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return db.getUser(ctx, `github_id = ? AND github_id != 0`, githubID)
}

func (db *DB) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user: %w", err)
	}
	return u, nil
}

// List returns users matching opts, newest first.
func (db *DB) ListUsers(ctx context.Context, opts repository.UserListOptions) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var (
		conds []string
		args  []any
	)
	if opts.PendingOnly {
		conds = append(conds, `approved = 0`)
	}
	if opts.Search != "" {
		conds = append(conds, `(email LIKE ? OR username LIKE ?)`)
		like := "%" + opts.Search + "%"
		args = append(args, like, like)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}

// Update persists the user's mutable fields.
func (db *DB) UpdateUser(ctx context.Context, u *model.User) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET email = ?, username = ?, password_hash = ?, github_id = ?, role = ?,
		     active = ?, approved = ?, approved_at = ?, approved_by = ?
		 WHERE id = ?`,
		u.Email,
		u.Username,
		u.PasswordHash,
		u.GitHubID,
		string(u.Role),
		u.Active,
		u.Approved,
		nullTime(u.ApprovedAt),
		nullString(u.ApprovedBy),
		u.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email or username already in use")
		}
		return fmt.Errorf("sqlite: updating user %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", u.ID)
	}
	return nil
}

func (db *DB) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: updating last login for %s: %w", id, err)
	}
	return nil
}

func (db *DB) DeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (db *DB) CountAdminsExcept(ctx context.Context, excludeID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE role = ? AND id != ?`,
		string(model.RoleAdmin), excludeID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting admins: %w", err)
	}
	return count, nil
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u           model.User
		role        string
		approvedAt  sql.NullTime
		approvedBy  sql.NullString
		lastLoginAt sql.NullTime
	)

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.GitHubID,
		&role,
		&u.Active,
		&u.Approved,
		&approvedAt,
		&approvedBy,
		&u.CreatedAt,
		&lastLoginAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = model.Role(role)
	u.ApprovedBy = approvedBy.String
	if approvedAt.Valid {
		t := approvedAt.Time
		u.ApprovedAt = &t
	}
	if lastLoginAt.Valid {
		t := lastLoginAt.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
