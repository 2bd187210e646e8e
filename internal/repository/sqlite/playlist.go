package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

var _ repository.PlaylistRepository = (*DB)(nil)

const playlistColumns = `token, owner_id, current_content, original_content, rules_json,
	source_url, name, auto_update, auto_update_interval, last_update_at, last_update_error,
	total_hits, show_on_board, last_status, last_check_at, last_check_error, created_at`

// Create inserts a new playlist. The caller supplies the token; the
// repository fills CreatedAt when unset. All timestamps are stored in
// UTC so that SQL-side comparisons against bound time values stay
// consistent.
func (db *DB) Create(ctx context.Context, p *model.Playlist) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.LastStatus == "" {
		p.LastStatus = model.StatusUnknown
	}

	rulesJSON, err := marshalRules(p.Rules)
	if err != nil {
		return fmt.Errorf("sqlite: encoding rules for playlist %s: %w", p.Token, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO playlists (`+playlistColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Token,
		nullString(p.OwnerID),
		p.CurrentContent,
		p.OriginalContent,
		rulesJSON,
		p.SourceURL,
		p.Name,
		p.AutoUpdate,
		p.AutoUpdateInterval,
		nullTime(p.LastUpdateAt),
		p.LastUpdateError,
		p.TotalHits,
		p.ShowOnBoard,
		string(p.LastStatus),
		nullTime(p.LastCheckAt),
		p.LastCheckError,
		p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating playlist: %w", err)
	}
	return nil
}

// GetByToken retrieves a single playlist, including its content and
// rule list.
func (db *DB) GetByToken(ctx context.Context, token string) (*model.Playlist, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists WHERE token = ?`, token)

	p, err := scanPlaylist(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("playlist", token)
		}
		return nil, fmt.Errorf("sqlite: getting playlist %s: %w", token, err)
	}
	return p, nil
}

// ListByOwner returns the owner's playlists, newest first.
func (db *DB) ListByOwner(ctx context.Context, ownerID string) ([]model.Playlist, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists
		 WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing playlists for owner %s: %w", ownerID, err)
	}
	return collectPlaylists(rows)
}

// ListAll returns every playlist, optionally filtered by a substring
// match on name or token. Admin listing only.
func (db *DB) ListAll(ctx context.Context, search string) ([]model.Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists`
	var args []any
	if search != "" {
		query += ` WHERE name LIKE ? OR token LIKE ?`
		like := "%" + search + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing playlists: %w", err)
	}
	return collectPlaylists(rows)
}

// Delete removes a playlist. Check history and hit counters cascade.
func (db *DB) Delete(ctx context.Context, token string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM playlists WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("sqlite: deleting playlist %s: %w", token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("playlist", token)
	}
	return nil
}

// UpdateMeta applies the non-nil fields of upd. Column names are fixed
// strings here, so assembling the SET clause dynamically is safe.
func (db *DB) UpdateMeta(ctx context.Context, token string, upd repository.PlaylistMetaUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.ShowOnBoard != nil {
		sets = append(sets, "show_on_board = ?")
		args = append(args, *upd.ShowOnBoard)
	}
	if upd.AutoUpdate != nil {
		sets = append(sets, "auto_update = ?")
		args = append(args, *upd.AutoUpdate)
	}
	if upd.AutoUpdateInterval != nil {
		sets = append(sets, "auto_update_interval = ?")
		args = append(args, *upd.AutoUpdateInterval)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, token)
	res, err := db.conn.ExecContext(ctx,
		`UPDATE playlists SET `+strings.Join(sets, ", ")+` WHERE token = ?`, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating playlist %s: %w", token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("playlist", token)
	}
	return nil
}

// SetRefreshResult persists the outcome of one refresh attempt. The
// attempt timestamp advances whether the fetch succeeded or not; the
// content column is only touched on success.
func (db *DB) SetRefreshResult(ctx context.Context, token string, content *string, at time.Time, refreshErr string) error {
	var (
		res sql.Result
		err error
	)
	if content != nil {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE playlists
			 SET current_content = ?, last_update_at = ?, last_update_error = ''
			 WHERE token = ?`,
			*content, at.UTC(), token)
	} else {
		res, err = db.conn.ExecContext(ctx,
			`UPDATE playlists
			 SET last_update_at = ?, last_update_error = ?
			 WHERE token = ?`,
			at.UTC(), refreshErr, token)
	}
	if err != nil {
		return fmt.Errorf("sqlite: recording refresh for playlist %s: %w", token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("playlist", token)
	}
	return nil
}

// SetCheckResult writes the playlist's probe fields and the history row
// in one transaction, so a reader never observes one without the other.
func (db *DB) SetCheckResult(ctx context.Context, rec model.CheckRecord) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning check transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE playlists
		 SET last_status = ?, last_check_at = ?, last_check_error = ?
		 WHERE token = ?`,
		string(rec.Status), rec.CheckedAt.UTC(), rec.Error, rec.Token)
	if err != nil {
		return fmt.Errorf("sqlite: recording check for playlist %s: %w", rec.Token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("playlist", rec.Token)
	}

	var httpCode any
	if rec.HTTPCode != nil {
		httpCode = *rec.HTTPCode
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO check_history (token, checked_at, status, http_code, error)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.Token, rec.CheckedAt.UTC(), string(rec.Status), httpCode, rec.Error)
	if err != nil {
		return fmt.Errorf("sqlite: appending check history for playlist %s: %w", rec.Token, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing check for playlist %s: %w", rec.Token, err)
	}
	return nil
}

// CheckHistory returns the most recent probe records, newest first.
func (db *DB) CheckHistory(ctx context.Context, token string, limit int) ([]model.CheckRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT token, checked_at, status, http_code, error
		 FROM check_history
		 WHERE token = ?
		 ORDER BY checked_at DESC, id DESC
		 LIMIT ?`,
		token, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing check history for %s: %w", token, err)
	}
	defer rows.Close()

	records := make([]model.CheckRecord, 0, limit)
	for rows.Next() {
		var (
			rec      model.CheckRecord
			status   string
			httpCode sql.NullInt64
			checked  time.Time
		)
		if err := rows.Scan(&rec.Token, &checked, &status, &httpCode, &rec.Error); err != nil {
			return nil, fmt.Errorf("sqlite: scanning check history: %w", err)
		}
		rec.CheckedAt = checked
		rec.Status = model.CheckStatus(status)
		if httpCode.Valid {
			code := int(httpCode.Int64)
			rec.HTTPCode = &code
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating check history: %w", err)
	}
	return records, nil
}

// ListRefreshDue returns playlists eligible for a refresh at now.
//
// SQL narrows to auto-update playlists with a source URL; the interval
// comparison happens in Go because the per-row interval arithmetic is
// not expressible portably against driver-formatted DATETIME text. The
// candidate set is small — only auto-update playlists.
func (db *DB) ListRefreshDue(ctx context.Context, now time.Time) ([]model.Playlist, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists
		 WHERE auto_update = 1 AND source_url != ''`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing refresh candidates: %w", err)
	}
	candidates, err := collectPlaylists(rows)
	if err != nil {
		return nil, err
	}

	due := candidates[:0]
	for _, p := range candidates {
		if p.LastUpdateAt == nil || now.Sub(*p.LastUpdateAt) >= time.Duration(p.AutoUpdateInterval)*time.Second {
			due = append(due, p)
		}
	}
	return due, nil
}

// ListCheckDue returns playlists with a source URL whose last probe is
// missing or older than maxAge.
func (db *DB) ListCheckDue(ctx context.Context, now time.Time, maxAge time.Duration) ([]model.Playlist, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists WHERE source_url != ''`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing check candidates: %w", err)
	}
	candidates, err := collectPlaylists(rows)
	if err != nil {
		return nil, err
	}

	due := candidates[:0]
	for _, p := range candidates {
		if p.LastCheckAt == nil || now.Sub(*p.LastCheckAt) >= maxAge {
			due = append(due, p)
		}
	}
	return due, nil
}

// IncrementHits bumps the playlist's lifetime counter and the per-day
// counter together.
func (db *DB) IncrementHits(ctx context.Context, token string, day time.Time) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning hits transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE playlists SET total_hits = total_hits + 1 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("sqlite: incrementing hits for %s: %w", token, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("playlist", token)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO daily_hits (token, day, hits) VALUES (?, ?, 1)
		 ON CONFLICT (token, day) DO UPDATE SET hits = hits + 1`,
		token, dayString(day))
	if err != nil {
		return fmt.Errorf("sqlite: incrementing daily hits for %s: %w", token, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing hits for %s: %w", token, err)
	}
	return nil
}

// Board returns the opted-in playlists ranked by hits over the period.
func (db *DB) Board(ctx context.Context, period repository.BoardPeriod, limit int) ([]model.BoardEntry, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if period == repository.BoardTotal || period == "" {
		rows, err = db.conn.QueryContext(ctx,
			`SELECT token, name, last_status, total_hits
			 FROM playlists
			 WHERE show_on_board = 1
			 ORDER BY total_hits DESC
			 LIMIT ?`, limit)
	} else {
		var days int
		switch period {
		case repository.Board24h:
			days = 1
		case repository.Board7d:
			days = 7
		case repository.Board30d:
			days = 30
		default:
			return nil, apperror.ValidationFailed("period", fmt.Sprintf("unknown board period %q", period))
		}
		cutoff := dayString(time.Now().UTC().AddDate(0, 0, -days))
		rows, err = db.conn.QueryContext(ctx,
			`SELECT p.token, p.name, p.last_status, COALESCE(SUM(d.hits), 0) AS period_hits
			 FROM playlists p
			 LEFT JOIN daily_hits d ON d.token = p.token AND d.day >= ?
			 WHERE p.show_on_board = 1
			 GROUP BY p.token, p.name, p.last_status
			 ORDER BY period_hits DESC
			 LIMIT ?`, cutoff, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying board: %w", err)
	}
	defer rows.Close()

	entries := make([]model.BoardEntry, 0, limit)
	for rows.Next() {
		var (
			e      model.BoardEntry
			status string
		)
		if err := rows.Scan(&e.Token, &e.Name, &status, &e.PeriodHits); err != nil {
			return nil, fmt.Errorf("sqlite: scanning board entry: %w", err)
		}
		e.LastStatus = model.CheckStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating board entries: %w", err)
	}
	return entries, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlaylist(row rowScanner) (*model.Playlist, error) {
	var (
		p            model.Playlist
		ownerID      sql.NullString
		rulesJSON    sql.NullString
		lastUpdateAt sql.NullTime
		lastCheckAt  sql.NullTime
		status       string
	)

	err := row.Scan(
		&p.Token,
		&ownerID,
		&p.CurrentContent,
		&p.OriginalContent,
		&rulesJSON,
		&p.SourceURL,
		&p.Name,
		&p.AutoUpdate,
		&p.AutoUpdateInterval,
		&lastUpdateAt,
		&p.LastUpdateError,
		&p.TotalHits,
		&p.ShowOnBoard,
		&status,
		&lastCheckAt,
		&p.LastCheckError,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.OwnerID = ownerID.String
	p.LastStatus = model.CheckStatus(status)
	if lastUpdateAt.Valid {
		t := lastUpdateAt.Time
		p.LastUpdateAt = &t
	}
	if lastCheckAt.Valid {
		t := lastCheckAt.Time
		p.LastCheckAt = &t
	}
	if rulesJSON.Valid && rulesJSON.String != "" {
		if err := json.Unmarshal([]byte(rulesJSON.String), &p.Rules); err != nil {
			return nil, fmt.Errorf("decoding rules for playlist %s: %w", p.Token, err)
		}
	}
	return &p, nil
}

func collectPlaylists(rows *sql.Rows) ([]model.Playlist, error) {
	defer rows.Close()

	var playlists []model.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning playlist: %w", err)
		}
		playlists = append(playlists, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating playlists: %w", err)
	}
	return playlists, nil
}

func marshalRules(rules []model.Rule) (any, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(rules)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func dayString(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
