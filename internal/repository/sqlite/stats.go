package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
)

var _ repository.StatsRepository = (*DB)(nil)

// AdminStats aggregates the dashboard counters in a handful of simple
// queries. All stored timestamps are UTC, so comparing them against a
// bound UTC cutoff is well defined.
func (db *DB) AdminStats(ctx context.Context, now time.Time) (model.AdminStats, error) {
	var s model.AdminStats
	cutoff := now.UTC().Add(-24 * time.Hour)

	counts := []struct {
		dest  any
		query string
		args  []any
	}{
		{&s.TotalUsers, `SELECT COUNT(*) FROM users`, nil},
		{&s.ApprovedUsers, `SELECT COUNT(*) FROM users WHERE approved = 1`, nil},
		{&s.PendingUsers, `SELECT COUNT(*) FROM users WHERE approved = 0`, nil},
		{&s.TotalPlaylists, `SELECT COUNT(*) FROM playlists`, nil},
		{&s.TotalHits, `SELECT COALESCE(SUM(total_hits), 0) FROM playlists`, nil},
		{&s.Users24h, `SELECT COUNT(*) FROM users WHERE created_at >= ?`, []any{cutoff}},
		{&s.Playlists24h, `SELECT COUNT(*) FROM playlists WHERE created_at >= ?`, []any{cutoff}},
		{&s.Hits24h, `SELECT COALESCE(SUM(hits), 0) FROM daily_hits WHERE day >= ?`, []any{dayString(cutoff)}},
	}
	for _, c := range counts {
		if err := db.conn.QueryRowContext(ctx, c.query, c.args...).Scan(c.dest); err != nil {
			return model.AdminStats{}, fmt.Errorf("sqlite: collecting admin stats: %w", err)
		}
	}

	open, err := db.GetSetting(ctx, "open_registration")
	if err == nil {
		s.OpenRegistration = open == "true"
	}
	return s, nil
}
