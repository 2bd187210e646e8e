// Package scheduler runs the background loops that keep playlists
// fresh: the content refresher and the source availability checker.
// Each loop is a goroutine on a ticker, started once at boot and
// stopped by cancelling its context.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/model"
)

// RefreshStore lists playlists whose refresh interval has elapsed.
type RefreshStore interface {
	ListRefreshDue(ctx context.Context, now time.Time) ([]model.Playlist, error)
}

// Refresher performs one refresh attempt. Satisfied by
// *service.PlaylistService.
type Refresher interface {
	RefreshOne(ctx context.Context, p *model.Playlist) error
}

// Refresh drives the auto-update cycle: every tick it asks the store
// for due playlists and refreshes each one.
type Refresh struct {
	store    RefreshStore
	service  Refresher
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // serializes RunOnce, the loop and manual callers
	cancel context.CancelFunc
}

func NewRefresh(store RefreshStore, service Refresher, interval time.Duration, logger *slog.Logger) *Refresh {
	return &Refresh{
		store:    store,
		service:  service,
		interval: interval,
		logger:   logger.With(slog.String("component", "refresh")),
	}
}

// Start launches the background loop. Call once at boot.
func (r *Refresh) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.run(loopCtx)

	r.logger.Info("refresh scheduler started",
		slog.String("interval", r.interval.String()))
}

// Stop ends the background loop.
func (r *Refresh) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.logger.Info("refresh scheduler stopped")
}

func (r *Refresh) run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce refreshes every due playlist. A failing playlist never stops
// the sweep; its error is recorded on the playlist itself and the loop
// moves on.
func (r *Refresh) RunOnce(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	due, err := r.store.ListRefreshDue(ctx, now)
	if err != nil {
		r.logger.Error("listing due playlists", slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	r.logger.Debug("refresh sweep", slog.Int("due", len(due)))

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		p := &due[i]
		if err := r.service.RefreshOne(ctx, p); err != nil {
			r.logger.Warn("playlist refresh failed",
				slog.String("token", p.Token),
				slog.String("source", p.SourceURL),
				slog.String("error", err.Error()))
		}
	}
}
