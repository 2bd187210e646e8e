package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3uprocessor/m3u-processor/internal/model"
)

// CheckStore lists playlists whose last availability probe is stale.
type CheckStore interface {
	ListCheckDue(ctx context.Context, now time.Time, maxAge time.Duration) ([]model.Playlist, error)
}

// Checker probes one playlist's source and records the outcome.
// Satisfied by *service.PlaylistService.
type Checker interface {
	RunCheck(ctx context.Context, p *model.Playlist) error
}

// Availability drives the periodic source reachability sweep.
type Availability struct {
	store    CheckStore
	service  Checker
	interval time.Duration // tick between sweeps
	maxAge   time.Duration // probe results older than this are stale
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewAvailability(store CheckStore, service Checker, interval, maxAge time.Duration, logger *slog.Logger) *Availability {
	return &Availability{
		store:    store,
		service:  service,
		interval: interval,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "availability")),
	}
}

// Start launches the background loop. Call once at boot.
func (a *Availability) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.run(loopCtx)

	a.logger.Info("availability scheduler started",
		slog.String("interval", a.interval.String()),
		slog.String("max_age", a.maxAge.String()))
}

// Stop ends the background loop.
func (a *Availability) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.logger.Info("availability scheduler stopped")
}

func (a *Availability) run(ctx context.Context) {
	a.RunOnce(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.RunOnce(ctx)
		}
	}
}

// RunOnce probes every stale playlist. Probe outcomes, good or bad,
// land on the playlist record; only persistence failures are logged
// here.
func (a *Availability) RunOnce(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now().UTC()
	due, err := a.store.ListCheckDue(ctx, now, a.maxAge)
	if err != nil {
		a.logger.Error("listing stale playlists", slog.String("error", err.Error()))
		return
	}
	if len(due) == 0 {
		return
	}

	a.logger.Debug("availability sweep", slog.Int("due", len(due)))

	for i := range due {
		if ctx.Err() != nil {
			return
		}
		p := &due[i]
		if err := a.service.RunCheck(ctx, p); err != nil {
			a.logger.Warn("recording availability check failed",
				slog.String("token", p.Token),
				slog.String("error", err.Error()))
		}
	}
}
