package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3uprocessor/m3u-processor/internal/apperror"
	"github.com/m3uprocessor/m3u-processor/internal/fetch"
	"github.com/m3uprocessor/m3u-processor/internal/m3u"
	"github.com/m3uprocessor/m3u-processor/internal/metrics"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
	"github.com/m3uprocessor/m3u-processor/internal/rules"
)

const (
	// MaxContentSize caps fetched and submitted playlist documents.
	MaxContentSize = 5 << 20

	// Auto-update interval bounds, in seconds.
	MinInterval     = 30
	MaxInterval     = 86400
	DefaultInterval = 3600

	// PreviewLength bounds the transformed-content excerpt returned by
	// Process so the response stays small for large playlists.
	PreviewLength = 5000

	checkHistoryLimit = 10
	boardLimit        = 50
)

// Fetcher retrieves playlist documents and probes source reachability.
// Satisfied by *fetch.Client; substituted in tests.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Probe(ctx context.Context, url string) fetch.ProbeResult
}

// PlaylistService implements playlist processing, publishing and the
// per-playlist refresh/check operations the schedulers drive.
type PlaylistService struct {
	repo    repository.PlaylistRepository
	fetcher Fetcher
	logger  *slog.Logger
}

func NewPlaylistService(repo repository.PlaylistRepository, fetcher Fetcher, logger *slog.Logger) *PlaylistService {
	return &PlaylistService{
		repo:    repo,
		fetcher: fetcher,
		logger:  logger,
	}
}

// ProcessResult is the outcome of a preview transformation.
type ProcessResult struct {
	Preview     string    `json:"preview"`
	Truncated   bool      `json:"truncated"`
	StatsBefore m3u.Stats `json:"stats_before"`
	StatsAfter  m3u.Stats `json:"stats_after"`
}

// Process applies a rule list to a document and returns a bounded
// preview plus before/after stats. Nothing is persisted.
func (s *PlaylistService) Process(content string, ruleList []model.Rule) (*ProcessResult, error) {
	if len(content) > MaxContentSize {
		return nil, apperror.ValidationFailed("content", fmt.Sprintf("content exceeds %d bytes", MaxContentSize))
	}

	transformed := rules.Apply(content, ruleList)

	preview := transformed
	truncated := false
	if len(preview) > PreviewLength {
		preview = preview[:PreviewLength]
		truncated = true
	}

	return &ProcessResult{
		Preview:     preview,
		Truncated:   truncated,
		StatsBefore: m3u.Compute(content),
		StatsAfter:  m3u.Compute(transformed),
	}, nil
}

// FetchPreview downloads a playlist from url and returns its content
// and stats, without creating anything.
func (s *PlaylistService) FetchPreview(ctx context.Context, url string) (string, m3u.Stats, error) {
	if url == "" {
		return "", m3u.Stats{}, apperror.ValidationFailed("url", "url is required")
	}
	content, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", m3u.Stats{}, err
	}
	return content, m3u.Compute(content), nil
}

// GenerateParams describes a playlist to publish.
type GenerateParams struct {
	Content            string
	Rules              []model.Rule
	SourceURL          string
	Name               string
	OwnerID            string // empty for anonymous
	AutoUpdate         bool
	AutoUpdateInterval int // 0 means DefaultInterval
	ShowOnBoard        bool
}

// Generate applies the rules to the submitted content and publishes the
// result under a fresh UUID token. When a source URL is present the
// first reachability probe is kicked off in the background so the
// playlist page has a status shortly after creation.
func (s *PlaylistService) Generate(ctx context.Context, params GenerateParams) (*model.Playlist, error) {
	if params.Content == "" {
		return nil, apperror.ValidationFailed("content", "content is required")
	}
	if len(params.Content) > MaxContentSize {
		return nil, apperror.ValidationFailed("content", fmt.Sprintf("content exceeds %d bytes", MaxContentSize))
	}

	interval := params.AutoUpdateInterval
	if interval == 0 {
		interval = DefaultInterval
	}
	// Bounds are enforced even when auto-update is off, so enabling it
	// later cannot activate an out-of-range interval.
	if interval < MinInterval || interval > MaxInterval {
		return nil, apperror.ValidationFailed("auto_update_interval",
			fmt.Sprintf("interval must be between %d and %d seconds", MinInterval, MaxInterval))
	}
	if params.AutoUpdate && params.SourceURL == "" {
		return nil, apperror.ValidationFailed("source_url", "auto-update requires a source URL")
	}

	token := uuid.NewString()
	name := params.Name
	if name == "" {
		name = "Playlist " + token[:8]
	}

	p := &model.Playlist{
		Token:              token,
		OwnerID:            params.OwnerID,
		CurrentContent:     rules.Apply(params.Content, params.Rules),
		OriginalContent:    params.Content,
		Rules:              params.Rules,
		SourceURL:          params.SourceURL,
		Name:               name,
		AutoUpdate:         params.AutoUpdate,
		AutoUpdateInterval: interval,
		ShowOnBoard:        params.ShowOnBoard,
		LastStatus:         model.StatusUnknown,
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	metrics.PlaylistsGenerated.Inc()

	if p.SourceURL != "" {
		go func() {
			probeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.RunCheck(probeCtx, p); err != nil {
				s.logger.Warn("initial availability check failed",
					slog.String("token", p.Token), slog.String("error", err.Error()))
			}
		}()
	}

	return p, nil
}

// Raw returns the published document for a token and counts the hit.
// Hit accounting is best-effort: a counter failure never blocks the
// download.
func (s *PlaylistService) Raw(ctx context.Context, token string) (string, error) {
	p, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return "", err
	}

	if err := s.repo.IncrementHits(ctx, token, time.Now().UTC()); err != nil {
		s.logger.Warn("hit counter update failed",
			slog.String("token", token), slog.String("error", err.Error()))
	}
	metrics.PlaylistHits.Inc()

	return p.CurrentContent, nil
}

// Info is the public playlist detail: metadata, stats and the most
// recent availability checks.
type Info struct {
	Playlist *model.Playlist     `json:"playlist"`
	Stats    m3u.Stats           `json:"stats"`
	History  []model.CheckRecord `json:"check_history"`
}

// Info returns public metadata for a playlist without counting a hit.
func (s *PlaylistService) Info(ctx context.Context, token string) (*Info, error) {
	p, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.CheckHistory(ctx, token, checkHistoryLimit)
	if err != nil {
		return nil, err
	}
	return &Info{
		Playlist: p,
		Stats:    m3u.Compute(p.CurrentContent),
		History:  history,
	}, nil
}

// ListByOwner returns the caller's playlists.
func (s *PlaylistService) ListByOwner(ctx context.Context, ownerID string) ([]model.Playlist, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// UpdateMeta edits owner-editable metadata. Ownership is checked
// against ownerID; a mismatch reports NotFound so foreign tokens are
// indistinguishable from absent ones.
func (s *PlaylistService) UpdateMeta(ctx context.Context, ownerID, token string, upd repository.PlaylistMetaUpdate) (*model.Playlist, error) {
	p, err := s.ownedPlaylist(ctx, ownerID, token)
	if err != nil {
		return nil, err
	}

	if upd.AutoUpdateInterval != nil {
		if *upd.AutoUpdateInterval < MinInterval || *upd.AutoUpdateInterval > MaxInterval {
			return nil, apperror.ValidationFailed("auto_update_interval",
				fmt.Sprintf("interval must be between %d and %d seconds", MinInterval, MaxInterval))
		}
	}
	enablingAuto := upd.AutoUpdate != nil && *upd.AutoUpdate
	if enablingAuto && p.SourceURL == "" {
		return nil, apperror.ValidationFailed("auto_update", "auto-update requires a source URL")
	}

	if err := s.repo.UpdateMeta(ctx, token, upd); err != nil {
		return nil, err
	}
	return s.repo.GetByToken(ctx, token)
}

// DeleteOwned removes one of the caller's playlists.
func (s *PlaylistService) DeleteOwned(ctx context.Context, ownerID, token string) error {
	if _, err := s.ownedPlaylist(ctx, ownerID, token); err != nil {
		return err
	}
	return s.repo.Delete(ctx, token)
}

func (s *PlaylistService) ownedPlaylist(ctx context.Context, ownerID, token string) (*model.Playlist, error) {
	p, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == "" || p.OwnerID != ownerID {
		return nil, apperror.NotFound("playlist", token)
	}
	return p, nil
}

// ManualRefresh re-fetches a playlist's source on demand. Knowing the
// token is the capability, same as for Raw. Unlike the scheduled path
// the caller sees the failure directly, but the attempt is recorded
// identically either way.
func (s *PlaylistService) ManualRefresh(ctx context.Context, token string) (*model.Playlist, error) {
	p, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.SourceURL == "" {
		return nil, apperror.ValidationFailed("source_url", "playlist has no source URL")
	}
	if err := s.RefreshOne(ctx, p); err != nil {
		return nil, err
	}
	return s.repo.GetByToken(ctx, token)
}

// RefreshOne performs one refresh attempt for p: fetch the source,
// apply the stored rules and persist the transformed result. On
// failure the error message and attempt time are recorded instead, so
// a dead source is retried at the playlist's interval rather than
// every scheduler tick.
func (s *PlaylistService) RefreshOne(ctx context.Context, p *model.Playlist) error {
	now := time.Now().UTC()
	timer := prometheus.NewTimer(metrics.RefreshDuration)
	defer timer.ObserveDuration()

	fetched, err := s.fetcher.Fetch(ctx, p.SourceURL)
	if err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		if recErr := s.repo.SetRefreshResult(ctx, p.Token, nil, now, err.Error()); recErr != nil {
			s.logger.Error("recording refresh failure",
				slog.String("token", p.Token), slog.String("error", recErr.Error()))
		}
		return err
	}

	content := rules.Apply(fetched, p.Rules)
	if err := s.repo.SetRefreshResult(ctx, p.Token, &content, now, ""); err != nil {
		metrics.RefreshTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.RefreshTotal.WithLabelValues("ok").Inc()

	s.logger.Info("playlist refreshed",
		slog.String("token", p.Token),
		slog.Int("size", len(content)))
	return nil
}

// ManualCheck probes a playlist's source on demand and returns the
// recorded result.
func (s *PlaylistService) ManualCheck(ctx context.Context, token string) (*model.CheckRecord, error) {
	p, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.SourceURL == "" {
		return nil, apperror.ValidationFailed("source_url", "playlist has no source URL")
	}
	if err := s.RunCheck(ctx, p); err != nil {
		return nil, err
	}
	history, err := s.repo.CheckHistory(ctx, token, 1)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, errors.New("check recorded no history")
	}
	return &history[0], nil
}

// RunCheck probes p's source URL and records the outcome. The probe
// itself never fails; only persistence can return an error.
func (s *PlaylistService) RunCheck(ctx context.Context, p *model.Playlist) error {
	result := s.fetcher.Probe(ctx, p.SourceURL)
	metrics.CheckTotal.WithLabelValues(string(result.Status)).Inc()

	return s.repo.SetCheckResult(ctx, model.CheckRecord{
		Token:     p.Token,
		CheckedAt: time.Now().UTC(),
		Status:    result.Status,
		HTTPCode:  result.HTTPCode,
		Error:     result.Error,
	})
}

// Board returns the public leaderboard for a hit-aggregation period.
func (s *PlaylistService) Board(ctx context.Context, period repository.BoardPeriod) ([]model.BoardEntry, error) {
	switch period {
	case repository.BoardTotal, repository.Board24h, repository.Board7d, repository.Board30d:
	case "":
		period = repository.BoardTotal
	default:
		return nil, apperror.ValidationFailed("period", "unknown board period")
	}
	return s.repo.Board(ctx, period, boardLimit)
}
