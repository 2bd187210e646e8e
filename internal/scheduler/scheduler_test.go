package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3uprocessor/m3u-processor/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubStore struct {
	mu       sync.Mutex
	due      []model.Playlist
	listErr  error
	listCall int
}

func (s *stubStore) ListRefreshDue(_ context.Context, _ time.Time) ([]model.Playlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCall++
	return s.due, s.listErr
}

func (s *stubStore) ListCheckDue(_ context.Context, _ time.Time, _ time.Duration) ([]model.Playlist, error) {
	return s.ListRefreshDue(context.Background(), time.Time{})
}

func (s *stubStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCall
}

type stubWorker struct {
	mu     sync.Mutex
	tokens []string
	fail   map[string]error
}

func (w *stubWorker) record(token string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens = append(w.tokens, token)
	return w.fail[token]
}

func (w *stubWorker) RefreshOne(_ context.Context, p *model.Playlist) error {
	return w.record(p.Token)
}

func (w *stubWorker) RunCheck(_ context.Context, p *model.Playlist) error {
	return w.record(p.Token)
}

func (w *stubWorker) seen() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.tokens...)
}

func TestRefreshRunOnce_ProcessesAllDue(t *testing.T) {
	store := &stubStore{due: []model.Playlist{{Token: "a"}, {Token: "b"}, {Token: "c"}}}
	worker := &stubWorker{}
	r := NewRefresh(store, worker, time.Hour, testLogger())

	r.RunOnce(context.Background())

	assert.Equal(t, []string{"a", "b", "c"}, worker.seen())
}

func TestRefreshRunOnce_FailureDoesNotStopSweep(t *testing.T) {
	store := &stubStore{due: []model.Playlist{{Token: "a"}, {Token: "b"}, {Token: "c"}}}
	worker := &stubWorker{fail: map[string]error{"b": errors.New("fetch failed")}}
	r := NewRefresh(store, worker, time.Hour, testLogger())

	r.RunOnce(context.Background())

	assert.Equal(t, []string{"a", "b", "c"}, worker.seen())
}

func TestRefreshRunOnce_StoreErrorIsNotFatal(t *testing.T) {
	store := &stubStore{listErr: errors.New("db locked")}
	worker := &stubWorker{}
	r := NewRefresh(store, worker, time.Hour, testLogger())

	r.RunOnce(context.Background())

	assert.Empty(t, worker.seen())
}

func TestRefreshRunOnce_CancelledContextStopsSweep(t *testing.T) {
	store := &stubStore{due: []model.Playlist{{Token: "a"}, {Token: "b"}}}
	worker := &stubWorker{}
	r := NewRefresh(store, worker, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.RunOnce(ctx)

	assert.Empty(t, worker.seen())
}

func TestRefreshStartRunsImmediatelyAndStops(t *testing.T) {
	store := &stubStore{}
	worker := &stubWorker{}
	r := NewRefresh(store, worker, time.Hour, testLogger())

	r.Start(context.Background())
	require.Eventually(t, func() bool { return store.calls() >= 1 },
		time.Second, 5*time.Millisecond)
	r.Stop()
}

func TestAvailabilityRunOnce_ProcessesAllDue(t *testing.T) {
	store := &stubStore{due: []model.Playlist{{Token: "a"}, {Token: "b"}}}
	worker := &stubWorker{fail: map[string]error{"a": errors.New("db locked")}}
	a := NewAvailability(store, worker, time.Hour, 24*time.Hour, testLogger())

	a.RunOnce(context.Background())

	assert.Equal(t, []string{"a", "b"}, worker.seen())
}

func TestAvailabilityStartRunsImmediatelyAndStops(t *testing.T) {
	store := &stubStore{}
	worker := &stubWorker{}
	a := NewAvailability(store, worker, time.Hour, 24*time.Hour, testLogger())

	a.Start(context.Background())
	require.Eventually(t, func() bool { return store.calls() >= 1 },
		time.Second, 5*time.Millisecond)
	a.Stop()
}
