package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/m3uprocessor/m3u-processor/internal/auth"
	"github.com/m3uprocessor/m3u-processor/internal/m3u"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
	"github.com/m3uprocessor/m3u-processor/internal/service"
)

// PlaylistHandler covers the public playlist API: processing,
// publishing, raw downloads, info, manual check/refresh and the
// leaderboard.
type PlaylistHandler struct {
	playlists *service.PlaylistService
	users     *service.UserService
	baseURL   string
	logger    *slog.Logger
}

func NewPlaylistHandler(playlists *service.PlaylistService, users *service.UserService, baseURL string, logger *slog.Logger) *PlaylistHandler {
	return &PlaylistHandler{
		playlists: playlists,
		users:     users,
		baseURL:   baseURL,
		logger:    logger,
	}
}

func (h *PlaylistHandler) rawURL(token string) string {
	return fmt.Sprintf("%s/raw/%s.m3u", h.baseURL, token)
}

type processRequest struct {
	Content string       `json:"content"`
	Rules   []model.Rule `json:"rules"`
}

// HandleProcess applies rules to a submitted document and returns a
// preview with before/after stats. Nothing is stored.
//
// POST /api/process
func (h *PlaylistHandler) HandleProcess(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.playlists.Process(req.Content, req.Rules)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type fetchRequest struct {
	URL string `json:"url"`
}

// HandleFetch downloads a playlist from a URL for client-side editing.
//
// POST /api/fetch-m3u
func (h *PlaylistHandler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	var req fetchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	content, stats, err := h.playlists.FetchPreview(r.Context(), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"content": content,
		"stats":   stats,
	})
}

type generateRequest struct {
	Content            string       `json:"content"`
	Rules              []model.Rule `json:"rules"`
	SourceURL          string       `json:"source_url"`
	Name               string       `json:"name"`
	AutoUpdate         bool         `json:"auto_update"`
	AutoUpdateInterval int          `json:"auto_update_interval"`
	ShowOnBoard        bool         `json:"show_on_board"`
}

// HandleGenerate publishes a processed playlist under a fresh token.
// Works for anonymous callers; an authenticated approved account
// becomes the owner.
//
// POST /api/generate
func (h *PlaylistHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, _ := auth.UserIDFromContext(r.Context())
	ownerID := h.users.ApprovedOwner(r.Context(), userID)

	p, err := h.playlists.Generate(r.Context(), service.GenerateParams{
		Content:            req.Content,
		Rules:              req.Rules,
		SourceURL:          req.SourceURL,
		Name:               req.Name,
		OwnerID:            ownerID,
		AutoUpdate:         req.AutoUpdate,
		AutoUpdateInterval: req.AutoUpdateInterval,
		ShowOnBoard:        req.ShowOnBoard,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"token":   p.Token,
		"raw_url": h.rawURL(p.Token),
	})
}

// HandleRaw serves the published document as an M3U download and
// counts the hit. The token may carry an .m3u suffix.
//
// GET /raw/{token}
func (h *PlaylistHandler) HandleRaw(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSuffix(chi.URLParam(r, "token"), ".m3u")

	content, err := h.playlists.Raw(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.m3u", token))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(content))
}

// HandleInfo returns public playlist metadata, stats and recent
// availability checks without counting a hit.
//
// GET /api/playlist/{token}
func (h *PlaylistHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	info, err := h.playlists.Info(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"playlist":      info.Playlist,
		"stats":         info.Stats,
		"check_history": info.History,
		"raw_url":       h.rawURL(token),
	})
}

// HandleCheck probes the playlist's source on demand.
//
// POST /api/playlist/{token}/check
func (h *PlaylistHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	rec, err := h.playlists.ManualCheck(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleRefresh re-fetches the playlist's source and republishes the
// transformed result.
//
// POST /api/playlist/{token}/refresh
func (h *PlaylistHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	p, err := h.playlists.ManualRefresh(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Playlist refreshed",
		"stats":   m3u.Compute(p.CurrentContent),
	})
}

type boardEntry struct {
	model.BoardEntry
	RawURL string `json:"raw_url"`
}

// HandleBoard returns the public leaderboard.
//
// GET /api/board?period=total|24h|7d|30d
func (h *PlaylistHandler) HandleBoard(w http.ResponseWriter, r *http.Request) {
	period := repository.BoardPeriod(r.URL.Query().Get("period"))

	entries, err := h.playlists.Board(r.Context(), period)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]boardEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, boardEntry{BoardEntry: e, RawURL: h.rawURL(e.Token)})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleHealth is the liveness endpoint.
//
// GET /api/health
func (h *PlaylistHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
