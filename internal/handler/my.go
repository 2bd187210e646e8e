package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/m3uprocessor/m3u-processor/internal/auth"
	"github.com/m3uprocessor/m3u-processor/internal/model"
	"github.com/m3uprocessor/m3u-processor/internal/repository"
	"github.com/m3uprocessor/m3u-processor/internal/service"
)

// MyHandler covers the authenticated owner's playlist management.
type MyHandler struct {
	playlists *service.PlaylistService
	baseURL   string
	logger    *slog.Logger
}

func NewMyHandler(playlists *service.PlaylistService, baseURL string, logger *slog.Logger) *MyHandler {
	return &MyHandler{playlists: playlists, baseURL: baseURL, logger: logger}
}

type ownedPlaylist struct {
	model.Playlist
	RawURL string `json:"raw_url"`
}

// HandleList returns the caller's playlists.
//
// GET /api/my/playlists
func (h *MyHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	playlists, err := h.playlists.ListByOwner(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]ownedPlaylist, 0, len(playlists))
	for _, p := range playlists {
		out = append(out, ownedPlaylist{
			Playlist: p,
			RawURL:   h.baseURL + "/raw/" + p.Token + ".m3u",
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type updatePlaylistRequest struct {
	Name               *string `json:"name"`
	ShowOnBoard        *bool   `json:"show_on_board"`
	AutoUpdate         *bool   `json:"auto_update"`
	AutoUpdateInterval *int    `json:"auto_update_interval"`
}

// HandleUpdate edits one of the caller's playlists. Absent fields are
// left unchanged.
//
// PUT /api/my/playlists/{token}
func (h *MyHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	token := chi.URLParam(r, "token")

	var req updatePlaylistRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.playlists.UpdateMeta(r.Context(), userID, token, repository.PlaylistMetaUpdate{
		Name:               req.Name,
		ShowOnBoard:        req.ShowOnBoard,
		AutoUpdate:         req.AutoUpdate,
		AutoUpdateInterval: req.AutoUpdateInterval,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDelete removes one of the caller's playlists.
//
// DELETE /api/my/playlists/{token}
func (h *MyHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	token := chi.URLParam(r, "token")

	if err := h.playlists.DeleteOwned(r.Context(), userID, token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Playlist deleted"})
}
