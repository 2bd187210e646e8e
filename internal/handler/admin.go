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

// AdminHandler covers the admin dashboard, user administration and
// playlist moderation. Role checks live in the service; these handlers
// only pass the acting user through.
type AdminHandler struct {
	admin  *service.AdminService
	logger *slog.Logger
}

func NewAdminHandler(admin *service.AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// HandleStats returns the dashboard counters.
//
// GET /api/admin/stats
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())

	stats, err := h.admin.Stats(r.Context(), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleListUsers lists accounts.
//
// GET /api/admin/users?pending=true&search=...
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())

	users, err := h.admin.ListUsers(r.Context(), actorID, repository.UserListOptions{
		PendingOnly: r.URL.Query().Get("pending") == "true",
		Search:      r.URL.Query().Get("search"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type adminUserUpdateRequest struct {
	Role     *model.Role `json:"role"`
	Active   *bool       `json:"is_active"`
	Approved *bool       `json:"is_approved"`
}

// HandleUpdateUser edits an account's role, active and approved flags.
//
// PUT /api/admin/users/{userID}
func (h *AdminHandler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	var req adminUserUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.admin.UpdateUser(r.Context(), actorID, userID, service.UserUpdate{
		Role:     req.Role,
		Active:   req.Active,
		Approved: req.Approved,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleApprove approves a pending account.
//
// POST /api/admin/users/{userID}/approve
func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := h.admin.Approve(r.Context(), actorID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User approved"})
}

// HandleReject deletes a pending account.
//
// POST /api/admin/users/{userID}/reject
func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := h.admin.Reject(r.Context(), actorID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User rejected"})
}

// HandleDeleteUser removes an account.
//
// DELETE /api/admin/users/{userID}
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())
	userID := chi.URLParam(r, "userID")

	if err := h.admin.DeleteUser(r.Context(), actorID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

// HandleListPlaylists lists all playlists for moderation.
//
// GET /api/admin/playlists?search=...
func (h *AdminHandler) HandleListPlaylists(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())

	playlists, err := h.admin.ListPlaylists(r.Context(), actorID, r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlists)
}

// HandleDeletePlaylist removes any playlist.
//
// DELETE /api/admin/playlists/{token}
func (h *AdminHandler) HandleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())
	token := chi.URLParam(r, "token")

	if err := h.admin.DeletePlaylist(r.Context(), actorID, token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Playlist deleted"})
}

// HandleGetSettings returns the system settings.
//
// GET /api/admin/settings
func (h *AdminHandler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())

	settings, err := h.admin.Settings(r.Context(), actorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type settingsUpdateRequest struct {
	OpenRegistration bool `json:"open_registration"`
}

// HandleUpdateSettings toggles open registration.
//
// PUT /api/admin/settings
func (h *AdminHandler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	actorID, _ := auth.UserIDFromContext(r.Context())

	var req settingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.admin.SetOpenRegistration(r.Context(), actorID, req.OpenRegistration); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Settings updated"})
}
