package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// PlaylistHandler implements playlist endpoints. Mutations act on the caller's playlists only.
type PlaylistHandler struct {
	Playlists PlaylistService
}

type playlistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Create handles POST /playlists.
func (h PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}
	playlist, err := h.Playlists.Create(r.Context(), user.ID, req.Name, req.Description)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusCreated, "playlist created", playlist)
}

// ListByOwner handles GET /playlists/user/{userId}.
func (h PlaylistHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.Playlists.ListByOwner(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "playlists fetched", playlists)
}

// Detail handles GET /playlists/{playlistId}.
func (h PlaylistHandler) Detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.Playlists.Detail(r.Context(), chi.URLParam(r, "playlistId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "playlist fetched", detail)
}

// AddVideo handles POST /playlists/{playlistId}/videos/{videoId}.
func (h PlaylistHandler) AddVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	playlist, err := h.Playlists.AddVideo(r.Context(), user.ID, chi.URLParam(r, "playlistId"), chi.URLParam(r, "videoId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "video added to playlist", playlist)
}

// RemoveVideo handles DELETE /playlists/{playlistId}/videos/{videoId}.
func (h PlaylistHandler) RemoveVideo(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	playlist, err := h.Playlists.RemoveVideo(r.Context(), user.ID, chi.URLParam(r, "playlistId"), chi.URLParam(r, "videoId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "video removed from playlist", playlist)
}

// Update handles PATCH /playlists/{playlistId}.
func (h PlaylistHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	var req playlistRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondError(w, r, err)
		return
	}
	playlist, err := h.Playlists.Update(r.Context(), user.ID, chi.URLParam(r, "playlistId"), req.Name, req.Description)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "playlist updated", playlist)
}

// Delete handles DELETE /playlists/{playlistId}.
func (h PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	playlist, err := h.Playlists.Delete(r.Context(), user.ID, chi.URLParam(r, "playlistId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "playlist deleted", playlist)
}
