package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/services"
)

// VideoHandler provides endpoints for publishing, browsing and watching videos.
type VideoHandler struct {
	Videos  VideoService
	Uploads Uploads
}

// List handles GET /videos?userId=&query=&sortBy=&sortType=&page=&limit=.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ownerID := strings.TrimSpace(query.Get("userId"))
	if ownerID == "" {
		RespondError(w, r, apperr.Validation("userId is required",
			apperr.FieldError{Field: "userId", Message: "userId is required"}))
		return
	}

	page, err := h.Videos.List(r.Context(), services.ListVideosInput{
		OwnerID:  ownerID,
		Query:    query.Get("query"),
		SortBy:   query.Get("sortBy"),
		SortType: query.Get("sortType"),
		Page:     pageRequest(r),
	})
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "videos fetched", page)
}

// Publish handles POST /videos as a multipart form with videoFile and thumbnail parts.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	form, err := h.Uploads.receive(w, r, videoUploadFields)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	defer form.Cleanup()

	video, err := h.Videos.Publish(r.Context(), user.ID, videoInput(form))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusCreated, "video uploaded successfully", video)
}

// Get handles GET /videos/{videoId}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	video, err := h.Videos.Get(r.Context(), chi.URLParam(r, "videoId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "video fetched", video)
}

// Update handles PATCH /videos/{videoId}. File parts are optional.
func (h VideoHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	form, err := h.Uploads.receive(w, r, videoUploadFields)
	if err != nil {
		RespondError(w, r, err)
		return
	}
	defer form.Cleanup()

	video, err := h.Videos.Update(r.Context(), user.ID, chi.URLParam(r, "videoId"), videoInput(form))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "video updated successfully", video)
}

// Delete handles DELETE /videos/{videoId}.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	video, err := h.Videos.Delete(r.Context(), user.ID, chi.URLParam(r, "videoId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "video deleted successfully", video)
}

// TogglePublish handles PATCH /videos/{videoId}/publish.
func (h VideoHandler) TogglePublish(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	video, err := h.Videos.TogglePublish(r.Context(), user.ID, chi.URLParam(r, "videoId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "publish status updated", video)
}

// Watch handles POST /videos/{videoId}/watch.
func (h VideoHandler) Watch(w http.ResponseWriter, r *http.Request) {
	user, ok := identity(w, r)
	if !ok {
		return
	}
	video, err := h.Videos.Watch(r.Context(), user.ID, chi.URLParam(r, "videoId"))
	if err != nil {
		RespondError(w, r, err)
		return
	}
	respondData(r.Context(), w, http.StatusOK, "video watched", video)
}

func videoInput(form *spooledForm) services.VideoInput {
	return services.VideoInput{
		Title:         form.value("title"),
		Description:   form.value("description"),
		VideoPath:     form.path("videoFile"),
		ThumbnailPath: form.path("thumbnail"),
	}
}
