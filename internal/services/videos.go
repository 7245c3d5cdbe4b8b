package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/media"
	"github.com/vidstream/backend/internal/models"
)

// DefaultVideoLimit is the page size used when a video listing omits one.
const DefaultVideoLimit = 10

// Videos implements publishing, listing and owner-scoped video management.
type Videos struct {
	Store   VideoStore
	Users   UserLookup
	History WatchRecorder
	Media   MediaUploader
	NowFunc func() time.Time
}

// VideoInput carries the editable fields of a video. File paths point at uploads
// spooled to local disk; on update an empty path keeps the current media.
type VideoInput struct {
	Title         string `json:"title" validate:"required,min=2,max=80"`
	Description   string `json:"description" validate:"required,min=4,max=300"`
	VideoPath     string `json:"videoFile"`
	ThumbnailPath string `json:"thumbnail"`
}

func (in VideoInput) normalized() VideoInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	return in
}

// ListVideosInput selects a page of one owner's videos.
type ListVideosInput struct {
	OwnerID  string
	Query    string
	SortBy   string `json:"sortBy" validate:"omitempty,oneof=createdAt title views duration"`
	SortType string `json:"sortType" validate:"omitempty,oneof=asc desc"`
	Page     models.PageRequest
}

// Publish uploads the video and thumbnail and stores the new video.
func (v Videos) Publish(ctx context.Context, ownerID string, in VideoInput) (video models.Video, err error) {
	ctx, span := logging.StartSpan(ctx, "videos.publish")
	defer func() { span.End(err) }()

	in = in.normalized()
	if err := validateInput(in); err != nil {
		return models.Video{}, err
	}
	if in.VideoPath == "" {
		return models.Video{}, missingFile("videoFile")
	}
	if in.ThumbnailPath == "" {
		return models.Video{}, missingFile("thumbnail")
	}

	file, err := v.Media.Upload(ctx, in.VideoPath, media.KindVideo)
	if err != nil {
		return models.Video{}, err
	}
	thumbnail, err := v.Media.Upload(ctx, in.ThumbnailPath, media.KindImage)
	if err != nil {
		discardMedia(ctx, v.Media, file.PublicID)
		return models.Video{}, err
	}

	now := nowUTC(v.NowFunc)
	video = models.Video{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       in.Title,
		Description: in.Description,
		VideoFile:   file.MediaRef,
		Thumbnail:   thumbnail.MediaRef,
		Duration:    file.Duration,
		IsPublished: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := v.Store.Create(ctx, video); err != nil {
		discardMedia(ctx, v.Media, file.PublicID, thumbnail.PublicID)
		return models.Video{}, storeErr(err, "user not found")
	}

	logging.FromContext(ctx).Info("video published", "videoId", video.ID, "duration", video.Duration)
	return v.get(ctx, video.ID)
}

// Get returns a video with its owner summary.
func (v Videos) Get(ctx context.Context, videoID string) (models.Video, error) {
	videoID, err := parseID("video id", videoID)
	if err != nil {
		return models.Video{}, err
	}
	return v.get(ctx, videoID)
}

// List returns a page of the owner's videos, newest first unless sorted otherwise.
func (v Videos) List(ctx context.Context, in ListVideosInput) (models.Page[models.Video], error) {
	ownerID, err := parseID("user id", in.OwnerID)
	if err != nil {
		return models.Page[models.Video]{}, err
	}
	if err := validateInput(in); err != nil {
		return models.Page[models.Video]{}, err
	}
	if _, err := v.Users.FindByID(ctx, ownerID); err != nil {
		return models.Page[models.Video]{}, storeErr(err, "user not found")
	}

	query := models.VideoQuery{
		OwnerID:  ownerID,
		Search:   strings.TrimSpace(in.Query),
		SortBy:   in.SortBy,
		SortDesc: in.SortType != "asc",
		Page:     in.Page.Normalize(DefaultVideoLimit),
	}
	if query.SortBy == "" {
		query.SortBy = models.VideoSortCreatedAt
	}

	page, err := v.Store.List(ctx, query)
	if err != nil {
		return models.Page[models.Video]{}, storeErr(err, "user not found")
	}
	return page, nil
}

// Update changes a video's details and replaces any supplied media.
func (v Videos) Update(ctx context.Context, ownerID, videoID string, in VideoInput) (video models.Video, err error) {
	ctx, span := logging.StartSpan(ctx, "videos.update", "video_id", videoID)
	defer func() { span.End(err) }()

	in = in.normalized()
	if err := validateInput(in); err != nil {
		return models.Video{}, err
	}
	video, err = v.owned(ctx, ownerID, videoID)
	if err != nil {
		return models.Video{}, err
	}

	var superseded []string
	var uploaded []string
	if in.VideoPath != "" {
		file, err := v.Media.Upload(ctx, in.VideoPath, media.KindVideo)
		if err != nil {
			return models.Video{}, err
		}
		uploaded = append(uploaded, file.PublicID)
		superseded = append(superseded, video.VideoFile.PublicID)
		video.VideoFile = file.MediaRef
		video.Duration = file.Duration
	}
	if in.ThumbnailPath != "" {
		thumbnail, err := v.Media.Upload(ctx, in.ThumbnailPath, media.KindImage)
		if err != nil {
			discardMedia(ctx, v.Media, uploaded...)
			return models.Video{}, err
		}
		uploaded = append(uploaded, thumbnail.PublicID)
		superseded = append(superseded, video.Thumbnail.PublicID)
		video.Thumbnail = thumbnail.MediaRef
	}

	video.Title = in.Title
	video.Description = in.Description
	video.UpdatedAt = nowUTC(v.NowFunc)
	if err := v.Store.Update(ctx, video); err != nil {
		discardMedia(ctx, v.Media, uploaded...)
		return models.Video{}, storeErr(err, "video not found")
	}

	discardMedia(ctx, v.Media, superseded...)
	return v.get(ctx, video.ID)
}

// Delete removes the video record and then its media objects.
func (v Videos) Delete(ctx context.Context, ownerID, videoID string) (models.Video, error) {
	video, err := v.owned(ctx, ownerID, videoID)
	if err != nil {
		return models.Video{}, err
	}
	if err := v.Store.Delete(ctx, video.ID); err != nil {
		return models.Video{}, storeErr(err, "video not found")
	}
	discardMedia(ctx, v.Media, video.VideoFile.PublicID, video.Thumbnail.PublicID)
	return video, nil
}

// TogglePublish flips the published flag and returns the updated video.
func (v Videos) TogglePublish(ctx context.Context, ownerID, videoID string) (models.Video, error) {
	video, err := v.owned(ctx, ownerID, videoID)
	if err != nil {
		return models.Video{}, err
	}
	video.IsPublished = !video.IsPublished
	video.UpdatedAt = nowUTC(v.NowFunc)
	if err := v.Store.Update(ctx, video); err != nil {
		return models.Video{}, storeErr(err, "video not found")
	}
	return video, nil
}

// Watch counts a view and records the video in the viewer's watch history.
func (v Videos) Watch(ctx context.Context, viewerID, videoID string) (models.Video, error) {
	videoID, err := parseID("video id", videoID)
	if err != nil {
		return models.Video{}, err
	}
	video, err := v.get(ctx, videoID)
	if err != nil {
		return models.Video{}, err
	}

	views, err := v.Store.IncrementViews(ctx, videoID)
	if err != nil {
		return models.Video{}, storeErr(err, "video not found")
	}
	video.Views = views

	if err := v.History.AddToWatchHistory(ctx, viewerID, videoID, nowUTC(v.NowFunc)); err != nil {
		return models.Video{}, storeErr(err, "video not found")
	}
	return video, nil
}

func (v Videos) get(ctx context.Context, videoID string) (models.Video, error) {
	video, err := v.Store.FindByID(ctx, videoID)
	if err != nil {
		return models.Video{}, storeErr(err, "video not found")
	}
	return video, nil
}

// owned loads a video and hides it from anyone but its owner.
func (v Videos) owned(ctx context.Context, ownerID, videoID string) (models.Video, error) {
	videoID, err := parseID("video id", videoID)
	if err != nil {
		return models.Video{}, err
	}
	video, err := v.get(ctx, videoID)
	if err != nil {
		return models.Video{}, err
	}
	if video.OwnerID != ownerID {
		return models.Video{}, apperr.NotFound("video not found")
	}
	return video, nil
}

func missingFile(field string) error {
	return apperr.Validation(field+" file is missing", apperr.FieldError{Field: field, Message: field + " file is missing"})
}
