package repositories

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vidstream/backend/internal/models"
)

// MemoryStore keeps every collection in process memory. It backs unit tests and the
// memory store driver used for local development.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	videos        map[string]models.Video
	subscriptions []models.Subscription
	playlists     map[string]models.Playlist
	history       map[string][]watchEntry
	failure       error
}

type watchEntry struct {
	videoID   string
	watchedAt time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]models.User),
		videos:    make(map[string]models.Video),
		playlists: make(map[string]models.Playlist),
		history:   make(map[string][]watchEntry),
	}
}

// FailWith makes every subsequent call return err until it is called again with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Ping reports the injected failure, if any.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check(ctx)
}

// Users returns the user repository view of the store.
func (s *MemoryStore) Users() *MemoryUserRepository { return &MemoryUserRepository{s} }

// Videos returns the video repository view of the store.
func (s *MemoryStore) Videos() *MemoryVideoRepository { return &MemoryVideoRepository{s} }

// Subscriptions returns the subscription repository view of the store.
func (s *MemoryStore) Subscriptions() *MemorySubscriptionRepository {
	return &MemorySubscriptionRepository{s}
}

// Playlists returns the playlist repository view of the store.
func (s *MemoryStore) Playlists() *MemoryPlaylistRepository { return &MemoryPlaylistRepository{s} }

// check reports the injected failure or a cancelled context. Callers hold mu.
func (s *MemoryStore) check(ctx context.Context) error {
	if s.failure != nil {
		return s.failure
	}
	if err := ctx.Err(); err != nil {
		return storeError("memory store", err)
	}
	return nil
}

func (s *MemoryStore) summary(userID string) models.UserSummary {
	u, ok := s.users[userID]
	if !ok {
		return models.UserSummary{ID: userID}
	}
	return models.UserSummary{ID: u.ID, Username: u.Username, Email: u.Email, FullName: u.FullName, Avatar: u.Avatar}
}

func (s *MemoryStore) withOwner(v models.Video) models.Video {
	owner := s.summary(v.OwnerID)
	owner.Email = ""
	v.Owner = &owner
	return v
}

func (s *MemoryStore) watchHistoryIDs(userID string) []string {
	entries := s.history[userID]
	ids := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		ids = append(ids, entries[i].videoID)
	}
	return ids
}

// MemoryUserRepository implements UserRepository over a MemoryStore.
type MemoryUserRepository struct{ s *MemoryStore }

var _ UserRepository = (*MemoryUserRepository)(nil)

func (r *MemoryUserRepository) Create(ctx context.Context, user models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	for _, existing := range r.s.users {
		if existing.ID == user.ID || existing.Username == user.Username || existing.Email == user.Email {
			return ErrConflict
		}
	}
	user.WatchHistory = nil
	r.s.users[user.ID] = user
	return nil
}

func (r *MemoryUserRepository) find(ctx context.Context, match func(models.User) bool) (models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.User{}, err
	}
	for _, u := range r.s.users {
		if match(u) {
			u.WatchHistory = r.s.watchHistoryIDs(u.ID)
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (r *MemoryUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.find(ctx, func(u models.User) bool { return u.ID == id })
}

func (r *MemoryUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.find(ctx, func(u models.User) bool { return u.Username == username })
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.find(ctx, func(u models.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) FindByLogin(ctx context.Context, identifier string) (models.User, error) {
	if isEmailLogin(identifier) {
		return r.find(ctx, func(u models.User) bool { return u.Email == identifier })
	}
	return r.find(ctx, func(u models.User) bool { return u.Username == identifier })
}

func (r *MemoryUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	_, err := r.find(ctx, func(u models.User) bool { return u.Username == username || u.Email == email })
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// modify applies change to the stored user under the write lock.
func (r *MemoryUserRepository) modify(ctx context.Context, userID string, change func(*models.User) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	u, ok := r.s.users[userID]
	if !ok {
		return ErrNotFound
	}
	if err := change(&u); err != nil {
		return err
	}
	r.s.users[userID] = u
	return nil
}

func (r *MemoryUserRepository) UpdateProfile(ctx context.Context, userID, fullName, email string, at time.Time) error {
	return r.modify(ctx, userID, func(u *models.User) error {
		for id, other := range r.s.users {
			if id != userID && other.Email == email {
				return ErrConflict
			}
		}
		u.FullName, u.Email, u.UpdatedAt = fullName, email, at
		return nil
	})
}

func (r *MemoryUserRepository) SetPassword(ctx context.Context, userID, hash string, at time.Time) error {
	return r.modify(ctx, userID, func(u *models.User) error {
		u.Password, u.UpdatedAt = hash, at
		return nil
	})
}

func (r *MemoryUserRepository) SetAvatar(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error {
	return r.modify(ctx, userID, func(u *models.User) error {
		u.Avatar, u.AvatarID, u.UpdatedAt = ref.URL, ref.PublicID, at
		return nil
	})
}

func (r *MemoryUserRepository) SetCoverImage(ctx context.Context, userID string, ref models.MediaRef, at time.Time) error {
	return r.modify(ctx, userID, func(u *models.User) error {
		u.CoverImage, u.CoverImageID, u.UpdatedAt = ref.URL, ref.PublicID, at
		return nil
	})
}

func (r *MemoryUserRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	return r.modify(ctx, userID, func(u *models.User) error {
		u.RefreshToken = token
		return nil
	})
}

func (r *MemoryUserRepository) SwapRefreshToken(ctx context.Context, userID, current, next string) (bool, error) {
	swapped := false
	err := r.modify(ctx, userID, func(u *models.User) error {
		if current != "" && u.RefreshToken == current {
			u.RefreshToken = next
			swapped = true
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return swapped, err
}

func (r *MemoryUserRepository) AddToWatchHistory(ctx context.Context, userID, videoID string, watchedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	if _, ok := r.s.users[userID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.s.videos[videoID]; !ok {
		return ErrNotFound
	}
	entries := r.s.history[userID]
	for i, e := range entries {
		if e.videoID == videoID {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	r.s.history[userID] = append(entries, watchEntry{videoID: videoID, watchedAt: watchedAt})
	return nil
}

func (r *MemoryUserRepository) WatchHistory(ctx context.Context, userID string) ([]models.Video, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return nil, err
	}
	videos := []models.Video{}
	for _, id := range r.s.watchHistoryIDs(userID) {
		if v, ok := r.s.videos[id]; ok {
			videos = append(videos, r.s.withOwner(v))
		}
	}
	return videos, nil
}

func (r *MemoryUserRepository) ChannelProfile(ctx context.Context, username, viewerID string) (models.ChannelProfile, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.ChannelProfile{}, err
	}
	for _, u := range r.s.users {
		if u.Username != username {
			continue
		}
		profile := models.ChannelProfile{
			ID:         u.ID,
			Username:   u.Username,
			Email:      u.Email,
			FullName:   u.FullName,
			Avatar:     u.Avatar,
			CoverImage: u.CoverImage,
		}
		for _, sub := range r.s.subscriptions {
			if sub.ChannelID == u.ID {
				profile.SubscribersCount++
				if sub.SubscriberID == viewerID {
					profile.IsSubscribed = true
				}
			}
			if sub.SubscriberID == u.ID {
				profile.SubscribedToCount++
			}
		}
		return profile, nil
	}
	return models.ChannelProfile{}, ErrNotFound
}

// MemorySubscriptionRepository implements SubscriptionRepository over a MemoryStore.
type MemorySubscriptionRepository struct{ s *MemoryStore }

var _ SubscriptionRepository = (*MemorySubscriptionRepository)(nil)

func (r *MemorySubscriptionRepository) Toggle(ctx context.Context, edge models.Subscription) (models.SubscriptionState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return "", err
	}
	for i, sub := range r.s.subscriptions {
		if sub.SubscriberID == edge.SubscriberID && sub.ChannelID == edge.ChannelID {
			r.s.subscriptions = append(r.s.subscriptions[:i], r.s.subscriptions[i+1:]...)
			return models.Unsubscribed, nil
		}
	}
	if edge.SubscriberID == edge.ChannelID {
		return "", ErrConflict
	}
	if _, ok := r.s.users[edge.SubscriberID]; !ok {
		return "", ErrNotFound
	}
	if _, ok := r.s.users[edge.ChannelID]; !ok {
		return "", ErrNotFound
	}
	r.s.subscriptions = append(r.s.subscriptions, edge)
	return models.Subscribed, nil
}

// sortedEdges returns the edges matching keep, newest first with id as tie-breaker.
func (r *MemorySubscriptionRepository) sortedEdges(keep func(models.Subscription) bool) []models.Subscription {
	var edges []models.Subscription
	for _, sub := range r.s.subscriptions {
		if keep(sub) {
			edges = append(edges, sub)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].CreatedAt.Equal(edges[j].CreatedAt) {
			return edges[i].CreatedAt.After(edges[j].CreatedAt)
		}
		return edges[i].ID > edges[j].ID
	})
	return edges
}

func (r *MemorySubscriptionRepository) ListSubscribers(ctx context.Context, channelID string, page models.PageRequest) (models.Page[models.SubscriberEntry], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.Page[models.SubscriberEntry]{}, err
	}
	edges := r.sortedEdges(func(sub models.Subscription) bool { return sub.ChannelID == channelID })
	items := []models.SubscriberEntry{}
	for _, sub := range pageOf(edges, page) {
		items = append(items, models.SubscriberEntry{ID: sub.ID, CreatedAt: sub.CreatedAt, Subscriber: r.s.summary(sub.SubscriberID)})
	}
	return models.NewPage(page, len(edges), items), nil
}

func (r *MemorySubscriptionRepository) ListChannels(ctx context.Context, subscriberID string, page models.PageRequest) (models.Page[models.ChannelEntry], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.Page[models.ChannelEntry]{}, err
	}
	edges := r.sortedEdges(func(sub models.Subscription) bool { return sub.SubscriberID == subscriberID })
	items := []models.ChannelEntry{}
	for _, sub := range pageOf(edges, page) {
		items = append(items, models.ChannelEntry{ID: sub.ID, CreatedAt: sub.CreatedAt, Channel: r.s.summary(sub.ChannelID)})
	}
	return models.NewPage(page, len(edges), items), nil
}

func pageOf[T any](items []T, page models.PageRequest) []T {
	start := page.Skip()
	if start >= len(items) {
		return nil
	}
	end := start + page.Limit
	if page.Limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// MemoryVideoRepository implements VideoRepository over a MemoryStore.
type MemoryVideoRepository struct{ s *MemoryStore }

var _ VideoRepository = (*MemoryVideoRepository)(nil)

func (r *MemoryVideoRepository) Create(ctx context.Context, video models.Video) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	if _, ok := r.s.videos[video.ID]; ok {
		return ErrConflict
	}
	if _, ok := r.s.users[video.OwnerID]; !ok {
		return ErrNotFound
	}
	video.Owner = nil
	r.s.videos[video.ID] = video
	return nil
}

func (r *MemoryVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.Video{}, err
	}
	v, ok := r.s.videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}
	return r.s.withOwner(v), nil
}

func (r *MemoryVideoRepository) List(ctx context.Context, query models.VideoQuery) (models.Page[models.Video], error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.Page[models.Video]{}, err
	}
	search := strings.ToLower(strings.TrimSpace(query.Search))
	var matched []models.Video
	for _, v := range r.s.videos {
		if v.OwnerID != query.OwnerID {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(v.Title), search) {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		c := compareVideos(matched[i], matched[j], query.SortBy)
		if c == 0 {
			c = strings.Compare(matched[i].ID, matched[j].ID)
		}
		if query.SortDesc {
			return c > 0
		}
		return c < 0
	})
	items := []models.Video{}
	for _, v := range pageOf(matched, query.Page) {
		items = append(items, r.s.withOwner(v))
	}
	return models.NewPage(query.Page, len(matched), items), nil
}

func compareVideos(a, b models.Video, sortBy string) int {
	switch sortBy {
	case models.VideoSortTitle:
		return strings.Compare(a.Title, b.Title)
	case models.VideoSortViews:
		return cmpOrdered(a.Views, b.Views)
	case models.VideoSortDuration:
		return cmpOrdered(a.Duration, b.Duration)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func cmpOrdered[T int | int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (r *MemoryVideoRepository) Update(ctx context.Context, video models.Video) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	existing, ok := r.s.videos[video.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = video.Title
	existing.Description = video.Description
	existing.VideoFile = video.VideoFile
	existing.Thumbnail = video.Thumbnail
	existing.Duration = video.Duration
	existing.IsPublished = video.IsPublished
	existing.UpdatedAt = video.UpdatedAt
	r.s.videos[video.ID] = existing
	return nil
}

func (r *MemoryVideoRepository) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	if _, ok := r.s.videos[id]; !ok {
		return ErrNotFound
	}
	delete(r.s.videos, id)
	for pid, p := range r.s.playlists {
		p.Videos = removeString(p.Videos, id)
		r.s.playlists[pid] = p
	}
	for uid, entries := range r.s.history {
		kept := entries[:0]
		for _, e := range entries {
			if e.videoID != id {
				kept = append(kept, e)
			}
		}
		r.s.history[uid] = kept
	}
	return nil
}

func (r *MemoryVideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return 0, err
	}
	v, ok := r.s.videos[id]
	if !ok {
		return 0, ErrNotFound
	}
	v.Views++
	r.s.videos[id] = v
	return v.Views, nil
}

// MemoryPlaylistRepository implements PlaylistRepository over a MemoryStore.
type MemoryPlaylistRepository struct{ s *MemoryStore }

var _ PlaylistRepository = (*MemoryPlaylistRepository)(nil)

func (r *MemoryPlaylistRepository) Create(ctx context.Context, playlist models.Playlist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	if _, ok := r.s.users[playlist.OwnerID]; !ok {
		return ErrNotFound
	}
	if _, ok := r.s.playlists[playlist.ID]; ok {
		return ErrConflict
	}
	playlist.Videos = []string{}
	r.s.playlists[playlist.ID] = playlist
	return nil
}

// owned returns the playlist when ownerID owns it. Callers hold mu.
func (r *MemoryPlaylistRepository) owned(id, ownerID string) (models.Playlist, error) {
	p, ok := r.s.playlists[id]
	if !ok || p.OwnerID != ownerID {
		return models.Playlist{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryPlaylistRepository) FindOwned(ctx context.Context, id, ownerID string) (models.Playlist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.Playlist{}, err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		return models.Playlist{}, err
	}
	p.Videos = append([]string{}, p.Videos...)
	return p, nil
}

func (r *MemoryPlaylistRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.OwnedPlaylist, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return nil, err
	}
	owner := r.s.summary(ownerID)
	owner.Email = ""
	playlists := []models.OwnedPlaylist{}
	for _, p := range r.s.playlists {
		if p.OwnerID == ownerID {
			p.Videos = append([]string{}, p.Videos...)
			playlists = append(playlists, models.OwnedPlaylist{Playlist: p, Owner: owner})
		}
	}
	sort.Slice(playlists, func(i, j int) bool {
		if !playlists[i].CreatedAt.Equal(playlists[j].CreatedAt) {
			return playlists[i].CreatedAt.After(playlists[j].CreatedAt)
		}
		return playlists[i].ID > playlists[j].ID
	})
	return playlists, nil
}

func (r *MemoryPlaylistRepository) Detail(ctx context.Context, id string) (models.PlaylistDetail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if err := r.s.check(ctx); err != nil {
		return models.PlaylistDetail{}, err
	}
	p, ok := r.s.playlists[id]
	if !ok {
		return models.PlaylistDetail{}, ErrNotFound
	}
	owner := r.s.summary(p.OwnerID)
	owner.Email = ""
	detail := models.PlaylistDetail{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		Owner:       owner,
		Videos:      []models.PlaylistVideo{},
	}
	for _, videoID := range p.Videos {
		v, ok := r.s.videos[videoID]
		if !ok {
			continue
		}
		detail.Videos = append(detail.Videos, models.PlaylistVideo{
			ID:        v.ID,
			Title:     v.Title,
			Thumbnail: v.Thumbnail,
			Duration:  v.Duration,
			VideoFile: v.VideoFile,
		})
	}
	return detail, nil
}

func (r *MemoryPlaylistRepository) AddVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		return err
	}
	if _, ok := r.s.videos[videoID]; !ok {
		return ErrNotFound
	}
	for _, existing := range p.Videos {
		if existing == videoID {
			return ErrConflict
		}
	}
	p.Videos = append(append([]string{}, p.Videos...), videoID)
	p.UpdatedAt = at
	r.s.playlists[id] = p
	return nil
}

func (r *MemoryPlaylistRepository) RemoveVideo(ctx context.Context, id, ownerID, videoID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		return err
	}
	p.Videos = removeString(p.Videos, videoID)
	p.UpdatedAt = at
	r.s.playlists[id] = p
	return nil
}

func (r *MemoryPlaylistRepository) Update(ctx context.Context, id, ownerID, name, description string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		return err
	}
	p.Name = name
	p.Description = description
	p.UpdatedAt = at
	r.s.playlists[id] = p
	return nil
}

func (r *MemoryPlaylistRepository) Delete(ctx context.Context, id, ownerID string) (models.Playlist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.check(ctx); err != nil {
		return models.Playlist{}, err
	}
	p, err := r.owned(id, ownerID)
	if err != nil {
		return models.Playlist{}, err
	}
	delete(r.s.playlists, id)
	return p, nil
}

func removeString(values []string, target string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
