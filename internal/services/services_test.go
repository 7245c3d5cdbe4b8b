package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidstream/backend/internal/apperr"
	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/logging"
	"github.com/vidstream/backend/internal/media"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
)

type fakeMedia struct {
	mu       sync.Mutex
	next     int
	objects  map[string]media.Kind
	deleted  []string
	failPath string
	duration int
}

func newFakeMedia() *fakeMedia {
	return &fakeMedia{objects: make(map[string]media.Kind), duration: 95}
}

func (f *fakeMedia) Upload(_ context.Context, path string, kind media.Kind) (media.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if path == f.failPath {
		return media.Asset{}, apperr.Unavailable("media store unavailable", errors.New("boom"))
	}
	f.next++
	id := fmt.Sprintf("%ss/%d", kind, f.next)
	f.objects[id] = kind
	asset := media.Asset{MediaRef: models.MediaRef{URL: "https://cdn.test/" + id, PublicID: id}}
	if kind == media.KindVideo {
		asset.Duration = f.duration
	}
	return asset, nil
}

func (f *fakeMedia) Delete(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, publicID)
	f.deleted = append(f.deleted, publicID)
	return nil
}

func (f *fakeMedia) stored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fixture struct {
	store         *repositories.MemoryStore
	media         *fakeMedia
	accounts      Accounts
	subscriptions Subscriptions
	playlists     Playlists
	videos        Videos
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repositories.NewMemoryStore()
	files := newFakeMedia()
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    240 * time.Hour,
		Issuer:        "vidstream-test",
	}, store.Users())

	return &fixture{
		store: store,
		media: files,
		accounts: Accounts{
			Users:  store.Users(),
			Tokens: tokens,
			Media:  files,
		},
		subscriptions: Subscriptions{Users: store.Users(), Edges: store.Subscriptions()},
		playlists:     Playlists{Store: store.Playlists(), Videos: store.Videos(), Users: store.Users()},
		videos: Videos{
			Store:   store.Videos(),
			Users:   store.Users(),
			History: store.Users(),
			Media:   files,
		},
	}
}

func (f *fixture) register(t *testing.T, username string) models.User {
	t.Helper()
	user, err := f.accounts.Register(context.Background(), RegisterInput{
		Username:   username,
		Email:      username + "@example.com",
		Password:   "secret-" + username,
		FullName:   "User " + username,
		AvatarPath: "/tmp/" + username + ".png",
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return user
}

func (f *fixture) publish(t *testing.T, owner models.User, title string) models.Video {
	t.Helper()
	video, err := f.videos.Publish(context.Background(), owner.ID, VideoInput{
		Title:         title,
		Description:   "a description",
		VideoPath:     "/tmp/" + title + ".mp4",
		ThumbnailPath: "/tmp/" + title + ".png",
	})
	if err != nil {
		t.Fatalf("publish %s: %v", title, err)
	}
	return video
}

func TestRegisterNormalizesAndRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.accounts.Register(ctx, RegisterInput{
		Username:   "  Alice ",
		Email:      "Alice@Example.com",
		Password:   "secret",
		FullName:   "Alice",
		AvatarPath: "/tmp/a.png",
		CoverPath:  "/tmp/c.png",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Username != "alice" || user.Email != "alice@example.com" {
		t.Fatalf("expected lowercased identity, got %+v", user)
	}
	if user.Password != "" || user.RefreshToken != "" {
		t.Fatal("registration must not return credentials")
	}
	if user.Avatar == "" || user.CoverImage == "" {
		t.Fatalf("expected media references, got %+v", user)
	}

	_, err = f.accounts.Register(ctx, RegisterInput{
		Username:   "bob",
		Email:      "ALICE@example.com",
		Password:   "secret",
		FullName:   "Bob",
		AvatarPath: "/tmp/b.png",
	})
	if !apperr.Is(err, apperr.KindDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	if got := f.media.stored(); got != 2 {
		t.Fatalf("duplicate registration must not upload media, stored=%d", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing avatar", RegisterInput{Username: "a", Email: "a@example.com", Password: "p", FullName: "A"}, "avatar"},
		{"blank password", RegisterInput{Username: "a", Email: "a@example.com", Password: "   ", FullName: "A", AvatarPath: "/a"}, "password"},
		{"bad email", RegisterInput{Username: "a", Email: "nope", Password: "p", FullName: "A", AvatarPath: "/a"}, "email"},
		{"missing username", RegisterInput{Email: "a@example.com", Password: "p", FullName: "A", AvatarPath: "/a"}, "username"},
		{"username with at sign", RegisterInput{Username: "a@b", Email: "a@example.com", Password: "p", FullName: "A", AvatarPath: "/a"}, "username"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.accounts.Register(context.Background(), tc.in)
			appErr, ok := apperr.As(err)
			if !ok || appErr.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if len(appErr.Fields) == 0 || appErr.Fields[0].Field != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, appErr.Fields)
			}
		})
	}
	if got := f.media.stored(); got != 0 {
		t.Fatalf("invalid registrations must not upload media, stored=%d", got)
	}
}

func TestRegisterCleansUpMediaWhenCoverFails(t *testing.T) {
	f := newFixture(t)
	f.media.failPath = "/tmp/cover.png"

	_, err := f.accounts.Register(context.Background(), RegisterInput{
		Username:   "carol",
		Email:      "carol@example.com",
		Password:   "secret",
		FullName:   "Carol",
		AvatarPath: "/tmp/avatar.png",
		CoverPath:  "/tmp/cover.png",
	})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got := f.media.stored(); got != 0 {
		t.Fatalf("expected avatar to be discarded, stored=%d", got)
	}
}

func TestLoginRefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	user, tokens, err := f.accounts.Login(ctx, "ALICE@example.com", "secret-alice")
	if err != nil {
		t.Fatalf("login by email: %v", err)
	}
	if user.ID != alice.ID || tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("unexpected login result: %+v %+v", user, tokens)
	}
	if _, _, err := f.accounts.Login(ctx, "alice", "secret-alice"); err != nil {
		t.Fatalf("login by username: %v", err)
	}

	if _, _, err := f.accounts.Login(ctx, "alice", "wrong"); !apperr.Is(err, apperr.KindInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if _, _, err := f.accounts.Login(ctx, "nobody", "secret"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	_, current, err := f.accounts.Login(ctx, "alice", "secret-alice")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	rotated, err := f.accounts.Refresh(ctx, current.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := f.accounts.Refresh(ctx, current.RefreshToken); !errors.Is(err, auth.ErrTokenMismatch) {
		t.Fatalf("expected mismatch reusing refresh token, got %v", err)
	}

	if err := f.accounts.Logout(ctx, alice.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := f.accounts.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, auth.ErrTokenMismatch) {
		t.Fatalf("expected mismatch after logout, got %v", err)
	}
}

func TestRefreshAndLogoutAreTraced(t *testing.T) {
	f := newFixture(t)
	alice := f.register(t, "alice")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := logging.WithLogger(context.Background(), logger)

	_, tokens, err := f.accounts.Login(ctx, "alice", "secret-alice")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := f.accounts.Refresh(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := f.accounts.Logout(ctx, alice.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	out := buf.String()
	for _, name := range []string{`"span_name":"accounts.refresh"`, `"span_name":"accounts.logout"`} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %s in logs, got %s", name, out)
		}
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	if err := f.accounts.ChangePassword(ctx, alice.ID, "wrong", "next"); !apperr.Is(err, apperr.KindInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
	if err := f.accounts.ChangePassword(ctx, alice.ID, "secret-alice", "next"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, _, err := f.accounts.Login(ctx, "alice", "secret-alice"); !apperr.Is(err, apperr.KindInvalidCredential) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, _, err := f.accounts.Login(ctx, "alice", "next"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

// heldProfileStore parks UpdateProfile until released so another write can land first.
type heldProfileStore struct {
	UserStore
	entered chan struct{}
	release chan struct{}
}

func (h heldProfileStore) UpdateProfile(ctx context.Context, userID, fullName, email string, at time.Time) error {
	close(h.entered)
	<-h.release
	return h.UserStore.UpdateProfile(ctx, userID, fullName, email, at)
}

func TestUpdateAccountKeepsConcurrentPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	held := heldProfileStore{UserStore: f.store.Users(), entered: make(chan struct{}), release: make(chan struct{})}
	slow := f.accounts
	slow.Users = held

	done := make(chan error, 1)
	go func() {
		_, err := slow.UpdateAccount(ctx, alice.ID, "Alice A", "alice2@example.com")
		done <- err
	}()

	<-held.entered
	if err := f.accounts.ChangePassword(ctx, alice.ID, "secret-alice", "brand-new"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	close(held.release)
	if err := <-done; err != nil {
		t.Fatalf("update account: %v", err)
	}

	if _, _, err := f.accounts.Login(ctx, "alice", "secret-alice"); !apperr.Is(err, apperr.KindInvalidCredential) {
		t.Fatalf("old password must stay revoked, got %v", err)
	}
	user, _, err := f.accounts.Login(ctx, "alice", "brand-new")
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if user.FullName != "Alice A" || user.Email != "alice2@example.com" {
		t.Fatalf("profile update lost: %+v", user)
	}
}

func TestUpdateAccountAndAvatar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.register(t, "bob")

	if _, err := f.accounts.UpdateAccount(ctx, alice.ID, "Alice A", "BOB@example.com"); !apperr.Is(err, apperr.KindDuplicate) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	updated, err := f.accounts.UpdateAccount(ctx, alice.ID, "Alice A", "Alice2@Example.com")
	if err != nil {
		t.Fatalf("update account: %v", err)
	}
	if updated.Email != "alice2@example.com" || updated.FullName != "Alice A" {
		t.Fatalf("unexpected account: %+v", updated)
	}

	previous := alice.AvatarID
	withAvatar, err := f.accounts.UpdateAvatar(ctx, alice.ID, "/tmp/new.png")
	if err != nil {
		t.Fatalf("update avatar: %v", err)
	}
	if withAvatar.AvatarID == previous || withAvatar.Avatar == alice.Avatar {
		t.Fatalf("expected new avatar, got %+v", withAvatar)
	}
	if len(f.media.deleted) != 1 || f.media.deleted[0] != previous {
		t.Fatalf("expected previous avatar deleted, got %v", f.media.deleted)
	}

	if _, err := f.accounts.UpdateCoverImage(ctx, alice.ID, ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing cover, got %v", err)
	}
}

func TestSubscriptionToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	for i, want := range []models.SubscriptionState{models.Subscribed, models.Unsubscribed, models.Subscribed} {
		got, err := f.subscriptions.Toggle(ctx, alice.ID, bob.ID)
		if err != nil {
			t.Fatalf("toggle %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("toggle %d: expected %s, got %s", i, want, got)
		}
	}

	if _, err := f.subscriptions.Toggle(ctx, alice.ID, alice.ID); !apperr.Is(err, apperr.KindSelfReference) {
		t.Fatalf("expected self reference, got %v", err)
	}
	if _, err := f.subscriptions.Toggle(ctx, alice.ID, "not-an-id"); !apperr.Is(err, apperr.KindInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
	if _, err := f.subscriptions.Toggle(ctx, alice.ID, "5f0c7d3e-4b1a-4c2e-9a8b-1d2e3f4a5b6c"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected unknown channel, got %v", err)
	}

	profile, err := f.accounts.ChannelProfile(ctx, alice.ID, "BOB")
	if err != nil {
		t.Fatalf("channel profile: %v", err)
	}
	if profile.SubscribersCount != 1 || !profile.IsSubscribed {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if _, err := f.accounts.ChannelProfile(ctx, alice.ID, "nobody"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected unknown channel, got %v", err)
	}
}

func TestSubscribersPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	channel := f.register(t, "channel")
	for i := 0; i < 45; i++ {
		subscriber := f.register(t, fmt.Sprintf("sub%02d", i))
		if _, err := f.subscriptions.Toggle(ctx, subscriber.ID, channel.ID); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}

	page, err := f.subscriptions.Subscribers(ctx, channel.ID, models.PageRequest{Page: 3, Limit: 20})
	if err != nil {
		t.Fatalf("subscribers: %v", err)
	}
	if page.TotalCount != 45 || page.TotalPages != 3 || page.CurrentPage != 3 || len(page.Items) != 5 {
		t.Fatalf("unexpected page: total=%d pages=%d current=%d items=%d",
			page.TotalCount, page.TotalPages, page.CurrentPage, len(page.Items))
	}

	far, err := f.subscriptions.Subscribers(ctx, channel.ID, models.PageRequest{Page: math.MaxInt / 10, Limit: 20})
	if err != nil {
		t.Fatalf("subscribers far past the end: %v", err)
	}
	if far.TotalCount != 45 || far.TotalPages != 3 || len(far.Items) != 0 || far.CurrentPage > models.MaxPage {
		t.Fatalf("unexpected far page: total=%d pages=%d current=%d items=%d",
			far.TotalCount, far.TotalPages, far.CurrentPage, len(far.Items))
	}

	defaults, err := f.subscriptions.Subscribers(ctx, channel.ID, models.PageRequest{})
	if err != nil {
		t.Fatalf("subscribers with defaults: %v", err)
	}
	if defaults.CurrentPage != 1 || len(defaults.Items) != models.DefaultLimit {
		t.Fatalf("expected default page size, got current=%d items=%d", defaults.CurrentPage, len(defaults.Items))
	}

	channels, err := f.subscriptions.SubscribedChannels(ctx, page.Items[0].Subscriber.ID, models.PageRequest{})
	if err != nil {
		t.Fatalf("subscribed channels: %v", err)
	}
	if channels.TotalCount != 1 || channels.Items[0].Channel.ID != channel.ID {
		t.Fatalf("unexpected channels: %+v", channels)
	}
}

func TestPlaylistLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	other := f.register(t, "other")
	video := f.publish(t, owner, "first clip")

	if _, err := f.playlists.Create(ctx, owner.ID, "  ", "desc"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	playlist, err := f.playlists.Create(ctx, owner.ID, "Mix", "Favourites")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	added, err := f.playlists.AddVideo(ctx, owner.ID, playlist.ID, video.ID)
	if err != nil {
		t.Fatalf("add video: %v", err)
	}
	if len(added.Videos) != 1 || added.Videos[0] != video.ID {
		t.Fatalf("unexpected playlist videos: %v", added.Videos)
	}
	if _, err := f.playlists.AddVideo(ctx, owner.ID, playlist.ID, video.ID); !apperr.Is(err, apperr.KindDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if _, err := f.playlists.AddVideo(ctx, other.ID, playlist.ID, video.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for non-owner, got %v", err)
	}
	if _, err := f.playlists.AddVideo(ctx, owner.ID, playlist.ID, "5f0c7d3e-4b1a-4c2e-9a8b-1d2e3f4a5b6c"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected missing video, got %v", err)
	}

	detail, err := f.playlists.Detail(ctx, playlist.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Owner.Username != "owner" || len(detail.Videos) != 1 || detail.Videos[0].Title != "first clip" {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	for i := 0; i < 2; i++ {
		removed, err := f.playlists.RemoveVideo(ctx, owner.ID, playlist.ID, video.ID)
		if err != nil {
			t.Fatalf("remove %d: %v", i, err)
		}
		if len(removed.Videos) != 0 {
			t.Fatalf("remove %d: expected empty playlist, got %v", i, removed.Videos)
		}
	}

	renamed, err := f.playlists.Update(ctx, owner.ID, playlist.ID, "Mix 2", "Still favourites")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if renamed.Name != "Mix 2" {
		t.Fatalf("unexpected name %q", renamed.Name)
	}

	owned, err := f.playlists.ListByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(owned) != 1 || owned[0].Owner.ID != owner.ID {
		t.Fatalf("unexpected owned playlists: %+v", owned)
	}

	if _, err := f.playlists.Delete(ctx, other.ID, playlist.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found deleting another user's playlist, got %v", err)
	}
	if _, err := f.playlists.Delete(ctx, owner.ID, playlist.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.playlists.Detail(ctx, playlist.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected deleted playlist to be gone, got %v", err)
	}
}

func TestVideoPublishAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")

	if _, err := f.videos.Publish(ctx, owner.ID, VideoInput{Title: "x", Description: "long enough", VideoPath: "/v", ThumbnailPath: "/t"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected short title rejected, got %v", err)
	}
	if _, err := f.videos.Publish(ctx, owner.ID, VideoInput{Title: "fine", Description: "long enough", VideoPath: "/v"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected missing thumbnail rejected, got %v", err)
	}

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"alpha", "bravo", "charlie"} {
		f.videos.NowFunc = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		video := f.publish(t, owner, title)
		if video.Duration != 95 || video.Owner == nil || video.Owner.Username != "owner" || !video.IsPublished {
			t.Fatalf("unexpected published video: %+v", video)
		}
	}

	page, err := f.videos.List(ctx, ListVideosInput{OwnerID: owner.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalCount != 3 || page.Items[0].Title != "charlie" || page.Items[2].Title != "alpha" {
		t.Fatalf("expected newest first, got %+v", page.Items)
	}

	asc, err := f.videos.List(ctx, ListVideosInput{OwnerID: owner.ID, SortBy: "title", SortType: "asc", Query: "a"})
	if err != nil {
		t.Fatalf("list sorted: %v", err)
	}
	if len(asc.Items) != 3 || asc.Items[0].Title != "alpha" {
		t.Fatalf("unexpected ascending order: %+v", asc.Items)
	}

	if _, err := f.videos.List(ctx, ListVideosInput{OwnerID: owner.ID, SortBy: "password"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected unknown sort field rejected, got %v", err)
	}
	if _, err := f.videos.List(ctx, ListVideosInput{OwnerID: "5f0c7d3e-4b1a-4c2e-9a8b-1d2e3f4a5b6c"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected unknown owner, got %v", err)
	}
}

func TestVideoPublishDiscardsVideoWhenThumbnailFails(t *testing.T) {
	f := newFixture(t)
	owner := f.register(t, "owner")
	f.media.failPath = "/tmp/thumb.png"

	_, err := f.videos.Publish(context.Background(), owner.ID, VideoInput{
		Title: "clip", Description: "a description", VideoPath: "/tmp/clip.mp4", ThumbnailPath: "/tmp/thumb.png",
	})
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if got := f.media.stored(); got != 1 {
		t.Fatalf("expected only the avatar to remain stored, got %d objects", got)
	}
}

func TestVideoOwnerScopedMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	other := f.register(t, "other")
	video := f.publish(t, owner, "clip")

	if _, err := f.videos.TogglePublish(ctx, other.ID, video.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for non-owner, got %v", err)
	}
	toggled, err := f.videos.TogglePublish(ctx, owner.ID, video.ID)
	if err != nil {
		t.Fatalf("toggle publish: %v", err)
	}
	if toggled.IsPublished {
		t.Fatal("expected video to be unpublished")
	}

	oldThumbnail := video.Thumbnail.PublicID
	updated, err := f.videos.Update(ctx, owner.ID, video.ID, VideoInput{
		Title: "clip v2", Description: "new description", ThumbnailPath: "/tmp/new-thumb.png",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "clip v2" || updated.Thumbnail.PublicID == oldThumbnail || updated.VideoFile != video.VideoFile {
		t.Fatalf("unexpected updated video: %+v", updated)
	}
	if len(f.media.deleted) != 1 || f.media.deleted[0] != oldThumbnail {
		t.Fatalf("expected superseded thumbnail deleted, got %v", f.media.deleted)
	}

	if _, err := f.videos.Delete(ctx, other.ID, video.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found deleting another user's video, got %v", err)
	}
	if _, err := f.videos.Delete(ctx, owner.ID, video.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.videos.Get(ctx, video.ID); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected deleted video to be gone, got %v", err)
	}
	if _, err := f.videos.Get(ctx, "bad-id"); !apperr.Is(err, apperr.KindInvalidID) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestWatchRecordsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.register(t, "owner")
	viewer := f.register(t, "viewer")
	first := f.publish(t, owner, "first")
	second := f.publish(t, owner, "second")

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	watches := []models.Video{first, second, first}
	for i, video := range watches {
		f.videos.NowFunc = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		if _, err := f.videos.Watch(ctx, viewer.ID, video.ID); err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
	}

	watched, err := f.videos.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if watched.Views != 2 {
		t.Fatalf("expected 2 views, got %d", watched.Views)
	}

	history, err := f.accounts.WatchHistory(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("watch history: %v", err)
	}
	if len(history) != 2 || history[0].ID != first.ID || history[1].ID != second.ID {
		t.Fatalf("expected most recent first without duplicates, got %+v", history)
	}
}

func TestStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	f.store.FailWith(repositories.ErrUnavailable)
	if _, _, err := f.accounts.Login(ctx, "alice", "secret-alice"); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("login: expected unavailable, got %v", err)
	}
	if _, err := f.subscriptions.Toggle(ctx, alice.ID, bob.ID); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("toggle: expected unavailable, got %v", err)
	}
	if _, err := f.subscriptions.Subscribers(ctx, bob.ID, models.PageRequest{}); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("subscribers: expected unavailable, got %v", err)
	}
}
