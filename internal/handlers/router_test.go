package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vidstream/backend/internal/auth"
	"github.com/vidstream/backend/internal/media"
	"github.com/vidstream/backend/internal/metrics"
	"github.com/vidstream/backend/internal/middleware"
	"github.com/vidstream/backend/internal/models"
	"github.com/vidstream/backend/internal/repositories"
	"github.com/vidstream/backend/internal/services"
)

// spoolCheckingMedia asserts uploads arrive as readable local files.
type spoolCheckingMedia struct {
	mu      sync.Mutex
	t       *testing.T
	uploads int
}

func (m *spoolCheckingMedia) Upload(_ context.Context, path string, kind media.Kind) (media.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := os.ReadFile(path)
	if err != nil {
		m.t.Errorf("spooled upload %s unreadable: %v", path, err)
	}
	if len(data) == 0 {
		m.t.Errorf("spooled upload %s is empty", path)
	}
	m.uploads++
	id := fmt.Sprintf("%ss/%d", kind, m.uploads)
	asset := media.Asset{MediaRef: models.MediaRef{URL: "https://cdn.test/" + id, PublicID: id}}
	if kind == media.KindVideo {
		asset.Duration = 42
	}
	return asset, nil
}

func (m *spoolCheckingMedia) Delete(context.Context, string) error { return nil }

func (m *spoolCheckingMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uploads
}

type testServer struct {
	handler http.Handler
	store   *repositories.MemoryStore
	media   *spoolCheckingMedia
	dir     string
}

func newTestServer(t *testing.T, limiter middleware.RateLimiter) *testServer {
	t.Helper()
	store := repositories.NewMemoryStore()
	files := &spoolCheckingMedia{t: t}
	tokens := auth.NewTokenService(auth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    time.Hour,
		Issuer:        "vidstream-test",
	}, store.Users())

	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	dir := t.TempDir()
	handler := NewRouter(Dependencies{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Accounts:      services.Accounts{Users: store.Users(), Tokens: tokens, Media: files},
		Subscriptions: services.Subscriptions{Users: store.Users(), Edges: store.Subscriptions()},
		Playlists:     services.Playlists{Store: store.Playlists(), Videos: store.Videos(), Users: store.Users()},
		Videos: services.Videos{
			Store:   store.Videos(),
			Users:   store.Users(),
			History: store.Users(),
			Media:   files,
		},
		Tokens:      tokens,
		Identities:  store.Users(),
		AuthLimiter: limiter,
		Uploads:     Uploads{Dir: dir, MaxBytes: 1 << 20},
		Health:      store,
		Metrics:     registry,
	})
	return &testServer{handler: handler, store: store, media: files, dir: dir}
}

func (s *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, filename := range files {
		part, err := writer.CreateFormFile(name, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("content of " + filename)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, payload any) *http.Request {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Success    bool            `json:"success"`
	Errors     []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, data any) envelope {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("expected status %d got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}
	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.StatusCode != wantStatus || env.Success != (wantStatus < 400) {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	if data != nil {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func (s *testServer) register(t *testing.T, username string) models.User {
	t.Helper()
	req := multipartRequest(t, http.MethodPost, "/api/v1/users/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret-" + username,
		"fullName": "User " + username,
	}, map[string]string{"avatar": username + ".png"})
	var user models.User
	decodeEnvelope(t, s.do(t, req), http.StatusCreated, &user)
	return user
}

func (s *testServer) login(t *testing.T, username string) (models.SessionTokens, []*http.Cookie) {
	t.Helper()
	rec := s.do(t, jsonRequest(t, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": username,
		"password": "secret-" + username,
	}))
	var resp loginResponse
	decodeEnvelope(t, rec, http.StatusOK, &resp)
	return models.SessionTokens{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, rec.Result().Cookies()
}

func bearer(req *http.Request, tokens models.SessionTokens) *http.Request {
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
	return req
}

func cookieValue(cookies []*http.Cookie, name string) (*http.Cookie, bool) {
	for _, c := range cookies {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := srv.register(t, "alice")
	if alice.Username != "alice" || alice.Avatar == "" {
		t.Fatalf("unexpected registered user: %+v", alice)
	}

	dup := multipartRequest(t, http.MethodPost, "/api/v1/users/register", map[string]string{
		"username": "alice2", "email": "ALICE@example.com", "password": "x", "fullName": "A",
	}, map[string]string{"avatar": "a.png"})
	decodeEnvelope(t, srv.do(t, dup), http.StatusConflict, nil)

	tokens, cookies := srv.login(t, "alice")
	access, ok := cookieValue(cookies, middleware.AccessTokenCookie)
	if !ok || !access.HttpOnly || access.Value != tokens.AccessToken {
		t.Fatalf("expected http-only access cookie, got %+v", cookies)
	}
	refresh, ok := cookieValue(cookies, middleware.RefreshTokenCookie)
	if !ok {
		t.Fatal("expected refresh cookie")
	}

	me := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	me.AddCookie(access)
	var current models.User
	decodeEnvelope(t, srv.do(t, me), http.StatusOK, &current)
	if current.ID != alice.ID {
		t.Fatalf("expected current user %s got %s", alice.ID, current.ID)
	}

	rotate := httptest.NewRequest(http.MethodPost, "/api/v1/users/refresh-token", nil)
	rotate.AddCookie(refresh)
	var rotated models.SessionTokens
	decodeEnvelope(t, srv.do(t, rotate), http.StatusOK, &rotated)
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}

	reuse := jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{RefreshToken: tokens.RefreshToken})
	decodeEnvelope(t, srv.do(t, reuse), http.StatusUnauthorized, nil)

	logout := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/users/logout", nil), rotated)
	rec := srv.do(t, logout)
	decodeEnvelope(t, rec, http.StatusOK, nil)
	if cleared, ok := cookieValue(rec.Result().Cookies(), middleware.RefreshTokenCookie); !ok || cleared.MaxAge >= 0 {
		t.Fatalf("expected refresh cookie cleared, got %+v", cleared)
	}

	after := jsonRequest(t, http.MethodPost, "/api/v1/users/refresh-token", refreshRequest{RefreshToken: rotated.RefreshToken})
	decodeEnvelope(t, srv.do(t, after), http.StatusUnauthorized, nil)
}

func TestRegisterRejectsUnexpectedFiles(t *testing.T) {
	srv := newTestServer(t, nil)
	req := multipartRequest(t, http.MethodPost, "/api/v1/users/register", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "x", "fullName": "Bob",
	}, map[string]string{"avatar": "a.png", "resume": "cv.pdf"})

	env := decodeEnvelope(t, srv.do(t, req), http.StatusBadRequest, nil)
	if len(env.Errors) != 1 || env.Errors[0].Field != "resume" {
		t.Fatalf("expected resume field rejected, got %+v", env.Errors)
	}
	if srv.media.count() != 0 {
		t.Fatal("media store must not be called for rejected uploads")
	}
	entries, err := os.ReadDir(srv.dir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no spooled files left behind, found %d", len(entries))
	}
}

func TestRegisterRequiresAvatar(t *testing.T) {
	srv := newTestServer(t, nil)
	req := multipartRequest(t, http.MethodPost, "/api/v1/users/register", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "x", "fullName": "Bob",
	}, nil)
	env := decodeEnvelope(t, srv.do(t, req), http.StatusBadRequest, nil)
	if len(env.Errors) == 0 || env.Errors[0].Field != "avatar" {
		t.Fatalf("expected avatar error, got %+v", env.Errors)
	}
}

func TestUploadsRejectOversizedBodies(t *testing.T) {
	srv := newTestServer(t, nil)
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("avatar", "big.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte("x"), 2<<20)); err != nil {
		t.Fatalf("write: %v", err)
	}
	writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/register", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	decodeEnvelope(t, srv.do(t, req), http.StatusBadRequest, nil)
}

func TestProtectedRoutesRequireAuthentication(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, target := range []string{"/api/v1/users/current-user", "/api/v1/videos?userId=x", "/api/v1/users/history"} {
		env := decodeEnvelope(t, srv.do(t, httptest.NewRequest(http.MethodGet, target, nil)), http.StatusUnauthorized, nil)
		if env.Message == "" {
			t.Fatalf("%s: expected error message", target)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	decodeEnvelope(t, srv.do(t, req), http.StatusUnauthorized, nil)
}

func TestSubscriptionEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	alice := srv.register(t, "alice")
	bob := srv.register(t, "bob")
	tokens, _ := srv.login(t, "alice")

	self := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/c/"+alice.ID, nil), tokens)
	decodeEnvelope(t, srv.do(t, self), http.StatusBadRequest, nil)

	badID := bearer(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/c/not-an-id", nil), tokens)
	decodeEnvelope(t, srv.do(t, badID), http.StatusBadRequest, nil)

	var toggled toggleResponse
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/c/"+bob.ID, nil), tokens)), http.StatusOK, &toggled)
	if toggled.State != models.Subscribed {
		t.Fatalf("expected subscribed, got %s", toggled.State)
	}

	var page models.Page[models.SubscriberEntry]
	list := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/c/"+bob.ID+"?page=1&limit=5", nil), tokens)
	decodeEnvelope(t, srv.do(t, list), http.StatusOK, &page)
	if page.TotalCount != 1 || page.TotalPages != 1 || page.Items[0].Subscriber.ID != alice.ID {
		t.Fatalf("unexpected subscribers page: %+v", page)
	}

	var channels models.Page[models.ChannelEntry]
	mine := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/u/"+alice.ID, nil), tokens)
	decodeEnvelope(t, srv.do(t, mine), http.StatusOK, &channels)
	if channels.TotalCount != 1 || channels.Items[0].Channel.ID != bob.ID {
		t.Fatalf("unexpected channels page: %+v", channels)
	}

	var profile models.ChannelProfile
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/c/bob", nil), tokens)), http.StatusOK, &profile)
	if !profile.IsSubscribed || profile.SubscribersCount != 1 {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/c/"+bob.ID, nil), tokens)), http.StatusOK, &toggled)
	if toggled.State != models.Unsubscribed {
		t.Fatalf("expected unsubscribed, got %s", toggled.State)
	}
}

func TestVideoAndPlaylistEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	owner := srv.register(t, "owner")
	srv.register(t, "other")
	tokens, _ := srv.login(t, "owner")
	otherTokens, _ := srv.login(t, "other")

	publish := bearer(multipartRequest(t, http.MethodPost, "/api/v1/videos", map[string]string{
		"title": "My first video", "description": "something to watch",
	}, map[string]string{"videoFile": "clip.mp4", "thumbnail": "thumb.png"}), tokens)
	var video models.Video
	decodeEnvelope(t, srv.do(t, publish), http.StatusCreated, &video)
	if video.Duration != 42 || video.Owner == nil || video.Owner.ID != owner.ID {
		t.Fatalf("unexpected video: %+v", video)
	}

	missingThumb := bearer(multipartRequest(t, http.MethodPost, "/api/v1/videos", map[string]string{
		"title": "Another", "description": "something to watch",
	}, map[string]string{"videoFile": "clip.mp4"}), tokens)
	decodeEnvelope(t, srv.do(t, missingThumb), http.StatusBadRequest, nil)

	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/videos", nil), tokens)), http.StatusBadRequest, nil)
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/videos?userId="+owner.ID+"&sortBy=owner", nil), tokens)), http.StatusBadRequest, nil)

	var page models.Page[models.Video]
	list := bearer(httptest.NewRequest(http.MethodGet, "/api/v1/videos?userId="+owner.ID+"&query=FIRST", nil), tokens)
	decodeEnvelope(t, srv.do(t, list), http.StatusOK, &page)
	if page.TotalCount != 1 || page.Items[0].ID != video.ID {
		t.Fatalf("unexpected video page: %+v", page)
	}

	var watched models.Video
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodPost, "/api/v1/videos/"+video.ID+"/watch", nil), otherTokens)), http.StatusOK, &watched)
	if watched.Views != 1 {
		t.Fatalf("expected one view, got %d", watched.Views)
	}
	var history []models.Video
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/history", nil), otherTokens)), http.StatusOK, &history)
	if len(history) != 1 || history[0].ID != video.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodPatch, "/api/v1/videos/"+video.ID+"/publish", nil), otherTokens)), http.StatusNotFound, nil)

	var playlist models.Playlist
	create := bearer(jsonRequest(t, http.MethodPost, "/api/v1/playlists", playlistRequest{Name: "Mix", Description: "Best of"}), tokens)
	decodeEnvelope(t, srv.do(t, create), http.StatusCreated, &playlist)

	add := "/api/v1/playlists/" + playlist.ID + "/videos/" + video.ID
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodPost, add, nil), tokens)), http.StatusOK, &playlist)
	if len(playlist.Videos) != 1 {
		t.Fatalf("expected one video in playlist, got %v", playlist.Videos)
	}
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodPost, add, nil), tokens)), http.StatusConflict, nil)
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodPost, add, nil), otherTokens)), http.StatusNotFound, nil)

	var detail models.PlaylistDetail
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/playlists/"+playlist.ID, nil), tokens)), http.StatusOK, &detail)
	if len(detail.Videos) != 1 || detail.Videos[0].Title != "My first video" {
		t.Fatalf("unexpected playlist detail: %+v", detail)
	}

	for i := 0; i < 2; i++ {
		decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodDelete, add, nil), tokens)), http.StatusOK, nil)
	}

	var owned []models.OwnedPlaylist
	decodeEnvelope(t, srv.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/playlists/user/"+owner.ID, nil)), http.StatusOK, &owned)
	if len(owned) != 1 || owned[0].ID != playlist.ID {
		t.Fatalf("unexpected owned playlists: %+v", owned)
	}

	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodDelete, "/api/v1/videos/"+video.ID, nil), tokens)), http.StatusOK, nil)
	decodeEnvelope(t, srv.do(t, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/videos/"+video.ID, nil), tokens)), http.StatusNotFound, nil)
}

func TestLoginIsRateLimited(t *testing.T) {
	srv := newTestServer(t, middleware.NewIPRateLimiter(1, time.Minute, 1, time.Minute))
	srv.register(t, "alice")

	body := map[string]string{"username": "alice", "password": "wrong"}
	decodeEnvelope(t, srv.do(t, jsonRequest(t, http.MethodPost, "/api/v1/users/login", body)), http.StatusUnauthorized, nil)
	decodeEnvelope(t, srv.do(t, jsonRequest(t, http.MethodPost, "/api/v1/users/login", body)), http.StatusTooManyRequests, nil)
}

func TestStoreOutageMapsToServiceUnavailable(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.register(t, "alice")
	srv.store.FailWith(repositories.ErrUnavailable)

	login := jsonRequest(t, http.MethodPost, "/api/v1/users/login", map[string]string{"username": "alice", "password": "secret-alice"})
	decodeEnvelope(t, srv.do(t, login), http.StatusServiceUnavailable, nil)

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected degraded health, got %d", rec.Code)
	}
}

func TestErrorResponseHidesInternalCauses(t *testing.T) {
	status, body := errorResponse(fmt.Errorf("wrap: %w", errors.New("password=hunter2")))
	if status != http.StatusInternalServerError || body.Message != "internal server error" {
		t.Fatalf("unexpected internal error response: %d %+v", status, body)
	}
	if status, _ := errorResponse(auth.ErrTokenExpired); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := srv.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics to be served, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `route="/healthz"`) {
		t.Fatalf("expected route-labelled request metric, got:\n%s", rec.Body.String())
	}
}
