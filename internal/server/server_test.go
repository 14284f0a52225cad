package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/desertthunder/subfeed/internal/tasks"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeIdentity struct {
	cred models.Credential
	err  error
	code string
}

func (f *fakeIdentity) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeIdentity) Exchange(ctx context.Context, code string) (models.Credential, error) {
	f.code = code
	return f.cred, f.err
}

func (f *fakeIdentity) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	return models.Credential{}, shared.ErrRefreshFailed
}

type fakeEngine struct {
	result *tasks.FeedResult
	err    error
	got    models.Credential
}

func (f *fakeEngine) Aggregate(ctx context.Context, cred models.Credential, progress chan<- tasks.ProgressUpdate) (*tasks.FeedResult, error) {
	f.got = cred
	return f.result, f.err
}

type fakeSource struct {
	channels []models.Channel
	err      error
	token    string
}

func (f *fakeSource) SubscriptionsPage(ctx context.Context, accessToken, pageToken string) (services.Page[models.Channel], error) {
	f.token = accessToken
	return services.Page[models.Channel]{Items: f.channels}, f.err
}

func (f *fakeSource) UploadPlaylists(ctx context.Context, accessToken string, channelIDs []string) (map[string]string, error) {
	return nil, nil
}

func (f *fakeSource) PlaylistItemsPage(ctx context.Context, accessToken, playlistID, pageToken string, pageSize int) (services.Page[services.PlaylistItem], error) {
	return services.Page[services.PlaylistItem]{}, nil
}

type fakeLookup struct {
	details []models.VideoDetail
	err     error
	query   string
	max     int
	method  string
}

func (f *fakeLookup) SearchVideos(ctx context.Context, query string, maxResults int) ([]models.VideoDetail, error) {
	f.method, f.query, f.max = "search", query, maxResults
	return f.details, f.err
}

func (f *fakeLookup) ChannelVideos(ctx context.Context, query string, maxResults int) ([]models.VideoDetail, error) {
	f.method, f.query, f.max = "channel", query, maxResults
	return f.details, f.err
}

type fixture struct {
	identity *fakeIdentity
	engine   *fakeEngine
	source   *fakeSource
	lookup   *fakeLookup
	states   *StateStore
	api      *API
	handler  http.Handler
}

func newFixture(t *testing.T, frontend string) *fixture {
	t.Helper()
	f := &fixture{
		identity: &fakeIdentity{cred: models.Credential{
			AccessToken: "at", RefreshToken: "rt", ExpiresAt: fixedNow.Add(time.Hour),
		}},
		engine: &fakeEngine{result: &tasks.FeedResult{}},
		source: &fakeSource{},
		lookup: &fakeLookup{},
		states: NewStateStore(time.Minute),
	}
	f.api = NewAPI(APIOpts{
		Identity:    f.identity,
		Source:      f.source,
		Engine:      f.engine,
		Catalog:     f.lookup,
		States:      f.states,
		FrontendURL: frontend,
		Logger:      shared.NewLogger(io.Discard),
		Now:         func() time.Time { return fixedNow },
	})
	f.handler = NewHandler(f.api, []string{"http://localhost:3000"})
	return f
}

func (f *fixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("invalid JSON body %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestLogin(t *testing.T) {
	for _, path := range []string{"/", "/login"} {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t, "")
			rec := f.do(http.MethodGet, path, nil)

			if rec.Code != http.StatusFound {
				t.Fatalf("expected 302, got %d", rec.Code)
			}
			loc, err := url.Parse(rec.Header().Get("Location"))
			if err != nil {
				t.Fatalf("invalid location: %v", err)
			}
			if loc.Query().Get("state") == "" || f.states.Len() != 1 {
				t.Errorf("expected an issued state, location %s", loc)
			}
		})
	}

	t.Run("unknown path", func(t *testing.T) {
		f := newFixture(t, "")
		if rec := f.do(http.MethodGet, "/nope", nil); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		f := newFixture(t, "")
		if rec := f.do(http.MethodPost, "/login", nil); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestCallback(t *testing.T) {
	t.Run("returns tokens as JSON", func(t *testing.T) {
		f := newFixture(t, "")
		state := f.states.Issue()

		rec := f.do(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
		}
		tokens := decode[tokenResponse](t, rec)
		if tokens.AccessToken != "at" || tokens.RefreshToken != "rt" || tokens.ExpiresIn != 3600 {
			t.Errorf("unexpected tokens %+v", tokens)
		}
		if f.identity.code != "abc" {
			t.Errorf("expected code abc, got %s", f.identity.code)
		}
	})

	t.Run("redirects to the frontend", func(t *testing.T) {
		f := newFixture(t, "http://localhost:3000/done?tab=feed")
		state := f.states.Issue()

		rec := f.do(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		loc, _ := url.Parse(rec.Header().Get("Location"))
		q := loc.Query()
		if loc.Host != "localhost:3000" || loc.Path != "/done" {
			t.Errorf("unexpected redirect %s", loc)
		}
		if q.Get("access_token") != "at" || q.Get("refresh_token") != "rt" || q.Get("expires_in") != "3600" || q.Get("tab") != "feed" {
			t.Errorf("unexpected params %v", q)
		}
	})

	t.Run("rejects unknown and reused state", func(t *testing.T) {
		f := newFixture(t, "")
		if rec := f.do(http.MethodGet, "/auth/callback?code=abc&state=forged", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}

		state := f.states.Issue()
		f.do(http.MethodGet, "/auth/callback?code=abc&state="+state, nil)
		if rec := f.do(http.MethodGet, "/auth/callback?code=abc&state="+state, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("expected reused state to fail with 400, got %d", rec.Code)
		}
	})

	t.Run("provider error", func(t *testing.T) {
		f := newFixture(t, "")
		rec := f.do(http.MethodGet, "/auth/callback?error=access_denied", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if !strings.Contains(decode[errorResponse](t, rec).Error, "access_denied") {
			t.Errorf("expected provider error in body, got %s", rec.Body)
		}
	})

	t.Run("missing code", func(t *testing.T) {
		f := newFixture(t, "")
		state := f.states.Issue()
		if rec := f.do(http.MethodGet, "/auth/callback?state="+state, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		f := newFixture(t, "")
		f.identity.err = fmt.Errorf("%w: invalid_grant", shared.ErrAuthFailed)
		state := f.states.Issue()
		if rec := f.do(http.MethodGet, "/auth/callback?code=bad&state="+state, nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestSubscriptionVideos(t *testing.T) {
	videos := []models.Video{
		{VideoID: "b", Title: "B", PublishedAt: fixedNow},
		{VideoID: "a", Title: "A", PublishedAt: fixedNow.Add(-time.Hour)},
	}

	t.Run("requires a bearer token", func(t *testing.T) {
		f := newFixture(t, "")
		for _, h := range []http.Header{nil, {"Authorization": {"Basic abc"}}, bearer(" ")} {
			if rec := f.do(http.MethodGet, "/subscriptions/videos", h); rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 for %v, got %d", h, rec.Code)
			}
		}
	})

	t.Run("passes refresh headers to the engine", func(t *testing.T) {
		f := newFixture(t, "")
		h := bearer("tok")
		h.Set(RefreshTokenHeader, "rt")
		h.Set(ExpiresInHeader, "120")

		if rec := f.do(http.MethodGet, "/subscriptions/videos", h); rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		got := f.engine.got
		if got.AccessToken != "tok" || got.RefreshToken != "rt" || !got.ExpiresAt.Equal(fixedNow.Add(2*time.Minute)) {
			t.Errorf("unexpected credential %+v", got)
		}
	})

	t.Run("rejects a malformed expires_in", func(t *testing.T) {
		f := newFixture(t, "")
		h := bearer("tok")
		h.Set(ExpiresInHeader, "soon")
		if rec := f.do(http.MethodGet, "/subscriptions/videos", h); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("returns the feed", func(t *testing.T) {
		f := newFixture(t, "")
		f.engine.result = &tasks.FeedResult{Videos: videos, Channels: 3, Playlists: 2, FailedChannels: 1}

		rec := f.do(http.MethodGet, "/subscriptions/videos", bearer("tok"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %s", ct)
		}

		body := decode[feedResponse](t, rec)
		if body.Count != 2 || body.Channels != 3 || body.FailedChannels != 1 {
			t.Errorf("unexpected counters %+v", body)
		}
		if body.Videos[0].VideoID != "b" || body.Videos[1].VideoID != "a" {
			t.Error("expected engine order to be kept")
		}
		if body.Credential != nil {
			t.Error("credential should only be returned after a refresh")
		}
		if body.Message != "Found 2 videos from 2 channels" {
			t.Errorf("unexpected message %q", body.Message)
		}
	})

	t.Run("returns a refreshed credential", func(t *testing.T) {
		f := newFixture(t, "")
		f.engine.result = &tasks.FeedResult{
			Videos:     videos,
			Refreshed:  true,
			Credential: models.Credential{AccessToken: "fresh", RefreshToken: "rt", ExpiresAt: fixedNow.Add(30 * time.Minute)},
		}

		body := decode[feedResponse](t, f.do(http.MethodGet, "/subscriptions/videos", bearer("stale")))
		if body.Credential == nil || body.Credential.AccessToken != "fresh" || body.Credential.ExpiresIn != 1800 {
			t.Errorf("unexpected credential %+v", body.Credential)
		}
	})

	t.Run("empty feed", func(t *testing.T) {
		f := newFixture(t, "")
		f.engine.result = &tasks.FeedResult{}

		rec := f.do(http.MethodGet, "/subscriptions/videos", bearer("tok"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"videos":[]`) {
			t.Errorf("expected an empty array, got %s", rec.Body)
		}
		if body := decode[feedResponse](t, rec); body.Message != "No recent videos from your subscriptions" {
			t.Errorf("unexpected message %q", body.Message)
		}
	})

	t.Run("maps fatal errors", func(t *testing.T) {
		tc := []struct {
			err  error
			want int
		}{
			{fmt.Errorf("failed to resolve subscriptions: %w", shared.ErrUnauthorized), http.StatusUnauthorized},
			{shared.ErrRateLimited, http.StatusTooManyRequests},
			{shared.ErrUpstream, http.StatusBadGateway},
			{context.DeadlineExceeded, http.StatusGatewayTimeout},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tt := range tc {
			f := newFixture(t, "")
			f.engine.result, f.engine.err = nil, tt.err
			if rec := f.do(http.MethodGet, "/subscriptions/videos", bearer("tok")); rec.Code != tt.want {
				t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
			}
		}
	})
}

func TestSubscriptions(t *testing.T) {
	t.Run("lists channels with their titles", func(t *testing.T) {
		f := newFixture(t, "")
		f.source.channels = []models.Channel{
			{ChannelID: "UC1", Title: "Gophers", Thumbnail: "https://yt3.example/UC1.jpg"},
			{ChannelID: "UC2", Title: "Rustaceans"},
		}

		rec := f.do(http.MethodGet, "/subscriptions", bearer("tok"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[channelsResponse](t, rec)
		if body.Count != 2 || body.Channels[1] != "UC2" || f.source.token != "tok" {
			t.Errorf("unexpected body %+v", body)
		}
		if len(body.Subscriptions) != 2 || body.Subscriptions[0].Title != "Gophers" || body.Subscriptions[0].Thumbnail == "" {
			t.Errorf("expected channel snippets, got %+v", body.Subscriptions)
		}
	})

	t.Run("empty", func(t *testing.T) {
		f := newFixture(t, "")
		rec := f.do(http.MethodGet, "/subscriptions", bearer("tok"))
		for _, field := range []string{`"channels":[]`, `"subscriptions":[]`} {
			if !strings.Contains(rec.Body.String(), field) {
				t.Errorf("expected %s, got %s", field, rec.Body)
			}
		}
	})

	t.Run("unauthorized", func(t *testing.T) {
		f := newFixture(t, "")
		f.source.err = shared.ErrUnauthorized
		if rec := f.do(http.MethodGet, "/subscriptions", bearer("tok")); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})
}

func TestLookups(t *testing.T) {
	t.Run("search", func(t *testing.T) {
		f := newFixture(t, "")
		f.lookup.details = []models.VideoDetail{{VideoID: "v1"}}

		rec := f.do(http.MethodGet, "/search/golang%20generics?max_results=5", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if f.lookup.method != "search" || f.lookup.query != "golang generics" || f.lookup.max != 5 {
			t.Errorf("unexpected call %+v", f.lookup)
		}
		if body := decode[detailsResponse](t, rec); body.Count != 1 {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("channel videos", func(t *testing.T) {
		f := newFixture(t, "")
		rec := f.do(http.MethodGet, "/videos/gophers", nil)
		if rec.Code != http.StatusOK || f.lookup.method != "channel" || f.lookup.max != 0 {
			t.Errorf("unexpected response %d %+v", rec.Code, f.lookup)
		}
		if !strings.Contains(rec.Body.String(), `"videos":[]`) {
			t.Errorf("expected empty array, got %s", rec.Body)
		}
	})

	t.Run("unknown channel", func(t *testing.T) {
		f := newFixture(t, "")
		f.lookup.err = fmt.Errorf("%w: no channel matches", shared.ErrNotFound)
		if rec := f.do(http.MethodGet, "/videos/nobody", nil); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("invalid max_results", func(t *testing.T) {
		f := newFixture(t, "")
		if rec := f.do(http.MethodGet, "/search/go?max_results=lots", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		api := NewAPI(APIOpts{Logger: shared.NewLogger(io.Discard)})
		h := NewHandler(api, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search/go", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})
}

func TestNewAPI(t *testing.T) {
	api := NewAPI(APIOpts{})

	if api.opts.Logger == nil || api.opts.Logger == log.Default() {
		t.Error("expected a private discard logger by default")
	}
	if api.opts.States == nil || api.opts.Now == nil {
		t.Error("expected state store and clock defaults")
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body)
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("request id", func(t *testing.T) {
		f := newFixture(t, "")

		rec := f.do(http.MethodGet, "/healthz", nil)
		if id := rec.Header().Get(RequestIDHeader); len(id) != 36 {
			t.Errorf("expected a uuid request id, got %q", id)
		}

		rec = f.do(http.MethodGet, "/healthz", http.Header{RequestIDHeader: {"given"}})
		if id := rec.Header().Get(RequestIDHeader); id != "given" {
			t.Errorf("expected incoming id to be kept, got %q", id)
		}
	})

	t.Run("headers over the wire", func(t *testing.T) {
		f := newFixture(t, "")
		srv := httptest.NewServer(f.handler)
		defer srv.Close()

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/subscriptions/videos", nil)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer tok")
		req.Header.Set(RequestIDHeader, "from-client")
		req.Header.Set(RefreshTokenHeader, "rt")
		req.Header.Set(ExpiresInHeader, "60")

		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if id := resp.Header.Get(RequestIDHeader); id != "from-client" {
			t.Errorf("expected incoming id to be kept, got %q", id)
		}
		if got := f.engine.got; got.RefreshToken != "rt" || !got.ExpiresAt.Equal(fixedNow.Add(time.Minute)) {
			t.Errorf("unexpected credential %+v", got)
		}
	})

	t.Run("CORS", func(t *testing.T) {
		f := newFixture(t, "")

		rec := f.do(http.MethodGet, "/healthz", http.Header{"Origin": {"http://localhost:3000"}})
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("expected allowed origin, got %q", got)
		}
		if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), RefreshTokenHeader) {
			t.Error("expected refresh_token to be an allowed header")
		}

		rec = f.do(http.MethodGet, "/healthz", http.Header{"Origin": {"http://evil.example"}})
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS header for unknown origin, got %q", got)
		}

		rec = f.do(http.MethodOptions, "/subscriptions/videos", http.Header{
			"Origin":                        {"http://localhost:3000"},
			"Access-Control-Request-Method": {"GET"},
		})
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected preflight 204, got %d", rec.Code)
		}
	})

	t.Run("CORS wildcard", func(t *testing.T) {
		h := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://anywhere.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "http://anywhere.example" {
			t.Error("expected any origin to be allowed")
		}
	})

	t.Run("recovers from panics", func(t *testing.T) {
		router := NewBasicRouter()
		router.Use(Recover(shared.NewLogger(io.Discard)))
		router.HandleFunc(http.MethodGet, "/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("applies middleware in order", func(t *testing.T) {
		var order []string
		tag := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router := NewBasicRouter()
		router.Use(tag("first"), tag("second"))
		router.HandleFunc(http.MethodGet, "/x", func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		})
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected order %v", order)
		}
	})
}

func TestStateStore(t *testing.T) {
	t.Run("single use", func(t *testing.T) {
		s := NewStateStore(0)
		state := s.Issue()
		if !s.Consume(state) {
			t.Fatal("expected issued state to be accepted")
		}
		if s.Consume(state) {
			t.Error("expected state to be single use")
		}
		if s.Consume("") {
			t.Error("empty state must not be accepted")
		}
	})

	t.Run("expiry", func(t *testing.T) {
		now := fixedNow
		s := NewStateStore(time.Minute)
		s.now = func() time.Time { return now }

		state := s.Issue()
		now = now.Add(2 * time.Minute)
		if s.Consume(state) {
			t.Error("expected expired state to be rejected")
		}

		s.Issue()
		now = now.Add(2 * time.Minute)
		s.Issue()
		if s.Len() != 1 {
			t.Errorf("expected expired states to be swept, have %d", s.Len())
		}
	})
}

func TestOAuthHandler(t *testing.T) {
	callback := func(h *OAuthHandler, query string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?"+query, nil))
		return rec
	}

	t.Run("success", func(t *testing.T) {
		id := &fakeIdentity{cred: models.Credential{AccessToken: "at"}}
		h := NewOAuthHandler(id, "s1", "")

		if routes := h.Routes(); len(routes) != 1 || routes[0] != "/auth/callback" {
			t.Errorf("unexpected routes %v", routes)
		}

		rec := callback(h, "state=s1&code=c1")
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Signed in") {
			t.Errorf("unexpected response %d", rec.Code)
		}

		result := <-h.Result()
		if result.Error() != nil || result.Credential.AccessToken != "at" {
			t.Errorf("unexpected result %+v", result)
		}

		if rec := callback(h, "state=s1&code=c1"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected second callback to be rejected, got %d", rec.Code)
		}
	})

	t.Run("invalid state", func(t *testing.T) {
		h := NewOAuthHandler(&fakeIdentity{}, "s1", "/cb")
		if rec := callback(h, "state=other&code=c1"); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		result := <-h.Result()
		if !errors.Is(result.Error(), shared.ErrInvalidState) {
			t.Errorf("expected ErrInvalidState, got %v", result.Error())
		}
	})

	t.Run("denied", func(t *testing.T) {
		h := NewOAuthHandler(&fakeIdentity{}, "s1", "")
		callback(h, "state=s1&error=access_denied")
		result := <-h.Result()
		if !errors.Is(result.Error(), shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", result.Error())
		}
	})

	t.Run("exchange failure", func(t *testing.T) {
		h := NewOAuthHandler(&fakeIdentity{err: shared.ErrAuthFailed}, "s1", "")
		if rec := callback(h, "state=s1&code=bad"); rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		if result := <-h.Result(); result.Error() == nil {
			t.Error("expected an error result")
		}
	})
}

func TestStatusFor(t *testing.T) {
	tc := map[error]int{
		shared.ErrUnauthorized:     http.StatusUnauthorized,
		shared.ErrNotAuthenticated: http.StatusUnauthorized,
		shared.ErrRefreshFailed:    http.StatusUnauthorized,
		shared.ErrRateLimited:      http.StatusTooManyRequests,
		shared.ErrInvalidArgument:  http.StatusBadRequest,
		shared.ErrInvalidState:     http.StatusBadRequest,
		shared.ErrNotFound:         http.StatusNotFound,
		shared.ErrTransport:        http.StatusBadGateway,
		shared.ErrPagination:       http.StatusBadGateway,
		shared.ErrInvalidConfig:    http.StatusInternalServerError,
	}
	for err, want := range tc {
		if got := StatusFor(fmt.Errorf("wrapped: %w", err)); got != want {
			t.Errorf("StatusFor(%v) = %d, want %d", err, got, want)
		}
	}
}

func TestListenAndServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), shared.NewLogger(io.Discard))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
