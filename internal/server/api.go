package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/desertthunder/subfeed/internal/tasks"
)

const (
	RefreshTokenHeader = "refresh_token"
	ExpiresInHeader    = "expires_in"
)

// APIOpts holds the collaborators of an [API].
type APIOpts struct {
	Identity    services.IdentityProvider
	Source      services.FeedSource
	Engine      tasks.FeedEngine
	Catalog     services.VideoLookup // optional; search routes answer 503 without it
	States      *StateStore
	FrontendURL string // callback redirects here when set, otherwise the tokens are returned as JSON
	Logger      *log.Logger
	Now         func() time.Time
}

// API serves the login flow and the feed endpoints.
type API struct {
	opts APIOpts
}

type errorResponse struct {
	Error string `json:"error"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

type feedResponse struct {
	Videos         []models.Video `json:"videos"`
	Count          int            `json:"count"`
	Channels       int            `json:"channels"`
	FailedChannels int            `json:"failed_channels"`
	Message        string         `json:"message"`
	Credential     *tokenResponse `json:"credential,omitempty"`
}

type channelsResponse struct {
	Subscriptions []models.Channel `json:"subscriptions"`
	Channels      []string         `json:"channels"`
	Count         int              `json:"count"`
}

type detailsResponse struct {
	Videos []models.VideoDetail `json:"videos"`
	Count  int                  `json:"count"`
}

// NewAPI creates an [API].
func NewAPI(opts APIOpts) *API {
	if opts.States == nil {
		opts.States = NewStateStore(DefaultStateTTL)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	return &API{opts: opts}
}

// Register adds every route to r.
func (a *API) Register(r Router) {
	r.Handle(http.MethodGet, "/{$}", http.HandlerFunc(a.Login))
	r.Handle(http.MethodGet, "/login", http.HandlerFunc(a.Login))
	r.Handle(http.MethodGet, "/auth/callback", http.HandlerFunc(a.Callback))
	r.Handle(http.MethodGet, "/subscriptions", http.HandlerFunc(a.Subscriptions))
	r.Handle(http.MethodGet, "/subscriptions/videos", http.HandlerFunc(a.SubscriptionVideos))
	r.Handle(http.MethodGet, "/search/{query}", http.HandlerFunc(a.Search))
	r.Handle(http.MethodGet, "/videos/{query}", http.HandlerFunc(a.ChannelVideos))
	r.Handle(http.MethodGet, "/healthz", http.HandlerFunc(a.Health))
}

// NewHandler builds a router with the standard middleware and every API route.
func NewHandler(api *API, origins []string) http.Handler {
	router := NewBasicRouter()
	router.Use(Recover(api.opts.Logger), RequestLogger(api.opts.Logger), CORS(origins))
	api.Register(router)
	return router
}

// Login redirects to the Google consent screen.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	state := a.opts.States.Issue()
	http.Redirect(w, r, a.opts.Identity.AuthURL(state), http.StatusFound)
}

// Callback completes the authorization code flow.
func (a *API) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		writeError(w, fmt.Errorf("%w: %s", shared.ErrAuthFailed, e))
		return
	}
	if !a.opts.States.Consume(q.Get("state")) {
		writeError(w, shared.ErrInvalidState)
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, fmt.Errorf("%w: code is required", shared.ErrMissingArgument))
		return
	}

	cred, err := a.opts.Identity.Exchange(r.Context(), code)
	if err != nil {
		a.opts.Logger.Warn("code exchange failed", "err", err)
		writeError(w, err)
		return
	}

	tokens := a.tokens(cred)
	if a.opts.FrontendURL == "" {
		writeJSON(w, http.StatusOK, tokens)
		return
	}

	dest, err := url.Parse(a.opts.FrontendURL)
	if err != nil {
		writeError(w, fmt.Errorf("%w: frontend_url: %v", shared.ErrInvalidConfig, err))
		return
	}
	params := dest.Query()
	params.Set("access_token", tokens.AccessToken)
	params.Set("refresh_token", tokens.RefreshToken)
	params.Set("expires_in", strconv.FormatInt(tokens.ExpiresIn, 10))
	dest.RawQuery = params.Encode()
	http.Redirect(w, r, dest.String(), http.StatusFound)
}

// Subscriptions lists the subscribed channels of the bearer token's owner.
//
// channels repeats the ids of subscriptions for clients that only need ids.
func (a *API) Subscriptions(w http.ResponseWriter, r *http.Request) {
	cred, err := a.credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	channels, err := tasks.ResolveSubscriptions(r.Context(), a.opts.Source, cred.AccessToken)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := channelsResponse{
		Subscriptions: make([]models.Channel, 0, len(channels)),
		Channels:      make([]string, 0, len(channels)),
	}
	for _, ch := range channels {
		resp.Subscriptions = append(resp.Subscriptions, ch)
		resp.Channels = append(resp.Channels, ch.ChannelID)
	}
	resp.Count = len(channels)
	writeJSON(w, http.StatusOK, resp)
}

// SubscriptionVideos aggregates the subscription feed.
func (a *API) SubscriptionVideos(w http.ResponseWriter, r *http.Request) {
	cred, err := a.credential(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := a.opts.Engine.Aggregate(r.Context(), cred, nil)
	if err != nil {
		a.opts.Logger.Warn("aggregation failed", "err", err)
		writeError(w, err)
		return
	}

	resp := feedResponse{
		Videos:         result.Videos,
		Count:          len(result.Videos),
		Channels:       result.Channels,
		FailedChannels: result.FailedChannels,
		Message:        fmt.Sprintf("Found %d videos from %d channels", len(result.Videos), result.Playlists),
	}
	if resp.Videos == nil {
		resp.Videos = []models.Video{}
	}
	if resp.Count == 0 {
		resp.Message = "No recent videos from your subscriptions"
	}
	if result.Refreshed {
		tokens := a.tokens(result.Credential)
		resp.Credential = &tokens
	}
	writeJSON(w, http.StatusOK, resp)
}

// Search runs a keyword video search.
func (a *API) Search(w http.ResponseWriter, r *http.Request) {
	a.lookup(w, r, func(ctx context.Context, query string, n int) ([]models.VideoDetail, error) {
		return a.opts.Catalog.SearchVideos(ctx, query, n)
	})
}

// ChannelVideos lists the latest uploads of the first channel matching the query.
func (a *API) ChannelVideos(w http.ResponseWriter, r *http.Request) {
	a.lookup(w, r, func(ctx context.Context, query string, n int) ([]models.VideoDetail, error) {
		return a.opts.Catalog.ChannelVideos(ctx, query, n)
	})
}

// Health answers liveness checks.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, int) ([]models.VideoDetail, error)) {
	if a.opts.Catalog == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "video lookup is not configured"})
		return
	}

	query := strings.TrimSpace(r.PathValue("query"))
	if query == "" {
		writeError(w, fmt.Errorf("%w: query is required", shared.ErrMissingArgument))
		return
	}

	n := 0
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, fmt.Errorf("%w: max_results must be a non-negative integer", shared.ErrInvalidArgument))
			return
		}
		n = v
	}

	details, err := fn(r.Context(), query, n)
	if err != nil {
		writeError(w, err)
		return
	}
	if details == nil {
		details = []models.VideoDetail{}
	}
	writeJSON(w, http.StatusOK, detailsResponse{Videos: details, Count: len(details)})
}

// credential reads the bearer token and the optional refresh headers.
func (a *API) credential(r *http.Request) (models.Credential, error) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return models.Credential{}, fmt.Errorf("%w: bearer token required", shared.ErrNotAuthenticated)
	}

	cred := models.Credential{
		AccessToken:  strings.TrimSpace(token),
		RefreshToken: r.Header.Get(RefreshTokenHeader),
	}
	if raw := r.Header.Get(ExpiresInHeader); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return models.Credential{}, fmt.Errorf("%w: %s must be a number of seconds", shared.ErrInvalidArgument, ExpiresInHeader)
		}
		cred.ExpiresAt = a.opts.Now().Add(time.Duration(secs) * time.Second)
	}
	return cred, nil
}

func (a *API) tokens(cred models.Credential) tokenResponse {
	return tokenResponse{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresIn:    int64(cred.ExpiresIn(a.opts.Now()).Seconds()),
	}
}

// StatusFor maps an error to the HTTP status the API answers with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrUnauthorized),
		errors.Is(err, shared.ErrNotAuthenticated),
		errors.Is(err, shared.ErrRefreshFailed),
		errors.Is(err, shared.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, shared.ErrInvalidArgument),
		errors.Is(err, shared.ErrMissingArgument),
		errors.Is(err, shared.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, shared.ErrUpstream),
		errors.Is(err, shared.ErrTransport),
		errors.Is(err, shared.ErrPagination):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, StatusFor(err), errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := shared.MarshalJSON(v, false)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
