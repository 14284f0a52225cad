package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
	"golang.org/x/oauth2"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	YouTubeReadonlyScope = "https://www.googleapis.com/auth/youtube.readonly"

	// DefaultRedirectURL is used when the config leaves redirect_uri empty.
	DefaultRedirectURL = "http://localhost:8080/auth/callback"
)

// IdentityProvider issues and refreshes delegated credentials.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (models.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (models.Credential, error)
}

// GoogleIdentity implements [IdentityProvider] with Google's OAuth2 endpoints.
type GoogleIdentity struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// IdentityOption customizes a [GoogleIdentity].
type IdentityOption func(*GoogleIdentity)

// WithIdentityEndpoint overrides Google's authorize and token URLs.
func WithIdentityEndpoint(endpoint oauth2.Endpoint) IdentityOption {
	return func(g *GoogleIdentity) { g.config.Endpoint = endpoint }
}

// WithIdentityClient sets the HTTP client used for token requests.
func WithIdentityClient(client *http.Client) IdentityOption {
	return func(g *GoogleIdentity) { g.httpClient = client }
}

// NewGoogleIdentity creates a [GoogleIdentity] requesting read-only YouTube access.
func NewGoogleIdentity(cfg shared.GoogleConfig, opts ...IdentityOption) (*GoogleIdentity, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("%w: missing google client_id", shared.ErrMissingCredentials)
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: missing google client_secret", shared.ErrMissingCredentials)
	}

	redirectURI := cfg.RedirectURI
	if redirectURI == "" {
		redirectURI = DefaultRedirectURL
	}

	g := &GoogleIdentity{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{YouTubeReadonlyScope},
			Endpoint: oauth2.Endpoint{
				AuthURL:   googleAuthURL,
				TokenURL:  googleTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// RedirectURL returns the callback URL registered with the OAuth client.
func (g *GoogleIdentity) RedirectURL() string {
	return g.config.RedirectURL
}

// WithRedirectURL returns a copy of g that redirects to url, used by the CLI's local callback server.
func (g *GoogleIdentity) WithRedirectURL(url string) *GoogleIdentity {
	config := *g.config
	config.RedirectURL = url
	return &GoogleIdentity{config: &config, httpClient: g.httpClient}
}

// AuthURL returns the consent URL. Offline access and a forced consent prompt make Google issue a refresh token.
func (g *GoogleIdentity) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a credential.
func (g *GoogleIdentity) Exchange(ctx context.Context, code string) (models.Credential, error) {
	if code == "" {
		return models.Credential{}, fmt.Errorf("%w: empty authorization code", shared.ErrInvalidArgument)
	}

	token, err := g.config.Exchange(g.context(ctx), code)
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err)
	}
	return credentialFromToken(token), nil
}

// Refresh obtains a new credential from refreshToken. The previous credential is not touched.
func (g *GoogleIdentity) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	if refreshToken == "" {
		return models.Credential{}, fmt.Errorf("%w: no refresh token", shared.ErrRefreshFailed)
	}

	// An empty access token is never valid, so the source always hits the token endpoint.
	source := g.config.TokenSource(g.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", shared.ErrRefreshFailed, err)
	}
	return credentialFromToken(token), nil
}

// Client returns an HTTP client that authorizes requests with cred's access token.
func (g *GoogleIdentity) Client(ctx context.Context, cred models.Credential) *http.Client {
	return oauth2.NewClient(g.context(ctx), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}))
}

func (g *GoogleIdentity) context(ctx context.Context) context.Context {
	if g.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

func credentialFromToken(token *oauth2.Token) models.Credential {
	return models.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
}
