package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/subfeed/internal/shared"
	"golang.org/x/oauth2"
)

// tokenServer is a fake Google token endpoint that accepts the code "good" and the refresh token "rt".
func tokenServer(t *testing.T) (*httptest.Server, *[]url.Values) {
	t.Helper()
	var forms []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		forms = append(forms, r.PostForm)

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.PostForm.Get("grant_type") == "authorization_code" && r.PostForm.Get("code") == "good":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "access", "refresh_token": "refresh", "token_type": "Bearer", "expires_in": 3600,
			})
		case r.PostForm.Get("grant_type") == "refresh_token" && r.PostForm.Get("refresh_token") == "rt":
			json.NewEncoder(w).Encode(map[string]any{
				"access_token": "renewed", "token_type": "Bearer", "expires_in": 3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &forms
}

func newTestIdentity(t *testing.T) (*GoogleIdentity, *[]url.Values) {
	t.Helper()
	srv, forms := tokenServer(t)
	g, err := NewGoogleIdentity(
		shared.GoogleConfig{ClientID: "id", ClientSecret: "secret", RedirectURI: "http://localhost:8080/auth/callback"},
		WithIdentityEndpoint(oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token", AuthStyle: oauth2.AuthStyleInParams}),
		WithIdentityClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("failed to create identity: %v", err)
	}
	return g, forms
}

func TestGoogleIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("NewGoogleIdentity", func(t *testing.T) {
		tc := []struct {
			name string
			cfg  shared.GoogleConfig
		}{
			{"missing client id", shared.GoogleConfig{ClientSecret: "s"}},
			{"missing client secret", shared.GoogleConfig{ClientID: "id"}},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if _, err := NewGoogleIdentity(tt.cfg); !errors.Is(err, shared.ErrMissingCredentials) {
					t.Errorf("expected ErrMissingCredentials, got %v", err)
				}
			})
		}

		t.Run("default redirect", func(t *testing.T) {
			g, err := NewGoogleIdentity(shared.GoogleConfig{ClientID: "id", ClientSecret: "s"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if g.RedirectURL() != "http://localhost:8080/auth/callback" {
				t.Errorf("unexpected redirect %s", g.RedirectURL())
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		g, _ := newTestIdentity(t)
		u, err := url.Parse(g.AuthURL("state-123"))
		if err != nil {
			t.Fatalf("invalid auth url: %v", err)
		}

		q := u.Query()
		for key, want := range map[string]string{
			"state":         "state-123",
			"access_type":   "offline",
			"prompt":        "consent",
			"client_id":     "id",
			"response_type": "code",
			"scope":         YouTubeReadonlyScope,
		} {
			if q.Get(key) != want {
				t.Errorf("expected %s=%s, got %s", key, want, q.Get(key))
			}
		}
	})

	t.Run("WithRedirectURL copies", func(t *testing.T) {
		g, _ := newTestIdentity(t)
		local := g.WithRedirectURL("http://127.0.0.1:9999/callback")

		if local.RedirectURL() != "http://127.0.0.1:9999/callback" {
			t.Errorf("unexpected redirect %s", local.RedirectURL())
		}
		if g.RedirectURL() != "http://localhost:8080/auth/callback" {
			t.Error("original identity was modified")
		}
		if !strings.Contains(local.AuthURL("s"), url.QueryEscape("http://127.0.0.1:9999/callback")) {
			t.Error("auth url does not carry the new redirect")
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		t.Run("success", func(t *testing.T) {
			g, forms := newTestIdentity(t)
			cred, err := g.Exchange(ctx, "good")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cred.AccessToken != "access" || cred.RefreshToken != "refresh" {
				t.Errorf("unexpected credential %+v", cred)
			}
			if cred.ExpiresAt.Before(time.Now().Add(50 * time.Minute)) {
				t.Errorf("expected expiry about an hour out, got %v", cred.ExpiresAt)
			}
			if (*forms)[0].Get("client_secret") != "secret" {
				t.Error("expected client credentials in the form body")
			}
		})

		t.Run("rejected code", func(t *testing.T) {
			g, _ := newTestIdentity(t)
			if _, err := g.Exchange(ctx, "bad"); !errors.Is(err, shared.ErrAuthFailed) {
				t.Errorf("expected ErrAuthFailed, got %v", err)
			}
		})

		t.Run("empty code", func(t *testing.T) {
			g, forms := newTestIdentity(t)
			if _, err := g.Exchange(ctx, ""); !errors.Is(err, shared.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if len(*forms) != 0 {
				t.Error("expected no token request")
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("success", func(t *testing.T) {
			g, forms := newTestIdentity(t)
			cred, err := g.Refresh(ctx, "rt")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if cred.AccessToken != "renewed" {
				t.Errorf("expected renewed access token, got %s", cred.AccessToken)
			}
			if cred.ExpiresAt.IsZero() {
				t.Error("expected an expiry")
			}
			if len(*forms) != 1 || (*forms)[0].Get("grant_type") != "refresh_token" {
				t.Errorf("expected one refresh grant, got %v", *forms)
			}
		})

		t.Run("rejected refresh token", func(t *testing.T) {
			g, _ := newTestIdentity(t)
			if _, err := g.Refresh(ctx, "revoked"); !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
		})

		t.Run("missing refresh token", func(t *testing.T) {
			g, forms := newTestIdentity(t)
			if _, err := g.Refresh(ctx, ""); !errors.Is(err, shared.ErrRefreshFailed) {
				t.Errorf("expected ErrRefreshFailed, got %v", err)
			}
			if len(*forms) != 0 {
				t.Error("expected no token request")
			}
		})
	})
}
