package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/server"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultLoginTimeout = 2 * time.Minute

type credentialStatus struct {
	Profile    string    `json:"profile"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	Expired    bool      `json:"expired"`
	CanRefresh bool      `json:"can_refresh"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AuthLogin runs the browser sign-in and stores the credential under --profile.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	profile := cmd.String("profile")

	identity, err := r.requireIdentity()
	if err != nil {
		return err
	}

	cred, err := r.doOAuth(ctx, identity, cmd.Duration("timeout"))
	if err != nil {
		return err
	}

	creds, _, err := r.store(ctx)
	if err != nil {
		return err
	}
	if err := creds.Save(ctx, &models.StoredCredential{Profile: profile, Credential: cred}); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	r.logger.Info("credential stored", "profile", profile)
	r.writePlain("✓ Signed in as profile %q\n", profile)
	if !cred.CanRefresh() {
		r.writePlain("⚠ Google returned no refresh token; you will need to sign in again when it expires.\n")
	}
	return nil
}

// AuthStatus lists stored credentials.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	creds, _, err := r.store(ctx)
	if err != nil {
		return err
	}

	stored, err := creds.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	now := r.now()
	statuses := make([]credentialStatus, 0, len(stored))
	for _, s := range stored {
		statuses = append(statuses, credentialStatus{
			Profile:    s.Profile,
			ExpiresAt:  s.Credential.ExpiresAt,
			Expired:    !s.Credential.ExpiresAt.IsZero() && !now.Before(s.Credential.ExpiresAt),
			CanRefresh: s.Credential.CanRefresh(),
			UpdatedAt:  s.UpdatedAt,
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(statuses, true)
	}

	if len(statuses) == 0 {
		return r.writePlain("No stored credentials. Run `subfeed auth login` to sign in.\n")
	}

	for _, s := range statuses {
		var state string
		switch {
		case s.ExpiresAt.IsZero():
			state = "no known expiry"
		case s.Expired:
			state = "expired"
		default:
			state = fmt.Sprintf("expires in %s", s.ExpiresAt.Sub(now).Round(time.Second))
		}
		refresh := "no refresh token"
		if s.CanRefresh {
			refresh = "refreshable"
		}
		if err := r.writePlain("%-16s %s (%s)\n", s.Profile, state, refresh); err != nil {
			return err
		}
	}
	return nil
}

// AuthLogout deletes the credential of --profile.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	profile := cmd.String("profile")

	creds, _, err := r.store(ctx)
	if err != nil {
		return err
	}
	if err := creds.Delete(ctx, profile); err != nil {
		return fmt.Errorf("failed to delete credential for %q: %w", profile, err)
	}

	r.logger.Info("credential deleted", "profile", profile)
	return r.writePlain("✓ Signed out profile %q\n", profile)
}

// doOAuth serves the redirect URI locally, sends the user to the consent screen and waits for the callback.
func (r *Runner) doOAuth(ctx context.Context, identity services.IdentityProvider, timeout time.Duration) (models.Credential, error) {
	redirect := r.config.Credentials.Google.RedirectURI
	if redirect == "" {
		redirect = services.DefaultRedirectURL
	}
	callback, err := url.Parse(redirect)
	if err != nil || callback.Host == "" {
		return models.Credential{}, fmt.Errorf("%w: redirect_uri %q is not an absolute URL", shared.ErrInvalidConfig, redirect)
	}
	if timeout <= 0 {
		timeout = defaultLoginTimeout
	}

	state := shared.GenerateID()
	oauthHandler := server.NewOAuthHandler(identity, state, callback.Path)
	router := server.NewBasicRouter()
	router.Handler(oauthHandler)

	srvCtx, stop := context.WithCancel(ctx)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", callback.Host)
		serverErrors <- server.ListenAndServe(srvCtx, callback.Host, router, r.logger)
	}()
	defer func() {
		stop()
		<-serverErrors
	}()

	time.Sleep(100 * time.Millisecond)

	authURL := identity.AuthURL(state)
	r.writePlain("→ Opening browser for Google sign-in...\n")
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		serverErrors <- err
		return models.Credential{}, fmt.Errorf("callback server error: %w", err)
	case <-timer.C:
		return models.Credential{}, fmt.Errorf("%w: authorization timed out after %s", shared.ErrAuthFailed, timeout)
	case <-ctx.Done():
		return models.Credential{}, ctx.Err()
	}

	if result.Error() != nil {
		return models.Credential{}, fmt.Errorf("authorization failed: %w", result.Error())
	}
	if err := result.Credential.Validate(); err != nil {
		return models.Credential{}, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return result.Credential, nil
}
