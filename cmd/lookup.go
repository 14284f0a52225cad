package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/subfeed/internal/formatter"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/urfave/cli/v3"
)

// authorizedClient is implemented by identities that can wrap a credential in an HTTP client.
type authorizedClient interface {
	Client(ctx context.Context, cred models.Credential) *http.Client
}

// Search prints videos matching the query argument.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	return r.runLookup(ctx, cmd, func(lookup services.VideoLookup, query string, n int) ([]models.VideoDetail, error) {
		return lookup.SearchVideos(ctx, query, n)
	})
}

// Channel prints the latest uploads of the channel best matching the query argument.
func (r *Runner) Channel(ctx context.Context, cmd *cli.Command) error {
	return r.runLookup(ctx, cmd, func(lookup services.VideoLookup, query string, n int) ([]models.VideoDetail, error) {
		return lookup.ChannelVideos(ctx, query, n)
	})
}

func (r *Runner) runLookup(ctx context.Context, cmd *cli.Command, fn func(services.VideoLookup, string, int) ([]models.VideoDetail, error)) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	lookup, err := r.catalog(ctx, cmd.String("profile"))
	if err != nil {
		return err
	}

	details, err := fn(lookup, query, cmd.Int("max"))
	if err != nil {
		return err
	}
	r.logger.Debug("lookup finished", "query", query, "results", len(details))

	data, err := formatter.ExportDetails(details, format)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// catalog returns the configured lookup. Without an API key it falls back to the stored credential of profile.
func (r *Runner) catalog(ctx context.Context, profile string) (services.VideoLookup, error) {
	if r.lookup != nil {
		return r.lookup, nil
	}

	opts := services.CatalogOpts{
		APIKey:     r.config.Credentials.YouTube.APIKey,
		BaseURL:    r.config.Credentials.YouTube.BaseURL,
		HTTPClient: r.httpClient,
	}

	if opts.APIKey == "" {
		client, ok := r.identity.(authorizedClient)
		if !ok {
			return nil, fmt.Errorf("%w: set credentials.youtube.api_key or configure the google client", shared.ErrMissingCredentials)
		}
		stored, err := r.loadCredential(ctx, profile)
		if err != nil {
			return nil, err
		}
		cred, err := r.freshCredential(ctx, stored)
		if err != nil {
			return nil, err
		}
		opts.HTTPClient = client.Client(ctx, cred)
	}

	catalog, err := services.NewCatalog(ctx, opts)
	if err != nil {
		if errors.Is(err, shared.ErrMissingCredentials) {
			return nil, fmt.Errorf("%w (set credentials.youtube.api_key or run `subfeed auth login`)", err)
		}
		return nil, err
	}

	r.lookup = catalog
	return catalog, nil
}
