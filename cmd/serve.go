package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/subfeed/internal/server"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve runs the feed API until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	identity, err := r.requireIdentity()
	if err != nil {
		return err
	}

	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = cmd.Int("port")
	}

	var lookup services.VideoLookup
	if r.lookup != nil || r.config.Credentials.YouTube.APIKey != "" {
		if lookup, err = r.catalog(ctx, ""); err != nil {
			return fmt.Errorf("failed to create video lookup: %w", err)
		}
	} else {
		r.logger.Warn("no youtube api_key configured, /search and /videos are disabled")
	}

	api := server.NewAPI(server.APIOpts{
		Identity:    identity,
		Source:      r.source,
		Engine:      r.engine(tasks.NewFeedOpts(r.config.Feed, r.logger)),
		Catalog:     lookup,
		FrontendURL: cfg.FrontendURL,
		Logger:      r.logger,
		Now:         r.now,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.ListenAndServe(ctx, cfg.Addr(), server.NewHandler(api, cfg.AllowedOrigins), r.logger)
}
