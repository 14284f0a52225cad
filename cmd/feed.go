package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/subfeed/internal/formatter"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/desertthunder/subfeed/internal/tasks"
	"github.com/urfave/cli/v3"
)

type runSummary struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	DurationMS     int64     `json:"duration_ms"`
	Channels       int       `json:"channels"`
	Playlists      int       `json:"playlists"`
	FailedChannels int       `json:"failed_channels"`
	Videos         int       `json:"videos"`
	Refreshed      bool      `json:"refreshed"`
	Error          string    `json:"error,omitempty"`
}

// Feed aggregates the subscription feed of --profile and prints or exports it.
func (r *Runner) Feed(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	opts := tasks.NewFeedOpts(r.config.Feed, r.logger)
	if cmd.IsSet("max") {
		opts.MaxPerChannel = cmd.Int("max")
	}
	if cmd.IsSet("exact") {
		opts.ExactCap = cmd.Bool("exact")
	}
	if cmd.IsSet("concurrency") {
		opts.MaxConcurrency = cmd.Int("concurrency")
	}
	if cmd.IsSet("timeout") {
		opts.Timeout = cmd.Duration("timeout")
	}
	if opts.MaxPerChannel < 0 || opts.MaxConcurrency < 0 || opts.Timeout < 0 {
		return fmt.Errorf("%w: --max, --concurrency and --timeout must not be negative", shared.ErrInvalidArgument)
	}

	stored, err := r.loadCredential(ctx, cmd.String("profile"))
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			r.logger.Debug(update.Message, "phase", update.Phase, "step", update.Step, "total", update.Total)
		}
	}()

	result, err := r.aggregate(ctx, stored, opts, progress)
	close(progress)
	<-done
	if err != nil {
		return err
	}

	if result.FailedChannels > 0 {
		r.logger.Warn("some channels could not be fetched", "failed", result.FailedChannels, "channels", result.Playlists)
	}
	r.logger.Info("feed built", "videos", len(result.Videos), "channels", result.Channels)

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(result.Videos, format, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d videos to %s\n", len(result.Videos), written)
	}

	if format == formatter.FormatPretty {
		return r.writePlain("%s\n", formatter.RenderPretty(result.Videos, 0))
	}

	data, err := formatter.Export(result.Videos, format)
	if err != nil {
		return err
	}
	return r.writeBytes(data)
}

// Subscriptions prints the channels the profile is subscribed to.
func (r *Runner) Subscriptions(ctx context.Context, cmd *cli.Command) error {
	stored, err := r.loadCredential(ctx, cmd.String("profile"))
	if err != nil {
		return err
	}

	cred, err := r.freshCredential(ctx, stored)
	if err != nil {
		return err
	}

	channels, err := tasks.ResolveSubscriptions(ctx, r.source, cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	if cmd.Bool("json") {
		if channels == nil {
			channels = []models.Channel{}
		}
		return r.writeJSON(channels, true)
	}

	r.writePlain("Subscribed channels: %d\n", len(channels))
	for _, ch := range channels {
		if err := r.writePlain("  %-32s %s\n", ch.Title, ch.URL); err != nil {
			return err
		}
	}
	return nil
}

// History lists the most recent feed runs of --profile.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	_, runs, err := r.store(ctx)
	if err != nil {
		return err
	}

	list, err := runs.ListByProfile(ctx, cmd.String("profile"), cmd.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list feed runs: %w", err)
	}

	summaries := make([]runSummary, 0, len(list))
	for _, run := range list {
		summaries = append(summaries, summarize(run))
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, true)
	}

	if len(summaries) == 0 {
		return r.writePlain("No feed runs recorded for profile %q\n", cmd.String("profile"))
	}

	for _, s := range summaries {
		status := fmt.Sprintf("%d videos from %d channels", s.Videos, s.Playlists)
		if s.FailedChannels > 0 {
			status += fmt.Sprintf(", %d failed", s.FailedChannels)
		}
		if s.Error != "" {
			status = "error: " + s.Error
		}
		if err := r.writePlain("%s  %6dms  %s\n", s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.DurationMS, status); err != nil {
			return err
		}
	}
	return nil
}

func summarize(run *models.FeedRun) runSummary {
	return runSummary{
		ID:             run.RunID,
		StartedAt:      run.StartedAt,
		DurationMS:     run.Duration().Milliseconds(),
		Channels:       run.Channels,
		Playlists:      run.Playlists,
		FailedChannels: run.FailedChannels,
		Videos:         run.Videos,
		Refreshed:      run.Refreshed,
		Error:          run.Error,
	}
}
