package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/desertthunder/subfeed/internal/tasks"
	"github.com/desertthunder/subfeed/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive feed browser for --profile.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	profile := cmd.String("profile")
	if _, err := r.loadCredential(ctx, profile); err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger("./tmp/subfeed-tui.log")
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, r.feedLoader(profile))
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}

// feedLoader re-reads the stored credential on every load so a refresh from a previous load is reused.
func (r *Runner) feedLoader(profile string) ui.LoadFunc {
	return func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.FeedResult, error) {
		stored, err := r.loadCredential(ctx, profile)
		if err != nil {
			return nil, err
		}
		return r.aggregate(ctx, stored, tasks.NewFeedOpts(r.config.Feed, r.logger), progress)
	}
}
