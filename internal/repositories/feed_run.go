package repositories

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
)

var feedRunColumns = []string{
	"id", "profile", "channels", "playlists", "failed_channels", "videos", "refreshed", "error", "started_at", "finished_at",
}

// FeedRunRepository implements [models.Repository] for [models.FeedRun] history.
type FeedRunRepository struct {
	db *sql.DB
}

// NewFeedRunRepository creates a new [FeedRunRepository] with the given database connection
func NewFeedRunRepository(db *sql.DB) *FeedRunRepository {
	return &FeedRunRepository{db: db}
}

// Save inserts a run, generating its id when unset. The profile must have a stored credential.
func (r *FeedRunRepository) Save(ctx context.Context, run *models.FeedRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if run.RunID == "" {
		run.RunID = shared.GenerateID()
	}

	query, args, err := build(sq.Insert("feed_runs").
		Columns(feedRunColumns...).
		Values(run.RunID, run.Profile, run.Channels, run.Playlists, run.FailedChannels, run.Videos,
			run.Refreshed, run.Error, run.StartedAt.UTC(), run.FinishedAt.UTC()))
	if err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert feed run: %w", err)
	}
	return nil
}

// Get retrieves a run by id.
func (r *FeedRunRepository) Get(ctx context.Context, id string) (*models.FeedRun, error) {
	query, args, err := build(sq.Select(feedRunColumns...).From("feed_runs").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}

	run, err := scanFeedRun(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFound(err, "feed run", id)
	}
	return run, nil
}

// Delete removes a run by id.
func (r *FeedRunRepository) Delete(ctx context.Context, id string) error {
	query, args, err := build(sq.Delete("feed_runs").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete feed run: %w", err)
	}
	return requireAffected(result, "feed run", id)
}

// List retrieves every run, newest first.
func (r *FeedRunRepository) List(ctx context.Context) ([]*models.FeedRun, error) {
	return r.query(ctx, sq.Select(feedRunColumns...).From("feed_runs").OrderBy("started_at DESC"))
}

// ListByProfile retrieves the latest runs of profile, newest first. limit <= 0 returns all of them.
func (r *FeedRunRepository) ListByProfile(ctx context.Context, profile string, limit int) ([]*models.FeedRun, error) {
	stmt := sq.Select(feedRunColumns...).From("feed_runs").Where(sq.Eq{"profile": profile}).OrderBy("started_at DESC")
	if limit > 0 {
		stmt = stmt.Limit(uint64(limit))
	}
	return r.query(ctx, stmt)
}

func (r *FeedRunRepository) query(ctx context.Context, stmt sq.SelectBuilder) ([]*models.FeedRun, error) {
	query, args, err := build(stmt)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.FeedRun
	for rows.Next() {
		run, err := scanFeedRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func scanFeedRun(row rowScanner) (*models.FeedRun, error) {
	var run models.FeedRun
	err := row.Scan(&run.RunID, &run.Profile, &run.Channels, &run.Playlists, &run.FailedChannels,
		&run.Videos, &run.Refreshed, &run.Error, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

var _ models.Repository[*models.FeedRun] = (*FeedRunRepository)(nil)
