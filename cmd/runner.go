package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/repositories"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/desertthunder/subfeed/internal/tasks"
	"github.com/urfave/cli/v3"
)

const defaultProfile = "default"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config      *shared.Config
	configPath  string
	identity    services.IdentityProvider
	identityErr error
	source      services.FeedSource
	lookup      services.VideoLookup
	db          *sql.DB
	ownsDB      bool
	credentials *repositories.CredentialRepository
	runs        *repositories.FeedRunRepository
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	now         func() time.Time
	openBrowser func(string) error
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Services left nil are built from Config.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	Identity    services.IdentityProvider
	Source      services.FeedSource
	Lookup      services.VideoLookup
	DB          *sql.DB // migrated on first use; opened from Config when nil
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Now         func() time.Time
	OpenBrowser func(string) error
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	r := &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		identity:    opts.Identity,
		source:      opts.Source,
		lookup:      opts.Lookup,
		db:          opts.DB,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		now:         opts.Now,
		openBrowser: opts.OpenBrowser,
	}

	if r.identity == nil {
		identity, err := services.NewGoogleIdentity(r.config.Credentials.Google, services.WithIdentityClient(r.httpClient))
		if err != nil {
			r.identityErr = err
		} else {
			r.identity = identity
		}
	}

	if r.source == nil {
		r.source = services.NewYouTubeService(services.YouTubeOpts{
			BaseURL: r.config.Credentials.YouTube.BaseURL,
			APIKey:  r.config.Credentials.YouTube.APIKey,
			Executor: services.NewExecutor(services.ExecutorOpts{
				HTTPClient:        r.httpClient,
				Backoff:           r.config.Feed.Backoff(),
				RequestsPerSecond: r.config.Feed.RequestsPerSecond,
				Logger:            r.logger,
			}),
		})
	}

	return r
}

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// Close releases the database if the runner opened it.
func (r *Runner) Close() error {
	if r.db != nil && r.ownsDB {
		return r.db.Close()
	}
	return nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, subscriptionsCommand, feedCommand, historyCommand,
		searchCommand, channelCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// open returns the database, opening it from the config on first use.
func (r *Runner) open() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	r.db, r.ownsDB = db, true
	return db, nil
}

// store opens and migrates the database on first use.
func (r *Runner) store(ctx context.Context) (*repositories.CredentialRepository, *repositories.FeedRunRepository, error) {
	if r.credentials != nil {
		return r.credentials, r.runs, nil
	}

	db, err := r.open()
	if err != nil {
		return nil, nil, err
	}
	if err := shared.RunMigrationsContext(ctx, db); err != nil {
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.credentials = repositories.NewCredentialRepository(r.db)
	r.runs = repositories.NewFeedRunRepository(r.db)
	return r.credentials, r.runs, nil
}

func (r *Runner) requireIdentity() (services.IdentityProvider, error) {
	if r.identity != nil {
		return r.identity, nil
	}
	if r.identityErr != nil {
		return nil, fmt.Errorf("google client is not configured: %w", r.identityErr)
	}
	return nil, fmt.Errorf("%w: google client is not configured", shared.ErrMissingCredentials)
}

// refresher returns the identity as a [tasks.Refresher], or a nil interface without one.
func (r *Runner) refresher() tasks.Refresher {
	if r.identity == nil {
		return nil
	}
	return r.identity
}

func (r *Runner) engine(opts tasks.FeedOpts) tasks.FeedEngine {
	return tasks.NewSubscriptionEngine(r.source, r.refresher(), opts)
}

// loadCredential reads the stored credential of profile.
func (r *Runner) loadCredential(ctx context.Context, profile string) (*models.StoredCredential, error) {
	creds, _, err := r.store(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := creds.Get(ctx, profile)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("%w: no credential for profile %q, run `subfeed auth login --profile %s`",
			shared.ErrNotAuthenticated, profile, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	return stored, nil
}

// freshCredential refreshes a stored credential that is close to expiry and persists the result.
func (r *Runner) freshCredential(ctx context.Context, stored *models.StoredCredential) (models.Credential, error) {
	cred := stored.Credential
	if r.identity == nil || !cred.NeedsRefresh(r.now(), r.config.Feed.RefreshMargin()) {
		return cred, nil
	}

	next, err := r.identity.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return models.Credential{}, err
	}
	cred = cred.Merge(next)
	r.saveCredential(ctx, stored.Profile, cred)
	return cred, nil
}

func (r *Runner) saveCredential(ctx context.Context, profile string, cred models.Credential) {
	creds, _, err := r.store(ctx)
	if err == nil {
		err = creds.Save(context.WithoutCancel(ctx), &models.StoredCredential{Profile: profile, Credential: cred})
	}
	if err != nil {
		r.logger.Warn("failed to persist refreshed credential", "profile", profile, "error", err)
		return
	}
	r.logger.Debug("credential refreshed", "profile", profile, "expires_at", cred.ExpiresAt)
}

// aggregate runs the feed engine for a stored profile, persisting a refreshed credential and a run summary.
func (r *Runner) aggregate(ctx context.Context, stored *models.StoredCredential, opts tasks.FeedOpts, progress chan<- tasks.ProgressUpdate) (*tasks.FeedResult, error) {
	if opts.Now == nil {
		opts.Now = r.now
	}
	started := r.now()
	result, err := r.engine(opts).Aggregate(ctx, stored.Credential, progress)

	run := &models.FeedRun{Profile: stored.Profile, StartedAt: started, FinishedAt: r.now()}
	if err != nil {
		run.Error = err.Error()
	} else {
		run.Channels = result.Channels
		run.Playlists = result.Playlists
		run.FailedChannels = result.FailedChannels
		run.Videos = len(result.Videos)
		run.Refreshed = result.Refreshed
		if result.Refreshed {
			r.saveCredential(ctx, stored.Profile, result.Credential)
		}
	}

	if _, runs, storeErr := r.store(ctx); storeErr == nil {
		if saveErr := runs.Save(context.WithoutCancel(ctx), run); saveErr != nil {
			r.logger.Warn("failed to record feed run", "error", saveErr)
		}
	}

	if errors.Is(err, shared.ErrUnauthorized) {
		return nil, fmt.Errorf("%w (run `subfeed auth login --profile %s` to sign in again)", err, stored.Profile)
	}
	return result, err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
