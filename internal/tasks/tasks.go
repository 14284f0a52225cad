// package tasks aggregates a user's YouTube subscriptions into one time-ordered feed.
//
// The core abstraction is FeedEngine, which resolves subscriptions and upload playlists, fans out one collector per channel, and merges the results.
// Aggregation emits progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/shared"
)

const (
	DefaultMaxPerChannel = 5
	DefaultRefreshMargin = 5 * time.Minute
)

// FeedResult contains the merged feed and the credential it was built with.
type FeedResult struct {
	Videos         []models.Video    // Newest first
	Credential     models.Credential // Refreshed when Refreshed is true
	Refreshed      bool
	Channels       int // Distinct subscribed channels
	Playlists      int // Channels with an uploads playlist
	FailedChannels int // Collectors that stopped on an error
}

// FeedEngine builds subscription feeds.
type FeedEngine interface {
	// Aggregate builds the feed for cred. Stage failures are fatal and return no result;
	// per-channel failures only show up in [FeedResult.FailedChannels].
	Aggregate(ctx context.Context, cred models.Credential, progress chan<- ProgressUpdate) (*FeedResult, error)
}

// Refresher renews an access token. [services.GoogleIdentity] satisfies it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.Credential, error)
}

// FeedOpts tunes an aggregation. Zero values select defaults.
type FeedOpts struct {
	MaxPerChannel  int           // default: [DefaultMaxPerChannel]
	RefreshMargin  time.Duration // default: [DefaultRefreshMargin]
	MaxConcurrency int           // 0 runs one goroutine per playlist
	ExactCap       bool          // truncate each channel to MaxPerChannel before merging
	Timeout        time.Duration // 0 leaves the caller's deadline alone
	Now            func() time.Time
	Logger         *log.Logger
}

// NewFeedOpts maps the [feed] config section onto [FeedOpts].
func NewFeedOpts(cfg shared.FeedConfig, logger *log.Logger) FeedOpts {
	return FeedOpts{
		MaxPerChannel:  cfg.MaxPerChannel,
		RefreshMargin:  cfg.RefreshMargin(),
		MaxConcurrency: cfg.MaxConcurrency,
		ExactCap:       cfg.ExactCap,
		Timeout:        cfg.Timeout(),
		Logger:         logger,
	}
}

// SubscriptionEngine implements FeedEngine over a [services.FeedSource].
// It holds no per-user state and may serve concurrent aggregations.
type SubscriptionEngine struct {
	source   services.FeedSource
	identity Refresher
	opts     FeedOpts
}

// NewSubscriptionEngine creates a new SubscriptionEngine. identity may be nil, in which case
// stale credentials are used as is.
func NewSubscriptionEngine(source services.FeedSource, identity Refresher, opts FeedOpts) *SubscriptionEngine {
	if opts.MaxPerChannel <= 0 {
		opts.MaxPerChannel = DefaultMaxPerChannel
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = DefaultRefreshMargin
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(io.Discard)
	}
	return &SubscriptionEngine{source: source, identity: identity, opts: opts}
}

// Aggregate runs CredentialCheck, ResolveSubscriptions, ResolvePlaylists, FanOutCollect and Merge in order.
func (e *SubscriptionEngine) Aggregate(ctx context.Context, cred models.Credential, progress chan<- ProgressUpdate) (*FeedResult, error) {
	if e.source == nil {
		return nil, fmt.Errorf("%w: feed source not initialized", shared.ErrInvalidState)
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	cred, refreshed, err := e.checkCredential(ctx, cred)
	if err != nil {
		return nil, err
	}
	sendProgress(progress, credentialCheckUpdate(refreshed))

	result := &FeedResult{Videos: []models.Video{}, Credential: cred, Refreshed: refreshed}
	token := cred.AccessToken

	subscribed, err := ResolveChannels(ctx, e.source, token)
	if err != nil {
		return nil, err
	}
	channels := uniqueInOrder(subscribed)
	result.Channels = len(channels)
	sendProgress(progress, subscriptionsUpdate(len(channels)))

	if len(channels) == 0 {
		return e.finish(progress, result), nil
	}

	uploads, err := ResolveUploads(ctx, e.source, token, channels, func(step, total int) {
		sendProgress(progress, playlistsUpdate(step, total))
	})
	if err != nil {
		return nil, err
	}

	jobs := make([]ChannelJob, 0, len(uploads))
	for _, channelID := range channels {
		if playlistID, ok := uploads[channelID]; ok {
			jobs = append(jobs, ChannelJob{ChannelID: channelID, PlaylistID: playlistID})
		}
	}
	result.Playlists = len(jobs)

	if len(jobs) == 0 {
		return e.finish(progress, result), nil
	}

	results := e.collect(ctx, token, jobs, progress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sendProgress(progress, mergeUpdate(countVideos(results)))
	result.Videos, result.FailedChannels = e.merge(results)
	return e.finish(progress, result), nil
}

// checkCredential returns cred, or a refreshed copy of it when it is within the refresh margin.
func (e *SubscriptionEngine) checkCredential(ctx context.Context, cred models.Credential) (models.Credential, bool, error) {
	if err := cred.Validate(); err != nil {
		return cred, false, fmt.Errorf("%w: %v", shared.ErrUnauthorized, err)
	}
	if !cred.NeedsRefresh(e.opts.Now(), e.opts.RefreshMargin) {
		return cred, false, nil
	}
	if e.identity == nil {
		e.opts.Logger.Warn("credential is near expiry but no identity provider is configured", "expires_at", cred.ExpiresAt)
		return cred, false, nil
	}

	next, err := e.identity.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return cred, false, fmt.Errorf("%w: %w: %v", shared.ErrUnauthorized, shared.ErrRefreshFailed, err)
	}
	next = cred.Merge(next)
	if err := next.Validate(); err != nil {
		return cred, false, fmt.Errorf("%w: %w: %v", shared.ErrUnauthorized, shared.ErrRefreshFailed, err)
	}

	e.opts.Logger.Debug("access token refreshed", "expires_at", next.ExpiresAt)
	return next, true, nil
}

// collect runs one collector per job and waits for all of them.
//
// Each goroutine writes only its own slot, so results keep job order regardless of completion order.
func (e *SubscriptionEngine) collect(ctx context.Context, token string, jobs []ChannelJob, progress chan<- ProgressUpdate) []ChannelResult {
	results := make([]ChannelResult, len(jobs))

	var gate chan struct{}
	if e.opts.MaxConcurrency > 0 {
		gate = make(chan struct{}, e.opts.MaxConcurrency)
	}

	var (
		wg       sync.WaitGroup
		finished atomic.Int32
	)
	for i, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if gate != nil {
				select {
				case gate <- struct{}{}:
					defer func() { <-gate }()
				case <-ctx.Done():
					results[i] = ChannelResult{ChannelID: job.ChannelID, Err: ctx.Err()}
					return
				}
			}

			results[i] = CollectChannel(ctx, e.source, token, job, e.opts.MaxPerChannel, e.opts.Logger)
			sendProgress(progress, channelCollectedUpdate(int(finished.Add(1)), len(jobs), results[i]))
		}()
	}
	wg.Wait()
	return results
}

// merge concatenates results in job order and sorts newest first.
// The sort is stable, so equal timestamps keep their concatenation order.
func (e *SubscriptionEngine) merge(results []ChannelResult) ([]models.Video, int) {
	videos := make([]models.Video, 0, countVideos(results))
	failed := 0

	for _, res := range results {
		if res.Failed() {
			failed++
		}
		batch := res.Videos
		if e.opts.ExactCap && len(batch) > e.opts.MaxPerChannel {
			batch = batch[:e.opts.MaxPerChannel]
		}
		videos = append(videos, batch...)
	}

	slices.SortStableFunc(videos, func(a, b models.Video) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
	return videos, failed
}

func (e *SubscriptionEngine) finish(progress chan<- ProgressUpdate, result *FeedResult) *FeedResult {
	e.opts.Logger.Info("feed aggregated",
		"videos", len(result.Videos),
		"channels", result.Channels,
		"playlists", result.Playlists,
		"failed", result.FailedChannels,
		"refreshed", result.Refreshed,
	)
	sendProgress(progress, doneUpdate(result))
	return result
}

func countVideos(results []ChannelResult) int {
	n := 0
	for _, res := range results {
		n += len(res.Videos)
	}
	return n
}

var _ FeedEngine = (*SubscriptionEngine)(nil)
