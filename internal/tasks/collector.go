package tasks

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/services"
	"github.com/desertthunder/subfeed/internal/shared"
)

// ChannelJob is one unit of fan-out work: a channel and its uploads playlist.
type ChannelJob struct {
	ChannelID  string
	PlaylistID string
}

// ChannelResult holds what a collector gathered for one channel.
//
// Err is set when a page failed; Videos then holds the entries gathered before the failure.
type ChannelResult struct {
	ChannelID string
	Videos    []models.Video
	Skipped   int
	Err       error
}

// Failed reports whether collection stopped early on an error.
func (r ChannelResult) Failed() bool { return r.Err != nil }

// CollectChannel reads up to limit recent videos from a channel's uploads playlist.
//
// The cap is checked between pages, so the last page may take the result past limit.
// Errors are contained in the result and never returned to the caller.
func CollectChannel(ctx context.Context, source services.FeedSource, accessToken string, job ChannelJob, limit int, logger *log.Logger) ChannelResult {
	if limit <= 0 {
		limit = DefaultMaxPerChannel
	}
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	pageSize := min(limit, services.MaxIDsPerCall)
	res := ChannelResult{ChannelID: job.ChannelID}
	seen := make(map[string]struct{})

	fetch := func(ctx context.Context, token string) (services.Page[models.Video], error) {
		page, err := source.PlaylistItemsPage(ctx, accessToken, job.PlaylistID, token, pageSize)
		if err != nil {
			return services.Page[models.Video]{}, err
		}

		videos := make([]models.Video, 0, len(page.Items))
		for _, item := range page.Items {
			v, err := toVideo(item, job.ChannelID)
			if err != nil {
				res.Skipped++
				logger.Warn("skipping playlist item", "channel", job.ChannelID, "playlist", job.PlaylistID, "item", item.ID, "err", err)
				continue
			}
			if _, dup := seen[v.VideoID]; dup {
				continue
			}
			seen[v.VideoID] = struct{}{}
			videos = append(videos, v)
		}
		return services.Page[models.Video]{Items: videos, NextToken: page.NextToken}, nil
	}

	videos, err := services.PaginateUntil(ctx, fetch, func(acc []models.Video) bool { return len(acc) >= limit })
	res.Videos = videos
	if err != nil {
		res.Err = err
		logger.Warn("channel collection failed", "channel", job.ChannelID, "playlist", job.PlaylistID, "kept", len(videos), "err", err)
	}
	return res
}

// toVideo converts a playlist item, applying placeholders for missing optional fields.
func toVideo(item services.PlaylistItem, channelID string) (models.Video, error) {
	s := item.Snippet
	if s.ResourceID.VideoID == "" {
		return models.Video{}, fmt.Errorf("%w: missing video id", shared.ErrMalformedEntry)
	}
	if s.PublishedAt == "" {
		return models.Video{}, fmt.Errorf("%w: video %s has no publish date", shared.ErrMalformedEntry, s.ResourceID.VideoID)
	}
	published, err := time.Parse(time.RFC3339, s.PublishedAt)
	if err != nil {
		return models.Video{}, fmt.Errorf("%w: video %s: %v", shared.ErrMalformedEntry, s.ResourceID.VideoID, err)
	}

	v := models.Video{
		VideoID:      s.ResourceID.VideoID,
		ChannelID:    s.ChannelID,
		ChannelTitle: s.ChannelTitle,
		Title:        s.Title,
		Thumbnail:    pickThumbnail(s.Thumbnails),
		URL:          models.VideoURL(s.ResourceID.VideoID),
		PublishedAt:  published.UTC(),
	}
	if v.ChannelID == "" {
		v.ChannelID = channelID
	}
	if v.Title == "" {
		v.Title = models.UntitledVideo
	}
	if v.ChannelTitle == "" {
		v.ChannelTitle = models.UnknownChannel
	}
	return v, nil
}

func pickThumbnail(thumbs map[string]services.Thumbnail) string {
	for _, size := range []string{"medium", "default"} {
		if t, ok := thumbs[size]; ok && t.URL != "" {
			return t.URL
		}
	}
	return ""
}
