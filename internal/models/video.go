package models

import (
	"errors"
	"time"
)

const (
	UntitledVideo  = "Untitled"
	UnknownChannel = "Unknown channel"
	watchURL       = "https://www.youtube.com/watch?v="
	channelURL     = "https://www.youtube.com/channel/"
)

// VideoURL returns the canonical watch URL for a video id.
func VideoURL(videoID string) string {
	return watchURL + videoID
}

// ChannelURL returns the canonical page URL for a channel id.
func ChannelURL(channelID string) string {
	return channelURL + channelID
}

// Channel is one subscribed channel as listed by the subscriptions endpoint.
type Channel struct {
	ChannelID   string `json:"channel_id" yaml:"channel_id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	URL         string `json:"url" yaml:"url"`
}

// Video is one entry of the subscription feed.
type Video struct {
	VideoID      string    `json:"video_id" yaml:"video_id"`
	ChannelID    string    `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	ChannelTitle string    `json:"channel_title" yaml:"channel_title"`
	Title        string    `json:"title" yaml:"title"`
	Thumbnail    string    `json:"thumbnail" yaml:"thumbnail"`
	URL          string    `json:"url" yaml:"url"`
	PublishedAt  time.Time `json:"published_at" yaml:"published_at"`
}

// VideoDetail is a video returned by search and channel listings, enriched with statistics.
type VideoDetail struct {
	VideoID      string `json:"video_id" yaml:"video_id"`
	Title        string `json:"title" yaml:"title"`
	Description  string `json:"description" yaml:"description"`
	Thumbnail    string `json:"thumbnail" yaml:"thumbnail"`
	ChannelTitle string `json:"channel_title" yaml:"channel_title"`
	PublishedAt  string `json:"published_at" yaml:"published_at"`
	Duration     string `json:"duration" yaml:"duration"`
	ViewCount    uint64 `json:"view_count" yaml:"view_count"`
	URL          string `json:"url" yaml:"url"`
}

// FeedRun records the outcome of one aggregation started by a stored profile.
type FeedRun struct {
	RunID          string
	Profile        string
	Channels       int
	Playlists      int
	FailedChannels int
	Videos         int
	Refreshed      bool
	Error          string
	StartedAt      time.Time
	FinishedAt     time.Time
}

func (r *FeedRun) ID() string { return r.RunID }

func (r *FeedRun) Validate() error {
	switch {
	case r.Profile == "":
		return errors.New("profile is required")
	case r.FinishedAt.Before(r.StartedAt):
		return errors.New("run finished before it started")
	}
	return nil
}

// Duration is the wall time of the run.
func (r *FeedRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
