// package services defines clients for the external APIs subfeed talks to
//
// Google OAuth2, YouTube Data API v3
package services

import (
	"context"

	"github.com/desertthunder/subfeed/internal/models"
)

// FeedSource is the subset of the YouTube Data API the feed aggregation needs.
//
// [YouTubeService] is the production implementation; tests substitute fakes.
type FeedSource interface {
	// SubscriptionsPage returns one page of channels followed by the owner of accessToken.
	SubscriptionsPage(ctx context.Context, accessToken, pageToken string) (Page[models.Channel], error)

	// UploadPlaylists maps at most [MaxIDsPerCall] channel ids to their uploads playlist.
	UploadPlaylists(ctx context.Context, accessToken string, channelIDs []string) (map[string]string, error)

	// PlaylistItemsPage returns one page of a playlist's items.
	PlaylistItemsPage(ctx context.Context, accessToken, playlistID, pageToken string, pageSize int) (Page[PlaylistItem], error)
}

// VideoLookup answers single-call video queries.
type VideoLookup interface {
	SearchVideos(ctx context.Context, query string, maxResults int) ([]models.VideoDetail, error)
	ChannelVideos(ctx context.Context, query string, maxResults int) ([]models.VideoDetail, error)
}

var (
	_ FeedSource       = (*YouTubeService)(nil)
	_ VideoLookup      = (*Catalog)(nil)
	_ IdentityProvider = (*GoogleIdentity)(nil)
)
