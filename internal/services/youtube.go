// YouTube Data API v3 client for the listing calls used by the subscription feed
//
// Response types follow https://developers.google.com/youtube/v3/docs
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
)

const (
	DefaultYouTubeBaseURL = "https://www.googleapis.com"

	// MaxIDsPerCall is the largest id list channels.list accepts, and the largest page size of any listing.
	MaxIDsPerCall = 50
)

// Thumbnail is one size of a video thumbnail.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// PlaylistItemSnippet is the snippet part of a playlistItems resource.
type PlaylistItemSnippet struct {
	PublishedAt  string               `json:"publishedAt"`
	ChannelID    string               `json:"channelId"`
	ChannelTitle string               `json:"channelTitle"`
	Title        string               `json:"title"`
	Thumbnails   map[string]Thumbnail `json:"thumbnails"`
	ResourceID   struct {
		VideoID string `json:"videoId"`
	} `json:"resourceId"`
}

// PlaylistItem is one raw entry of an uploads playlist.
type PlaylistItem struct {
	ID      string              `json:"id"`
	Snippet PlaylistItemSnippet `json:"snippet"`
}

// YouTubeService calls the subscriptions, channels and playlistItems endpoints through an [Executor].
type YouTubeService struct {
	baseURL  string
	apiKey   string
	executor *Executor
}

// YouTubeOpts configures a [YouTubeService].
type YouTubeOpts struct {
	BaseURL  string // default: [DefaultYouTubeBaseURL]
	APIKey   string // used for channels and playlistItems when set
	Executor *Executor
}

// NewYouTubeService creates a new YouTube Data API client.
func NewYouTubeService(opts YouTubeOpts) *YouTubeService {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultYouTubeBaseURL
	}
	if opts.Executor == nil {
		opts.Executor = NewExecutor(ExecutorOpts{})
	}

	return &YouTubeService{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		apiKey:   opts.APIKey,
		executor: opts.Executor,
	}
}

// Name returns the service name.
func (y *YouTubeService) Name() string {
	return "YouTube"
}

// get performs a GET on /youtube/v3/{resource} and decodes the JSON body into result.
//
// keyed resources use the API key when one is configured and fall back to the bearer token otherwise.
func (y *YouTubeService) get(ctx context.Context, resource string, params url.Values, accessToken string, keyed bool, result any) error {
	useKey := keyed && y.apiKey != ""
	if useKey {
		params.Set("key", y.apiKey)
	}
	if !useKey && accessToken == "" {
		return fmt.Errorf("%w: %s requires an access token", shared.ErrUnauthorized, resource)
	}

	apiURL := fmt.Sprintf("%s/youtube/v3/%s?%s", y.baseURL, resource, params.Encode())
	body, err := y.executor.Do(ctx, resource, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if !useKey {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
		return req, nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrUpstream, resource, err)
	}
	return nil
}

// SubscriptionsPage returns one page of channels the token's owner subscribes to.
//
// Calls GET /youtube/v3/subscriptions?part=snippet&mine=true&maxResults=50 with the bearer token.
// Entries without a channel id are dropped; a missing title becomes [models.UnknownChannel].
func (y *YouTubeService) SubscriptionsPage(ctx context.Context, accessToken, pageToken string) (Page[models.Channel], error) {
	params := url.Values{
		"part":       {"snippet"},
		"mine":       {"true"},
		"maxResults": {strconv.Itoa(MaxIDsPerCall)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp struct {
		NextPageToken string `json:"nextPageToken"`
		Items         []struct {
			Snippet struct {
				Title       string               `json:"title"`
				Description string               `json:"description"`
				Thumbnails  map[string]Thumbnail `json:"thumbnails"`
				ResourceID  struct {
					ChannelID string `json:"channelId"`
				} `json:"resourceId"`
			} `json:"snippet"`
		} `json:"items"`
	}
	if err := y.get(ctx, "subscriptions", params, accessToken, false, &resp); err != nil {
		return Page[models.Channel]{}, err
	}

	channels := make([]models.Channel, 0, len(resp.Items))
	for _, item := range resp.Items {
		s := item.Snippet
		id := s.ResourceID.ChannelID
		if id == "" {
			continue
		}
		ch := models.Channel{
			ChannelID:   id,
			Title:       s.Title,
			Description: s.Description,
			URL:         models.ChannelURL(id),
		}
		if ch.Title == "" {
			ch.Title = models.UnknownChannel
		}
		for _, size := range []string{"medium", "default", "high"} {
			if t, ok := s.Thumbnails[size]; ok && t.URL != "" {
				ch.Thumbnail = t.URL
				break
			}
		}
		channels = append(channels, ch)
	}
	return Page[models.Channel]{Items: channels, NextToken: resp.NextPageToken}, nil
}

// UploadPlaylists resolves up to [MaxIDsPerCall] channel ids to their uploads playlist id.
//
// Channels without an uploads playlist are left out of the map.
func (y *YouTubeService) UploadPlaylists(ctx context.Context, accessToken string, channelIDs []string) (map[string]string, error) {
	if len(channelIDs) > MaxIDsPerCall {
		return nil, fmt.Errorf("%w: %d channel ids exceed the batch size of %d", shared.ErrInvalidArgument, len(channelIDs), MaxIDsPerCall)
	}
	if len(channelIDs) == 0 {
		return map[string]string{}, nil
	}

	params := url.Values{
		"part":       {"contentDetails"},
		"id":         {strings.Join(channelIDs, ",")},
		"maxResults": {strconv.Itoa(MaxIDsPerCall)},
	}

	var resp struct {
		Items []struct {
			ID             string `json:"id"`
			ContentDetails struct {
				RelatedPlaylists struct {
					Uploads string `json:"uploads"`
				} `json:"relatedPlaylists"`
			} `json:"contentDetails"`
		} `json:"items"`
	}
	if err := y.get(ctx, "channels", params, accessToken, true, &resp); err != nil {
		return nil, err
	}

	uploads := make(map[string]string, len(resp.Items))
	for _, item := range resp.Items {
		if pl := item.ContentDetails.RelatedPlaylists.Uploads; item.ID != "" && pl != "" {
			uploads[item.ID] = pl
		}
	}
	return uploads, nil
}

// PlaylistItemsPage returns one page of a playlist's items.
//
// pageSize is clamped to [1, MaxIDsPerCall].
func (y *YouTubeService) PlaylistItemsPage(ctx context.Context, accessToken, playlistID, pageToken string, pageSize int) (Page[PlaylistItem], error) {
	pageSize = min(max(pageSize, 1), MaxIDsPerCall)
	params := url.Values{
		"part":       {"snippet"},
		"playlistId": {playlistID},
		"maxResults": {strconv.Itoa(pageSize)},
	}
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	var resp struct {
		NextPageToken string         `json:"nextPageToken"`
		Items         []PlaylistItem `json:"items"`
	}
	if err := y.get(ctx, "playlistItems", params, accessToken, true, &resp); err != nil {
		return Page[PlaylistItem]{}, err
	}
	return Page[PlaylistItem]{Items: resp.Items, NextToken: resp.NextPageToken}, nil
}
