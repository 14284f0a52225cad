package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	defaultSearchResults  = 50
	defaultChannelResults = 20
)

// CatalogOpts configures a [Catalog].
type CatalogOpts struct {
	APIKey     string
	BaseURL    string       // default: the client library's endpoint
	HTTPClient *http.Client // an oauth2 client may stand in for the API key
}

// Catalog answers one-shot video lookups (keyword search and a channel's latest uploads)
// through the generated YouTube client.
type Catalog struct {
	svc      *youtube.Service
	callOpts []googleapi.CallOption
}

// NewCatalog creates a [Catalog]. Either an API key or an authorized HTTP client is required.
func NewCatalog(ctx context.Context, opts CatalogOpts) (*Catalog, error) {
	if opts.APIKey == "" && opts.HTTPClient == nil {
		return nil, fmt.Errorf("%w: youtube api_key or an authorized client is required", shared.ErrMissingCredentials)
	}

	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(client)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(strings.TrimRight(opts.BaseURL, "/")+"/"))
	}

	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube client: %w", err)
	}

	c := &Catalog{svc: svc}
	if opts.APIKey != "" {
		c.callOpts = append(c.callOpts, googleapi.QueryParameter("key", opts.APIKey))
	}
	return c, nil
}

// SearchVideos returns details for up to maxResults videos matching query.
func (c *Catalog) SearchVideos(ctx context.Context, query string, maxResults int) ([]models.VideoDetail, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrMissingArgument)
	}

	resp, err := c.svc.Search.List([]string{"id"}).
		Q(query).
		Type("video").
		MaxResults(clampResults(maxResults, defaultSearchResults)).
		Context(ctx).
		Do(c.callOpts...)
	if err != nil {
		return nil, catalogError("search", err)
	}

	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	return c.describe(ctx, ids)
}

// ChannelVideos finds the first channel matching query and returns details for its latest uploads.
func (c *Catalog) ChannelVideos(ctx context.Context, query string, maxResults int) ([]models.VideoDetail, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty channel query", shared.ErrMissingArgument)
	}

	found, err := c.svc.Search.List([]string{"id"}).Q(query).Type("channel").MaxResults(1).Context(ctx).Do(c.callOpts...)
	if err != nil {
		return nil, catalogError("search", err)
	}
	if len(found.Items) == 0 || found.Items[0].Id == nil || found.Items[0].Id.ChannelId == "" {
		return nil, fmt.Errorf("%w: no channel matches %q", shared.ErrNotFound, query)
	}
	channelID := found.Items[0].Id.ChannelId

	channels, err := c.svc.Channels.List([]string{"contentDetails"}).Id(channelID).Context(ctx).Do(c.callOpts...)
	if err != nil {
		return nil, catalogError("channels", err)
	}
	if len(channels.Items) == 0 || channels.Items[0].ContentDetails == nil ||
		channels.Items[0].ContentDetails.RelatedPlaylists == nil ||
		channels.Items[0].ContentDetails.RelatedPlaylists.Uploads == "" {
		return nil, fmt.Errorf("%w: channel %s has no uploads playlist", shared.ErrNotFound, channelID)
	}
	uploads := channels.Items[0].ContentDetails.RelatedPlaylists.Uploads

	items, err := c.svc.PlaylistItems.List([]string{"contentDetails"}).
		PlaylistId(uploads).
		MaxResults(clampResults(maxResults, defaultChannelResults)).
		Context(ctx).
		Do(c.callOpts...)
	if err != nil {
		return nil, catalogError("playlistItems", err)
	}

	ids := make([]string, 0, len(items.Items))
	for _, item := range items.Items {
		if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
			ids = append(ids, item.ContentDetails.VideoId)
		}
	}
	return c.describe(ctx, ids)
}

// describe loads snippet, duration and statistics for ids in one videos.list call, keeping the order of ids.
func (c *Catalog) describe(ctx context.Context, ids []string) ([]models.VideoDetail, error) {
	if len(ids) == 0 {
		return []models.VideoDetail{}, nil
	}

	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Id(strings.Join(ids, ",")).
		Context(ctx).
		Do(c.callOpts...)
	if err != nil {
		return nil, catalogError("videos", err)
	}

	byID := make(map[string]*youtube.Video, len(resp.Items))
	for _, v := range resp.Items {
		byID[v.Id] = v
	}

	details := make([]models.VideoDetail, 0, len(ids))
	for _, id := range ids {
		v, ok := byID[id]
		if !ok {
			continue
		}
		details = append(details, toVideoDetail(v))
	}
	return details, nil
}

func toVideoDetail(v *youtube.Video) models.VideoDetail {
	d := models.VideoDetail{VideoID: v.Id, URL: models.VideoURL(v.Id), Duration: "PT0S"}
	if s := v.Snippet; s != nil {
		d.Title = s.Title
		d.Description = s.Description
		d.ChannelTitle = s.ChannelTitle
		d.PublishedAt = s.PublishedAt
		d.Thumbnail = pickDetailThumbnail(s.Thumbnails)
	}
	if d.Title == "" {
		d.Title = models.UntitledVideo
	}
	if d.ChannelTitle == "" {
		d.ChannelTitle = models.UnknownChannel
	}
	if v.ContentDetails != nil && v.ContentDetails.Duration != "" {
		d.Duration = v.ContentDetails.Duration
	}
	if v.Statistics != nil {
		d.ViewCount = v.Statistics.ViewCount
	}
	return d
}

func pickDetailThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func clampResults(n, fallback int) int64 {
	if n <= 0 {
		n = fallback
	}
	return int64(min(n, MaxIDsPerCall))
}

// catalogError maps client library errors onto the same [APIError] kinds as the raw client.
func catalogError(endpoint string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return &APIError{Kind: shared.ErrTransport, Outcome: OutcomeTransportError, Endpoint: endpoint, Err: err}
	}

	var reason string
	if len(gerr.Errors) > 0 {
		reason = gerr.Errors[0].Reason
	}

	apiErr := &APIError{Kind: shared.ErrUpstream, Outcome: OutcomeHTTPError, Endpoint: endpoint, StatusCode: gerr.Code, Reason: reason, Message: gerr.Message}
	switch {
	case gerr.Code == http.StatusUnauthorized:
		apiErr.Kind = shared.ErrUnauthorized
	case gerr.Code == http.StatusTooManyRequests,
		gerr.Code == http.StatusForbidden && (reason == "rateLimitExceeded" || reason == "userRateLimitExceeded"):
		apiErr.Kind, apiErr.Outcome = shared.ErrRateLimited, OutcomeRateLimited
	}
	return apiErr
}
