package tasks

import (
	"context"
	"fmt"

	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/services"
)

// ResolveSubscriptions lists every channel the token's owner subscribes to, in arrival order.
//
// The result is not deduplicated. A rejected token surfaces as [shared.ErrUnauthorized].
func ResolveSubscriptions(ctx context.Context, source services.FeedSource, accessToken string) ([]models.Channel, error) {
	channels, err := services.Paginate(ctx, func(ctx context.Context, token string) (services.Page[models.Channel], error) {
		return source.SubscriptionsPage(ctx, accessToken, token)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subscriptions: %w", err)
	}
	return channels, nil
}

// ResolveChannels is [ResolveSubscriptions] reduced to channel ids.
func ResolveChannels(ctx context.Context, source services.FeedSource, accessToken string) ([]string, error) {
	channels, err := ResolveSubscriptions(ctx, source, accessToken)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ChannelID
	}
	return ids, nil
}

// ResolveUploads maps channel ids to their uploads playlist, one channels.list call per batch of
// [services.MaxIDsPerCall]. Channels without an uploads playlist are absent from the map.
//
// A failed batch fails the whole resolution. onBatch, when set, is called before each batch.
func ResolveUploads(ctx context.Context, source services.FeedSource, accessToken string, channelIDs []string, onBatch func(step, total int)) (map[string]string, error) {
	batches := chunk(channelIDs, services.MaxIDsPerCall)
	uploads := make(map[string]string, len(channelIDs))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onBatch != nil {
			onBatch(i+1, len(batches))
		}

		found, err := source.UploadPlaylists(ctx, accessToken, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve upload playlists (batch %d/%d): %w", i+1, len(batches), err)
		}
		for channelID, playlistID := range found {
			uploads[channelID] = playlistID
		}
	}
	return uploads, nil
}

func chunk[T any](items []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}

// uniqueInOrder drops repeated ids, keeping the first occurrence.
func uniqueInOrder(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
