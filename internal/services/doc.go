// Package services implements the clients for Google OAuth2 and the YouTube Data API.
//
// # Executor
//
// Every raw API call goes through an [Executor], which sorts each attempt into an [Outcome]:
// success, rate limited (HTTP 429, or 403 with a rateLimitExceeded reason), other HTTP error, or transport error.
// A rate-limited attempt is retried exactly once after the configured backoff (default [DefaultBackoff]).
// Failures are returned as [*APIError], which unwraps to the shared sentinels so callers can use [errors.Is].
//
// An optional token bucket (golang.org/x/time/rate) spaces out attempts when requests_per_second is configured.
//
// # Pagination
//
// [Paginate] and [PaginateUntil] follow continuation tokens for any [PageFunc].
// A token that was already seen stops the loop with [shared.ErrPagination] instead of looping forever.
//
// # YouTube Data API
//
// [YouTubeService] implements [FeedSource] over plain net/http:
//   - subscriptions.list (bearer token, mine=true)
//   - channels.list (batched by [MaxIDsPerCall], API key when configured)
//   - playlistItems.list (API key when configured)
//
// [Catalog] implements [VideoLookup] with google.golang.org/api/youtube/v3 for keyword search
// and a channel's latest uploads, both finished by one videos.list call.
//
// # Identity
//
// [GoogleIdentity] implements [IdentityProvider] with golang.org/x/oauth2.
// Refresh never mutates an existing credential; it returns a new [models.Credential].
package services
