// Package tasks builds a user's subscription feed with real-time progress reporting.
//
// # Aggregation
//
// [FeedEngine.Aggregate] walks a fixed sequence of phases:
//
//  1. [CredentialCheck] : reject a missing access token; refresh when within the refresh margin
//  2. [ResolveSubscriptions] : page through subscriptions.list, collapsing repeated channels
//  3. [ResolvePlaylists] : map channels to uploads playlists, 50 per channels.list call
//  4. [FanOutCollect] : one collector per playlist, optionally gated by MaxConcurrency
//  5. [Merge] : concatenate in subscription order, then a stable sort by publish date, newest first
//
// Any failure in phases 1 to 3 aborts the run. A collector that fails keeps what it gathered and
// is counted in [FeedResult.FailedChannels]. No subscriptions, or no uploads playlists, is an empty
// feed and not an error.
//
// # Per-Channel Cap
//
// Collectors stop paging once they hold MaxPerChannel videos, but the last page is kept whole,
// so a channel can contribute more. Set ExactCap to truncate each channel before the merge.
//
// # Progress Reporting
//
// Updates are sent with select/default, so a slow or absent reader never blocks aggregation.
//
// [SubscriptionEngine] implements [FeedEngine] with dependencies on:
//   - [services.FeedSource] : YouTube Data API listing calls
//   - [Refresher] : optional token refresh (services.GoogleIdentity)
package tasks
