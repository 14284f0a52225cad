// Package models defines domain values and persistence interfaces for the subfeed service.
//
// The package contains two categories of types:
//
// 1. Values passed through the feed pipeline:
//   - [Credential] : bearer token, optional refresh token and expiry, replaced (never mutated) on refresh
//   - [Video] : one feed entry with its canonical watch URL
//   - [VideoDetail] : search and channel listing results with duration and view count
//
// 2. Persisted records:
//   - [StoredCredential] : a credential saved under a CLI profile
//   - [FeedRun] : counters from one aggregation run
//
// Persisted records implement [Model]; the [Repository] interface defines the storage operations.
package models
