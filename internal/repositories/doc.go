// Package repositories implements SQLite persistence for the CLI.
//
// The feed engine itself is stateless; these repositories are the caller side that remembers
// a profile's OAuth credential between runs and keeps a short history of aggregations.
//
// Key Implementations:
//   - [CredentialRepository] : one credential per profile, upserted after login and after every refresh
//   - [FeedRunRepository] : counters of each feed run, deleted along with their profile
//
// Statements are built with squirrel and use "?" placeholders, which go-sqlite3 expects.
package repositories
