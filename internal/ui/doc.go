// Package ui implements an interactive terminal feed browser using bubbletea's Elm architecture.
//
// The TUI moves through three views:
//  1. [LoadingView] : spinner and the current aggregation phase while the feed is built
//  2. [FeedView] : filterable list of videos, newest first
//  3. [ErrorView] : the fatal error of the last aggregation
//
// Progress updates flow from the FeedEngine through a buffered channel; the engine never blocks on it.
// Pressing enter opens the selected video in the default browser and r rebuilds the feed.
package ui
