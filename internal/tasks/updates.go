package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during an aggregation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Phase is a state of the aggregation.
type Phase int

const (
	CredentialCheck Phase = iota
	ResolveSubscriptions
	ResolvePlaylists
	FanOutCollect
	Merge
	Done
)

func (p Phase) String() string {
	switch p {
	case CredentialCheck:
		return "credential_check"
	case ResolveSubscriptions:
		return "resolve_subscriptions"
	case ResolvePlaylists:
		return "resolve_playlists"
	case FanOutCollect:
		return "fan_out_collect"
	case Merge:
		return "merge"
	case Done:
		return "done"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func credentialCheckUpdate(refreshed bool) ProgressUpdate {
	msg := "Checking credential..."
	if refreshed {
		msg = "Access token refreshed"
	}
	return ProgressUpdate{Phase: CredentialCheck, Step: 1, Total: 1, Message: msg, Data: refreshed}
}

func subscriptionsUpdate(channels int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveSubscriptions,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d subscribed channels", channels),
		Data:    channels,
	}
}

func playlistsUpdate(step, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolvePlaylists,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Resolving upload playlists (batch %d/%d)...", step, total),
	}
}

func channelCollectedUpdate(step, total int, res ChannelResult) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ %s (%d videos)", step, total, res.ChannelID, len(res.Videos))
	if res.Err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, res.ChannelID, res.Err)
	}
	return ProgressUpdate{Phase: FanOutCollect, Step: step, Total: total, Message: msg, Data: res.ChannelID}
}

func mergeUpdate(videos int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Merge,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Merging %d videos...", videos),
	}
}

func doneUpdate(result *FeedResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Feed ready: %d videos from %d channels", len(result.Videos), result.Playlists),
		Data:    result,
	}
}
