package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/subfeed/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgFeedLoaded
	MsgBrowserOpened
)

type feedLoaded struct {
	result *tasks.FeedResult
	err    error
}

type browserOpened struct {
	url string
	err error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// feedLoadedMsg is the constructor for [MsgFeedLoaded]
func feedLoadedMsg(result *tasks.FeedResult, err error) Msg {
	return Msg{kind: MsgFeedLoaded, data: feedLoaded{result, err}}
}

// browserOpenedMsg is the constructor for [MsgBrowserOpened]
func browserOpenedMsg(url string, err error) Msg {
	return Msg{
		kind: MsgBrowserOpened,
		data: browserOpened{url, err},
	}
}
