package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
	"github.com/desertthunder/subfeed/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	LoadingView ViewState = iota
	FeedView
	ErrorView
)

// LoadFunc builds a feed, reporting progress on the given channel.
//
// The CLI wraps [tasks.FeedEngine.Aggregate] so that refreshed credentials are persisted.
type LoadFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.FeedResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	load         LoadFunc
	open         func(url string) error
	now          func() time.Time
	width        int
	height       int
	feedList     list.Model
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	doneChan     chan Msg
	progress     tasks.ProgressUpdate
	result       *tasks.FeedResult
	status       string
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a new TUI model that builds its feed with load.
func NewModel(ctx context.Context, load LoadFunc) *Model {
	return &Model{
		ctx:     ctx,
		view:    LoadingView,
		load:    load,
		open:    shared.OpenBrowser,
		now:     time.Now,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.bar)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts the first aggregation.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startLoad())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.view == FeedView {
			m.feedList.SetSize(max(msg.Width-4, 0), max(msg.Height-4, 0))
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case FeedView:
			return m.handleFeedKeys(msg)
		case ErrorView:
			return m.handleErrorKeys(msg)
		default:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		}

	case spinner.TickMsg:
		if m.view != LoadingView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		return m.handleMsg(msg)
	}

	if m.view == FeedView {
		var cmd tea.Cmd
		m.feedList, cmd = m.feedList.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgFeedLoaded:
		loaded := msg.data.(feedLoaded)
		m.progressChan, m.doneChan = nil, nil
		if loaded.err != nil {
			m.err = loaded.err
			m.view = ErrorView
			return m, nil
		}
		m.result = loaded.result
		m.err = nil
		m.feedList = list.New(videoItems(loaded.result.Videos, m.now()), list.NewDefaultDelegate(), max(m.width-4, 0), max(m.height-4, 0))
		m.feedList.Title = fmt.Sprintf("Subscriptions · %d videos", len(loaded.result.Videos))
		m.feedList.AdditionalShortHelpKeys = func() []key.Binding {
			return []key.Binding{m.keys.open, m.keys.refresh}
		}
		m.view = FeedView
		m.status = ""
		if loaded.result.FailedChannels > 0 {
			m.status = styles.warn.Render(fmt.Sprintf("%d channels could not be read", loaded.result.FailedChannels))
		}
		return m, nil

	case MsgBrowserOpened:
		opened := msg.data.(browserOpened)
		if opened.err != nil {
			m.status = styles.err.Render(fmt.Sprintf("Could not open %s: %v", opened.url, opened.err))
		} else {
			m.status = styles.help.Render("Opened " + opened.url)
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) handleFeedKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.feedList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.feedList, cmd = m.feedList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.open):
		if item, ok := m.feedList.SelectedItem().(videoItem); ok {
			return m, m.openVideo(item.video)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.feedList, cmd = m.feedList.Update(msg)
	return m, cmd
}

func (m *Model) handleErrorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.refresh()
	}
	return m, nil
}

func (m *Model) refresh() tea.Cmd {
	m.view = LoadingView
	m.progress = tasks.ProgressUpdate{}
	m.status = ""
	return tea.Batch(m.spinner.Tick, m.startLoad())
}

func (m *Model) startLoad() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.doneChan = make(chan Msg, 1)

	progress, done := m.progressChan, m.doneChan
	go func() {
		result, err := m.load(m.ctx, progress)
		done <- feedLoadedMsg(result, err)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	if done == nil {
		return nil
	}

	return func() tea.Msg {
		select {
		case update := <-progress:
			return progressUpdateMsg(update)
		case msg := <-done:
			return msg
		}
	}
}

func (m *Model) openVideo(v models.Video) tea.Cmd {
	open := m.open
	return func() tea.Msg {
		return browserOpenedMsg(v.URL, open(v.URL))
	}
}

// Result returns the last feed that loaded successfully.
func (m *Model) Result() *tasks.FeedResult {
	return m.result
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case LoadingView:
		return m.renderLoading()
	case FeedView:
		return m.renderFeed()
	case ErrorView:
		return m.renderError()
	default:
		return ""
	}
}

func (m *Model) renderLoading() string {
	title := styles.title.Render("Building your subscription feed")

	message := m.progress.Message
	if message == "" {
		message = "Starting..."
	}

	line := fmt.Sprintf("%s %s", m.spinner.View(), message)
	if m.progress.Phase == tasks.FanOutCollect && m.progress.Total > 0 {
		line = fmt.Sprintf("%s\n%s", line, progressBar(m.progress.Step, m.progress.Total, 30))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s", title, line, helpView)
}

func (m *Model) renderFeed() string {
	if m.status == "" {
		return m.feedList.View()
	}
	return fmt.Sprintf("%s\n%s", m.feedList.View(), m.status)
}

func (m *Model) renderError() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.refresh, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Feed failed: %v", m.err)), helpView)
}

// progressBar renders step/total as a fixed width bar.
func progressBar(step, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	filled := min(step*width/total, width)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %d/%d", styles.bar.Render(bar), step, total)
}
