package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// FakeVideo is one playlist item served by [FakeYouTube].
type FakeVideo struct {
	ID           string
	Title        string
	ChannelTitle string
	PublishedAt  string
	Thumbnails   map[string]string // size -> url
}

// FakeYouTube is an httptest-backed stand-in for the YouTube Data API listing endpoints.
//
// Pages are addressed with synthetic continuation tokens ("page-1", "page-2", ...).
// Configure fields before the first request; they are read under a lock.
type FakeYouTube struct {
	Server *httptest.Server

	Token         string                   // bearer token accepted by subscriptions; empty accepts any
	Subscriptions [][]string               // pages of subscribed channel ids
	ChannelTitles map[string]string        // channel id -> subscription snippet title
	Uploads       map[string]string        // channel id -> uploads playlist id
	Playlists     map[string][][]FakeVideo // playlist id -> pages of videos

	// Statuses queues HTTP statuses returned before normal handling, keyed by resource
	// ("subscriptions", "channels", "playlistItems") or "playlistItems/<playlist id>".
	Statuses map[string][]int

	// DropAfter closes the connection instead of answering page n (0-based) of a playlist.
	DropAfter map[string]int

	// RepeatToken makes every page of a subscription listing point back to "page-1".
	RepeatToken bool

	mu       sync.Mutex
	calls    map[string]int
	requests []*http.Request
}

// NewFakeYouTube starts a fake API server that is closed when the test ends.
func NewFakeYouTube(t interface{ Cleanup(func()) }) *FakeYouTube {
	f := &FakeYouTube{
		ChannelTitles: map[string]string{},
		Uploads:       map[string]string{},
		Playlists:     map[string][][]FakeVideo{},
		Statuses:      map[string][]int{},
		DropAfter:     map[string]int{},
		calls:         map[string]int{},
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL to hand to the client under test.
func (f *FakeYouTube) URL() string { return f.Server.URL }

// Calls returns how many requests reached resource.
func (f *FakeYouTube) Calls(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[resource]
}

// Requests returns a copy of every request received so far.
func (f *FakeYouTube) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

func (f *FakeYouTube) serve(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimPrefix(r.URL.Path, "/youtube/v3/")
	q := r.URL.Query()

	f.mu.Lock()
	f.calls[resource]++
	f.requests = append(f.requests, r)
	status, queued := f.popStatus(resource, q.Get("playlistId"))
	f.mu.Unlock()

	if queued {
		writeGoogleError(w, status)
		return
	}

	switch resource {
	case "subscriptions":
		f.serveSubscriptions(w, r)
	case "channels":
		f.serveChannels(w, r)
	case "playlistItems":
		f.servePlaylistItems(w, r)
	default:
		writeGoogleError(w, http.StatusNotFound)
	}
}

func (f *FakeYouTube) popStatus(resource, playlistID string) (int, bool) {
	for _, key := range []string{resource + "/" + playlistID, resource} {
		if queue := f.Statuses[key]; len(queue) > 0 {
			f.Statuses[key] = queue[1:]
			return queue[0], true
		}
	}
	return 0, false
}

func (f *FakeYouTube) serveSubscriptions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	token, pages, titles, repeat := f.Token, f.Subscriptions, f.ChannelTitles, f.RepeatToken
	f.mu.Unlock()

	if got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "); got == "" || (token != "" && got != token) {
		writeGoogleError(w, http.StatusUnauthorized)
		return
	}

	idx := pageIndex(r.URL.Query().Get("pageToken"))
	var ids []string
	if idx < len(pages) {
		ids = pages[idx]
	}

	items := make([]map[string]any, len(ids))
	for i, id := range ids {
		snippet := map[string]any{"resourceId": map[string]any{"kind": "youtube#channel", "channelId": id}}
		if title, ok := titles[id]; ok {
			snippet["title"] = title
			snippet["thumbnails"] = map[string]any{"default": map[string]any{"url": "https://yt3.example/" + id + ".jpg"}}
		}
		items[i] = map[string]any{"snippet": snippet}
	}

	next := nextToken(idx, len(pages))
	if repeat {
		next = "page-1"
	}
	writeJSON(w, map[string]any{"items": items, "nextPageToken": next})
}

func (f *FakeYouTube) serveChannels(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	uploads := f.Uploads
	f.mu.Unlock()

	var items []map[string]any
	for _, id := range strings.Split(r.URL.Query().Get("id"), ",") {
		pl, ok := uploads[id]
		if !ok {
			continue
		}
		related := map[string]any{}
		if pl != "" {
			related["uploads"] = pl
		}
		items = append(items, map[string]any{"id": id, "contentDetails": map[string]any{"relatedPlaylists": related}})
	}
	writeJSON(w, map[string]any{"items": items})
}

func (f *FakeYouTube) servePlaylistItems(w http.ResponseWriter, r *http.Request) {
	playlistID := r.URL.Query().Get("playlistId")
	idx := pageIndex(r.URL.Query().Get("pageToken"))

	f.mu.Lock()
	pages := f.Playlists[playlistID]
	dropAt, drop := f.DropAfter[playlistID]
	f.mu.Unlock()

	if drop && idx >= dropAt {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				conn.Close()
				return
			}
		}
		writeGoogleError(w, http.StatusBadGateway)
		return
	}

	var videos []FakeVideo
	if idx < len(pages) {
		videos = pages[idx]
	}

	items := make([]map[string]any, len(videos))
	for i, v := range videos {
		snippet := map[string]any{"resourceId": map[string]any{"kind": "youtube#video", "videoId": v.ID}}
		if v.Title != "" {
			snippet["title"] = v.Title
		}
		if v.ChannelTitle != "" {
			snippet["channelTitle"] = v.ChannelTitle
		}
		if v.PublishedAt != "" {
			snippet["publishedAt"] = v.PublishedAt
		}
		if len(v.Thumbnails) > 0 {
			thumbs := map[string]any{}
			for size, url := range v.Thumbnails {
				thumbs[size] = map[string]any{"url": url}
			}
			snippet["thumbnails"] = thumbs
		}
		items[i] = map[string]any{"id": fmt.Sprintf("%s-%d-%d", playlistID, idx, i), "snippet": snippet}
	}

	writeJSON(w, map[string]any{"items": items, "nextPageToken": nextToken(idx, len(pages))})
}

func pageIndex(token string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(token, "page-"))
	if err != nil {
		return 0
	}
	return n
}

func nextToken(idx, pages int) string {
	if idx+1 >= pages {
		return ""
	}
	return fmt.Sprintf("page-%d", idx+1)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeGoogleError(w http.ResponseWriter, status int) {
	reason := "backendError"
	switch status {
	case http.StatusUnauthorized:
		reason = "authError"
	case http.StatusTooManyRequests:
		reason = "rateLimitExceeded"
	case http.StatusForbidden:
		reason = "quotaExceeded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": http.StatusText(status),
			"errors":  []map[string]any{{"reason": reason}},
		},
	})
}
