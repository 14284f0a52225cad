package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/subfeed/internal/models"
)

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true).MarginBottom(1)
	dayStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	titleStyle   = lipgloss.NewStyle().Bold(true)
	channelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))
	urlStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")).Italic(true)
	entryStyle   = lipgloss.NewStyle().PaddingLeft(2)
)

// RenderPretty renders a feed for the terminal, grouped by publish day.
// Titles longer than width are truncated; width <= 0 disables truncation.
func RenderPretty(videos []models.Video, width int) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Subscription feed · %d videos", len(videos))))
	b.WriteString("\n")

	if len(videos) == 0 {
		b.WriteString(urlStyle.Render("No recent videos from your subscriptions."))
		b.WriteString("\n")
		return b.String()
	}

	day := ""
	for _, v := range videos {
		if d := v.PublishedAt.Local().Format("Monday, January 2"); d != day {
			if day != "" {
				b.WriteString("\n")
			}
			day = d
			b.WriteString(dayStyle.Render(day))
			b.WriteString("\n")
		}

		title := v.Title
		if width > 0 {
			title = truncate(title, width)
		}
		entry := fmt.Sprintf("%s %s\n%s  %s",
			v.PublishedAt.Local().Format(time.Kitchen),
			titleStyle.Render(title),
			channelStyle.Render(v.ChannelTitle),
			urlStyle.Render(v.URL),
		)
		b.WriteString(entryStyle.Render(entry))
		b.WriteString("\n")
	}
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
