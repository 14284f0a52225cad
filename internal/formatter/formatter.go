// package formatter provides functions to export feed data to various formats (CSV, Markdown, plain text, JSON, YAML)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/subfeed/internal/models"
	"github.com/desertthunder/subfeed/internal/shared"
	"gopkg.in/yaml.v3"
)

// Format names an output rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatPretty   Format = "pretty"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// Formats lists every supported format in help order.
var Formats = []Format{FormatText, FormatPretty, FormatJSON, FormatCSV, FormatMarkdown, FormatYAML}

// ParseFormat validates a user-supplied format name. "md" and "txt" are accepted as aliases.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case "md":
		return FormatMarkdown, nil
	case "txt":
		return FormatText, nil
	case "yml":
		return FormatYAML, nil
	default:
		if slices.Contains(Formats, f) {
			return f, nil
		}
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension returns the file extension conventionally used for f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatYAML:
		return ".yaml"
	default:
		return ".txt"
	}
}

// ExportToCSV converts a feed to CSV format with columns: Video ID, Published, Channel, Title, URL, Thumbnail
func ExportToCSV(videos []models.Video) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Video ID", "Published", "Channel", "Title", "URL", "Thumbnail"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, v := range videos {
		record := []string{
			v.VideoID,
			v.PublishedAt.UTC().Format(time.RFC3339),
			v.ChannelTitle,
			v.Title,
			v.URL,
			v.Thumbnail,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a feed to a Markdown list grouped by publish day.
//
// When thumbnails is set each entry is preceded by its thumbnail image.
func ExportToMarkdown(videos []models.Video, title string, thumbnails bool) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = "Subscription feed"
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Videos**: %d\n", len(videos)))

	day := ""
	for _, v := range videos {
		if d := v.PublishedAt.UTC().Format(time.DateOnly); d != day {
			day = d
			buf.WriteString(fmt.Sprintf("\n## %s\n\n", day))
		}
		if thumbnails && v.Thumbnail != "" {
			buf.WriteString(fmt.Sprintf("[![%s](%s)](%s)\n", escapeMarkdown(v.Title), v.Thumbnail, v.URL))
		}
		buf.WriteString(fmt.Sprintf("- [%s](%s) - %s\n", escapeMarkdown(v.Title), v.URL, escapeMarkdown(v.ChannelTitle)))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a feed to plain text format
func ExportToText(videos []models.Video) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Videos: %d\n\n", len(videos)))
	for i, v := range videos {
		buf.WriteString(fmt.Sprintf("%d. [%s] %s - %s\n   %s\n",
			i+1, v.PublishedAt.UTC().Format("2006-01-02 15:04"), v.ChannelTitle, v.Title, v.URL))
	}

	return buf.Bytes(), nil
}

// ExportToJSON converts a feed to a JSON array.
func ExportToJSON(videos []models.Video, pretty bool) ([]byte, error) {
	if videos == nil {
		videos = []models.Video{}
	}
	return shared.MarshalJSON(videos, pretty)
}

// ExportToYAML converts a feed to a YAML sequence.
func ExportToYAML(videos []models.Video) ([]byte, error) {
	if videos == nil {
		videos = []models.Video{}
	}
	data, err := yaml.Marshal(videos)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return data, nil
}

// Export renders videos in format f.
func Export(videos []models.Video, f Format) ([]byte, error) {
	switch f {
	case FormatText, "":
		return ExportToText(videos)
	case FormatPretty:
		return []byte(RenderPretty(videos, 0)), nil
	case FormatJSON:
		return ExportToJSON(videos, true)
	case FormatCSV:
		return ExportToCSV(videos)
	case FormatMarkdown:
		return ExportToMarkdown(videos, "", false)
	case FormatYAML:
		return ExportToYAML(videos)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
}

// WriteExport renders videos in format f and writes them to path.
//
// Defaults to feed_{epoch}{ext} as the filename.
func WriteExport(videos []models.Video, f Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("feed_%d%s", time.Now().Unix(), f.Extension())
	}

	data, err := Export(videos, f)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	return path, nil
}

// ExportDetails renders search or channel results. Markdown and pretty fall back to text.
func ExportDetails(details []models.VideoDetail, f Format) ([]byte, error) {
	if details == nil {
		details = []models.VideoDetail{}
	}

	switch f {
	case FormatJSON:
		return shared.MarshalJSON(details, true)
	case FormatYAML:
		data, err := yaml.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return data, nil
	case FormatCSV:
		var buf bytes.Buffer
		writer := csv.NewWriter(&buf)
		writer.Write([]string{"Video ID", "Published", "Channel", "Title", "Duration", "Views", "URL"})
		for _, d := range details {
			writer.Write([]string{d.VideoID, d.PublishedAt, d.ChannelTitle, d.Title, d.Duration, strconv.FormatUint(d.ViewCount, 10), d.URL})
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return nil, fmt.Errorf("CSV writer error: %w", err)
		}
		return buf.Bytes(), nil
	default:
		var buf bytes.Buffer
		for i, d := range details {
			buf.WriteString(fmt.Sprintf("%d. %s - %s [%s, %s views]\n   %s\n",
				i+1, d.ChannelTitle, d.Title, FormatISODuration(d.Duration), strconv.FormatUint(d.ViewCount, 10), d.URL))
		}
		return buf.Bytes(), nil
	}
}

// FormatISODuration renders an ISO 8601 duration such as PT1H4M13S as 1:04:13.
// Values it cannot read are returned unchanged.
func FormatISODuration(iso string) string {
	rest, ok := strings.CutPrefix(iso, "PT")
	if !ok {
		return iso
	}

	var h, m, s int
	for rest != "" {
		i := strings.IndexAny(rest, "HMS")
		if i <= 0 {
			return iso
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return iso
		}
		switch rest[i] {
		case 'H':
			h = n
		case 'M':
			m = n
		case 'S':
			s = n
		}
		rest = rest[i+1:]
	}

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var markdownEscaper = strings.NewReplacer("[", `\[`, "]", `\]`, "*", `\*`, "_", `\_`)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
