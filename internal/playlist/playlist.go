// Package playlist renders the channel lineup as an M3U playlist in the
// Threadfin compatible format.
package playlist

import (
	"fmt"
	"io"
	"strings"

	"github.com/restreamarr/restreamarr/internal/models"
)

// ContentType is the MIME type for the rendered playlist.
const ContentType = "application/x-mpegurl"

// Render writes the playlist for the given channels. Each entry points at
// the stable /static/stream/{id} URL so players survive credential
// refreshes without re-importing the playlist.
func Render(w io.Writer, baseURL string, channels []*models.Channel) error {
	baseURL = strings.TrimRight(baseURL, "/")

	if _, err := io.WriteString(w, "#EXTM3U\n"); err != nil {
		return fmt.Errorf("writing playlist header: %w", err)
	}

	for _, channel := range channels {
		var entry strings.Builder
		fmt.Fprintf(&entry, "#EXTINF:-1 tvg-id=%q tvg-name=%q", fmt.Sprint(channel.ID), channel.Name)
		if icon := RewriteIconURL(channel.IconURL); icon != "" {
			fmt.Fprintf(&entry, " tvg-logo=%q", icon)
		}
		fmt.Fprintf(&entry, " group-title=\"ReStreamArr\",%s\n", channel.Name)
		fmt.Fprintf(&entry, "%s/static/stream/%d\n", baseURL, channel.ID)

		if _, err := io.WriteString(w, entry.String()); err != nil {
			return fmt.Errorf("writing playlist entry for channel %d: %w", channel.ID, err)
		}
	}
	return nil
}

// RewriteIconURL turns a GitHub blob page URL into the raw content URL so
// players fetch the image instead of an HTML page.
func RewriteIconURL(iconURL string) string {
	if strings.Contains(iconURL, "github.com") && strings.Contains(iconURL, "/blob/") {
		iconURL = strings.Replace(iconURL, "github.com", "raw.githubusercontent.com", 1)
		iconURL = strings.Replace(iconURL, "/blob/", "/", 1)
	}
	return iconURL
}
