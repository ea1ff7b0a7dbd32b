package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/restreamarr/restreamarr/internal/playlist"
	"github.com/restreamarr/restreamarr/internal/repository"
)

// PlaylistHandler serves the channel lineup as an M3U playlist.
type PlaylistHandler struct {
	channels repository.ChannelRepository
	logger   *slog.Logger
}

// NewPlaylistHandler creates a new playlist handler.
func NewPlaylistHandler(channels repository.ChannelRepository, logger *slog.Logger) *PlaylistHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaylistHandler{channels: channels, logger: logger}
}

// Register registers the playlist route on the raw router. The playlist
// embeds absolute URLs built from the request host, which the API
// framework does not expose.
func (h *PlaylistHandler) Register(router chi.Router) {
	router.Get("/playlist.m3u", h.GetPlaylist)
}

// GetPlaylist renders the M3U playlist for all channels.
func (h *PlaylistHandler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	channels, err := h.channels.List(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to generate playlist")
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	w.Header().Set("Content-Type", playlist.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="channels.m3u"`)

	if err := playlist.Render(w, scheme+"://"+r.Host, channels); err != nil {
		h.logger.Warn("writing playlist response", slog.Any("error", err))
	}
}
