package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/restreamarr/restreamarr/internal/detect"
	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/relay"
	"github.com/restreamarr/restreamarr/internal/repository"
	"github.com/restreamarr/restreamarr/internal/resolver"
)

// StreamHandler handles the raw streaming endpoints. These bypass the API
// framework: the proxy response is an unbounded MPEG-TS byte stream.
type StreamHandler struct {
	orchestrator *relay.Orchestrator
	channels     repository.ChannelRepository
	logger       *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(orchestrator *relay.Orchestrator, channels repository.ChannelRepository, logger *slog.Logger) *StreamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamHandler{
		orchestrator: orchestrator,
		channels:     channels,
		logger:       logger,
	}
}

// Register registers the streaming routes on the raw router.
func (h *StreamHandler) Register(router chi.Router) {
	router.Get("/proxy/stream", h.ProxyStream)
	router.Get("/static/stream/{channelID}", h.StaticStream)
	router.Get("/api/v1/streams/status", h.Status)
}

// ProxyStream proxies one upstream source to the client as MPEG-TS.
func (h *StreamHandler) ProxyStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	req := relay.StreamRequest{
		SourceURL:  query.Get("url"),
		ClientAddr: clientAddr(r),
		Credentials: models.Credentials{
			UserAgent: query.Get("userAgent"),
			Referer:   query.Get("referer"),
			Origin:    query.Get("origin"),
		}.Sanitized(),
	}

	stream, err := h.orchestrator.Prepare(r.Context(), req)
	if err != nil {
		h.writePrepareError(w, err)
		return
	}

	err = stream.Relay(r.Context(), w, func() {
		w.Header().Set("Content-Type", "video/mp2t")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(http.StatusOK)
	})
	if err != nil && !errors.Is(err, r.Context().Err()) {
		// Nothing was written yet, so a real error response is still
		// possible.
		writeJSONError(w, http.StatusInternalServerError, "transcoding failed: "+err.Error())
	}
}

// writePrepareError maps lifecycle errors onto HTTP statuses.
func (h *StreamHandler) writePrepareError(w http.ResponseWriter, err error) {
	var statusErr *resolver.StatusError

	switch {
	case errors.Is(err, relay.ErrMissingURL):
		writeJSONError(w, http.StatusBadRequest, "url parameter is required")
	case errors.Is(err, relay.ErrShuttingDown):
		writeJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
	case errors.Is(err, resolver.ErrNoCompanionSite):
		writeJSONError(w, http.StatusBadGateway, "upstream rejected credentials and no companion website is configured")
	case errors.Is(err, resolver.ErrRetriesExhausted):
		writeJSONError(w, http.StatusBadGateway, "upstream kept rejecting credentials: "+err.Error())
	case errors.Is(err, resolver.ErrInvalidPlaylist):
		writeJSONError(w, http.StatusBadGateway, "upstream returned an unplayable playlist")
	case errors.Is(err, detect.ErrTimeout):
		writeJSONError(w, http.StatusRequestTimeout, "timed out refreshing credentials")
	case errors.As(err, &statusErr):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

// StaticStream redirects a stable channel URL to the proxy endpoint with
// the channel's current credentials. Players keep this URL; credentials
// stay server-side and refresh underneath it.
func (h *StreamHandler) StaticStream(w http.ResponseWriter, r *http.Request) {
	id, err := parseUint(chi.URLParam(r, "channelID"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid channel ID")
		return
	}

	channel, err := h.channels.GetByID(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load channel")
		return
	}
	if channel == nil {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("channel %d not found", id))
		return
	}

	creds := channel.Credentials().Sanitized()
	params := url.Values{}
	params.Set("url", channel.StreamURL)
	if creds.UserAgent != "" {
		params.Set("userAgent", creds.UserAgent)
	}
	if creds.Referer != "" {
		params.Set("referer", creds.Referer)
	}
	if creds.Origin != "" {
		params.Set("origin", creds.Origin)
	}

	http.Redirect(w, r, "/proxy/stream?"+params.Encode(), http.StatusFound)
}

// streamStatusEntry is one live session in the status response.
type streamStatusEntry struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Status reports the live session count and per-session durations.
func (h *StreamHandler) Status(w http.ResponseWriter, r *http.Request) {
	snapshot := h.orchestrator.Registry().Snapshot(time.Now())

	sessions := make([]streamStatusEntry, 0, len(snapshot))
	for _, info := range snapshot {
		sessions = append(sessions, streamStatusEntry{
			ID:              info.ID,
			URL:             info.URL,
			DurationSeconds: info.Duration.Seconds(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

// clientAddr extracts the client host for session deduplication, so one
// client reconnecting on a new ephemeral port supersedes its old session.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseUint(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint(v), err
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
