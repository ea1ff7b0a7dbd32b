// Package resolver validates stream credentials against upstreams and
// refreshes them from the channel's companion website when the upstream
// starts rejecting requests.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/restreamarr/restreamarr/internal/detect"
	"github.com/restreamarr/restreamarr/internal/httpclient"
	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/repository"
	"github.com/restreamarr/restreamarr/internal/useragent"
)

// Errors returned by the resolver.
var (
	// ErrNoCompanionSite means credentials are stale and the channel has no
	// website to refresh them from. This failure is permanent.
	ErrNoCompanionSite = errors.New("credentials rejected and no companion website configured")

	// ErrRetriesExhausted means every refresh attempt still got rejected.
	ErrRetriesExhausted = errors.New("credential refresh retries exhausted")

	// ErrInvalidPlaylist means the upstream answered but the body is not a
	// usable HLS playlist.
	ErrInvalidPlaylist = errors.New("upstream returned an invalid playlist")
)

// StatusError reports a terminal upstream HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// maxPlaylistBytes caps how much playlist body is read for validation.
const maxPlaylistBytes = 1 << 20

// Outcome is a successful validation: the URL to stream from and the
// credential set the upstream accepted. The URL can differ from the input
// when a refresh discovered that the source moved.
type Outcome struct {
	SourceURL   string
	Credentials models.Credentials
}

// Resolver probes upstreams and drives the refresh retry loop.
type Resolver struct {
	client       *httpclient.Client
	channels     repository.ChannelRepository
	detector     detect.Detector
	agents       *useragent.Pool
	maxRetries   int
	probeTimeout time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Resolver with the default retry budget of 3 attempts.
func New(client *httpclient.Client, channels repository.ChannelRepository, detector detect.Detector, agents *useragent.Pool) *Resolver {
	return &Resolver{
		client:       client,
		channels:     channels,
		detector:     detector,
		agents:       agents,
		maxRetries:   3,
		probeTimeout: 15 * time.Second,
		logger:       slog.Default(),
		now:          time.Now,
	}
}

// WithLogger sets a custom logger.
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// WithMaxRetries overrides the probe attempt budget.
func (r *Resolver) WithMaxRetries(n int) *Resolver {
	if n > 0 {
		r.maxRetries = n
	}
	return r
}

// WithProbeTimeout overrides the per-probe timeout.
func (r *Resolver) WithProbeTimeout(d time.Duration) *Resolver {
	if d > 0 {
		r.probeTimeout = d
	}
	return r
}

// ValidateAndRefresh probes the source with the given credentials. On an
// auth rejection it refreshes credentials from the channel's companion
// website and retries, up to the attempt budget. The loop is bounded: it
// ends in success, a permanent auth failure, or a terminal upstream error.
func (r *Resolver) ValidateAndRefresh(ctx context.Context, sourceURL string, creds models.Credentials) (*Outcome, error) {
	creds = creds.Sanitized()
	lastStatus := 0

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		probeCreds := creds
		if probeCreds.UserAgent == "" {
			// Rotate through browser identities so repeated probes do not
			// present the exact fingerprint that just got rejected.
			probeCreds.UserAgent = r.agents.Random(ctx)
		}

		status, err := r.probe(ctx, sourceURL, probeCreds)
		if err != nil {
			return nil, err
		}

		if status < http.StatusBadRequest {
			r.logger.Debug("credentials validated",
				slog.String("source_url", sourceURL),
				slog.Int("attempt", attempt),
			)
			return &Outcome{SourceURL: sourceURL, Credentials: probeCreds}, nil
		}

		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return nil, &StatusError{StatusCode: status}
		}

		lastStatus = status
		r.logger.Warn("upstream rejected credentials",
			slog.String("source_url", sourceURL),
			slog.Int("status", status),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.maxRetries),
		)

		if attempt == r.maxRetries {
			break
		}

		refreshedURL, refreshedCreds, err := r.refreshForSource(ctx, sourceURL, creds)
		if err != nil {
			return nil, err
		}
		sourceURL = refreshedURL
		creds = refreshedCreds
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, r.maxRetries, &StatusError{StatusCode: lastStatus})
}

// refreshForSource refreshes credentials for the channel that owns the
// source URL. A source with no backing channel or no companion website
// cannot be refreshed, which makes the auth failure permanent.
func (r *Resolver) refreshForSource(ctx context.Context, sourceURL string, prior models.Credentials) (string, models.Credentials, error) {
	channel, err := r.channels.GetByStreamURL(ctx, sourceURL)
	if err != nil {
		return "", models.Credentials{}, fmt.Errorf("looking up channel for refresh: %w", err)
	}
	if channel == nil || channel.WebsiteURL == "" {
		return "", models.Credentials{}, ErrNoCompanionSite
	}

	result, err := r.detector.Detect(ctx, channel.WebsiteURL)
	if err != nil {
		return "", models.Credentials{}, fmt.Errorf("refreshing credentials: %w", err)
	}

	// Detection may return a partial header set; keep prior values for
	// anything it left blank.
	creds := result.Credentials.Sanitized().MergedWith(prior)

	refreshedURL := sourceURL
	if result.StreamURL != "" && result.StreamURL != sourceURL {
		refreshedURL = result.StreamURL
		channel.StreamURL = result.StreamURL
	}

	channel.UserAgent = creds.UserAgent
	channel.Referer = creds.Referer
	channel.Origin = creds.Origin
	refreshedAt := r.now()
	channel.LastUpdate = &refreshedAt

	if err := r.channels.Update(ctx, channel); err != nil {
		return "", models.Credentials{}, fmt.Errorf("persisting refreshed credentials: %w", err)
	}

	r.logger.Info("credentials refreshed",
		slog.String("website_url", channel.WebsiteURL),
		slog.Uint64("channel_id", uint64(channel.ID)),
	)

	return refreshedURL, creds, nil
}

// RefreshFromWebsite refreshes a channel's credentials directly, without a
// probe first. Used by the auto-update scheduler and force updates.
func (r *Resolver) RefreshFromWebsite(ctx context.Context, channel *models.Channel) error {
	if channel.WebsiteURL == "" {
		return ErrNoCompanionSite
	}

	result, err := r.detector.Detect(ctx, channel.WebsiteURL)
	if err != nil {
		return fmt.Errorf("detecting stream for channel %d: %w", channel.ID, err)
	}

	creds := result.Credentials.Sanitized().MergedWith(channel.Credentials())
	channel.UserAgent = creds.UserAgent
	channel.Referer = creds.Referer
	channel.Origin = creds.Origin
	if result.StreamURL != "" {
		channel.StreamURL = result.StreamURL
	}
	refreshedAt := r.now()
	channel.LastUpdate = &refreshedAt

	if err := r.channels.Update(ctx, channel); err != nil {
		return fmt.Errorf("persisting refreshed channel %d: %w", channel.ID, err)
	}
	return nil
}

// probe issues a single GET against the source and reports the status. For
// HLS playlists the body is parsed to confirm it is actually playable;
// plenty of upstreams answer 200 with an error page.
func (r *Resolver) probe(ctx context.Context, sourceURL string, creds models.Credentials) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating probe request: %w", err)
	}
	if creds.UserAgent != "" {
		req.Header.Set("User-Agent", creds.UserAgent)
	}
	if creds.Referer != "" {
		req.Header.Set("Referer", creds.Referer)
	}
	if creds.Origin != "" {
		req.Header.Set("Origin", creds.Origin)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probing source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, nil
	}

	if isHLSURL(sourceURL) {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxPlaylistBytes))
		if err != nil {
			return 0, fmt.Errorf("reading playlist body: %w", err)
		}
		if _, err := playlist.Unmarshal(body); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidPlaylist, err)
		}
	}

	return resp.StatusCode, nil
}

// isHLSURL reports whether the URL path names an HLS playlist.
func isHLSURL(sourceURL string) bool {
	base := sourceURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	return strings.HasSuffix(base, ".m3u8")
}
