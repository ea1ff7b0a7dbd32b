// Package detect discovers playable stream URLs and working request
// credentials from a channel's companion website.
package detect

import (
	"context"
	"errors"

	"github.com/restreamarr/restreamarr/internal/models"
)

// Errors returned by detectors.
var (
	// ErrTimeout means the detection attempt hit its hard time ceiling.
	ErrTimeout = errors.New("stream detection timed out")
	// ErrNoStreamFound means the page was reachable but exposed no stream URL.
	ErrNoStreamFound = errors.New("no stream URL found on page")
	// ErrRateLimited means too many detections were started recently.
	ErrRateLimited = errors.New("stream detection rate limited")
)

// Result is a successful detection outcome.
type Result struct {
	// StreamURL is the discovered playable URL.
	StreamURL string `json:"stream_url"`
	// Credentials is the header set the upstream accepted during discovery.
	Credentials models.Credentials `json:"headers"`
	// IsHLS reports whether the URL looks like an HLS playlist.
	IsHLS bool `json:"is_hls"`
	// URLParams are the query parameters carried by the stream URL. Tokens
	// and expiry stamps usually live here; exposing them lets operators see
	// when a URL is inherently short-lived.
	URLParams map[string]string `json:"url_params,omitempty"`
}

// Detector discovers a stream URL behind a companion website.
//
// Implementations must respect the context and enforce their own hard time
// ceiling: a detection that cannot finish must fail with ErrTimeout rather
// than hold its caller hostage.
type Detector interface {
	Detect(ctx context.Context, websiteURL string) (*Result, error)
}
