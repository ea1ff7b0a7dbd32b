package detect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/restreamarr/restreamarr/internal/httpclient"
	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/useragent"
)

// maxPageBytes caps how much of a companion page is read. Stream URLs sit
// in markup or inline script, never megabytes in.
const maxPageBytes = 4 << 20

// streamURLPattern matches HLS playlist URLs embedded in markup or script.
var streamURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+\.m3u8[^\s"'<>\\]*`)

// PageScanner is a Detector that fetches the companion page and scans its
// markup and inline scripts for stream URLs. Embedded player iframes are
// followed one level deep.
type PageScanner struct {
	client       *httpclient.Client
	agents       *useragent.Pool
	limiter      *rate.Limiter
	navTimeout   time.Duration
	totalTimeout time.Duration
	logger       *slog.Logger
}

// PageScannerConfig configures a PageScanner.
type PageScannerConfig struct {
	// NavTimeout bounds each individual page fetch.
	NavTimeout time.Duration
	// TotalTimeout is the hard ceiling for the whole detection attempt.
	TotalTimeout time.Duration
	// RatePerMinute limits how many detections may start per minute.
	// Zero disables the limit.
	RatePerMinute int
}

// NewPageScanner creates a page-scanning detector.
func NewPageScanner(client *httpclient.Client, agents *useragent.Pool, cfg PageScannerConfig) *PageScanner {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}
	if cfg.TotalTimeout <= 0 {
		cfg.TotalTimeout = 45 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), cfg.RatePerMinute)
	}

	return &PageScanner{
		client:       client,
		agents:       agents,
		limiter:      limiter,
		navTimeout:   cfg.NavTimeout,
		totalTimeout: cfg.TotalTimeout,
		logger:       slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *PageScanner) WithLogger(logger *slog.Logger) *PageScanner {
	s.logger = logger
	return s
}

// Detect fetches the website and scans it for a playable stream URL.
func (s *PageScanner) Detect(ctx context.Context, websiteURL string) (*Result, error) {
	if !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(ctx, s.totalTimeout)
	defer cancel()

	ua := s.agents.Random(ctx)

	streamURL, err := s.scanPage(ctx, websiteURL, ua, true)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	if streamURL == "" {
		return nil, ErrNoStreamFound
	}

	s.logger.Info("stream detected",
		slog.String("website_url", websiteURL),
		slog.String("stream_url", streamURL),
	)

	return buildResult(streamURL, websiteURL, ua), nil
}

// scanPage fetches one page and scans it. When followFrames is set, player
// iframes are fetched too, one level deep.
func (s *PageScanner) scanPage(ctx context.Context, pageURL, ua string, followFrames bool) (string, error) {
	body, err := s.fetch(ctx, pageURL, ua)
	if err != nil {
		return "", err
	}

	if m := streamURLPattern.FindString(body); m != "" {
		return m, nil
	}

	streamURL, frames := scanMarkup(body, pageURL)
	if streamURL != "" {
		return streamURL, nil
	}

	if followFrames {
		for _, frame := range frames {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			found, err := s.scanPage(ctx, frame, ua, false)
			if err != nil {
				s.logger.Debug("scanning embedded frame",
					slog.String("frame_url", frame),
					slog.String("error", err.Error()))
				continue
			}
			if found != "" {
				return found, nil
			}
		}
	}

	return "", nil
}

// fetch retrieves a page body with a browser identity and the nav timeout.
func (s *PageScanner) fetch(ctx context.Context, pageURL, ua string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating page request: %w", err)
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching page: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("reading page body: %w", err)
	}
	return string(body), nil
}

// scanMarkup walks the HTML tree looking for media source attributes and
// collecting iframe URLs for a second pass.
func scanMarkup(body, baseURL string) (streamURL string, frames []string) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", nil
	}

	base, _ := url.Parse(baseURL)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if streamURL != "" {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "video", "source":
				if src := attr(n, "src"); looksLikeStream(src) {
					streamURL = resolveRef(base, src)
					return
				}
			case "iframe":
				if src := attr(n, "src"); src != "" {
					if resolved := resolveRef(base, src); resolved != "" {
						frames = append(frames, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return streamURL, frames
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func looksLikeStream(src string) bool {
	return strings.Contains(src, ".m3u8") || strings.Contains(src, ".m3u")
}

// resolveRef resolves a possibly relative reference against the page URL.
func resolveRef(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// buildResult assembles the detection outcome. The referer and origin are
// derived from the page that embedded the stream, which is what upstreams
// check them against.
func buildResult(streamURL, websiteURL, ua string) *Result {
	creds := models.Credentials{UserAgent: ua, Referer: websiteURL}
	if site, err := url.Parse(websiteURL); err == nil && site.Host != "" {
		creds.Origin = site.Scheme + "://" + site.Host
	}

	result := &Result{
		StreamURL:   streamURL,
		Credentials: creds.Sanitized(),
		IsHLS:       strings.Contains(streamURL, ".m3u8"),
	}

	if u, err := url.Parse(streamURL); err == nil {
		params := u.Query()
		if len(params) > 0 {
			result.URLParams = make(map[string]string, len(params))
			for k := range params {
				result.URLParams[k] = params.Get(k)
			}
		}
	}

	return result
}
