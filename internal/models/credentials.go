package models

import "strings"

// Credentials is the request header set replayed against a stream upstream.
// Only these three headers are ever forwarded; anything else a caller
// supplies is dropped at the API boundary.
type Credentials struct {
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
	Origin    string `json:"origin,omitempty"`
}

// sanitizeHeaderValue strips trailing semicolons and whitespace that
// copy-pasted header values tend to carry.
func sanitizeHeaderValue(v string) string {
	return strings.TrimRight(v, "; \t\r\n")
}

// Sanitized returns a copy with every value cleaned up.
func (c Credentials) Sanitized() Credentials {
	return Credentials{
		UserAgent: sanitizeHeaderValue(c.UserAgent),
		Referer:   sanitizeHeaderValue(c.Referer),
		Origin:    sanitizeHeaderValue(c.Origin),
	}
}

// IsZero reports whether no header is set.
func (c Credentials) IsZero() bool {
	return c.UserAgent == "" && c.Referer == "" && c.Origin == ""
}

// MergedWith returns c with any empty field filled from fallback. Used when
// a refresh discovers only a partial credential set.
func (c Credentials) MergedWith(fallback Credentials) Credentials {
	out := c
	if out.UserAgent == "" {
		out.UserAgent = fallback.UserAgent
	}
	if out.Referer == "" {
		out.Referer = fallback.Referer
	}
	if out.Origin == "" {
		out.Origin = fallback.Origin
	}
	return out
}

// Credentials returns the channel's stored credential set.
func (c *Channel) Credentials() Credentials {
	return Credentials{
		UserAgent: c.UserAgent,
		Referer:   c.Referer,
		Origin:    c.Origin,
	}
}
