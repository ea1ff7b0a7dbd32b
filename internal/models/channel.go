// Package models defines the persistent data model for restreamarr.
package models

import (
	"errors"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrChannelNameRequired   = errors.New("channel name is required")
	ErrChannelStreamRequired = errors.New("channel stream URL is required")
)

// Auto-update interval bounds in hours. Values outside this range are
// clamped, not rejected.
const (
	MinUpdateIntervalHours = 1
	MaxUpdateIntervalHours = 168
)

// Channel is a configured live stream source together with the request
// credentials its upstream expects.
type Channel struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"not null;index" json:"name"`

	// StreamURL is the M3U/M3U8 source handed to the transcoder.
	StreamURL string `gorm:"not null" json:"stream_url"`
	// WebsiteURL is the companion page scanned when credentials go stale.
	// Empty means the channel cannot be auto-refreshed.
	WebsiteURL string `json:"website_url,omitempty"`
	IconURL    string `json:"icon_url,omitempty"`

	// Request credential set replayed against the upstream.
	UserAgent string `json:"user_agent,omitempty"`
	Referer   string `json:"referer,omitempty"`
	Origin    string `json:"origin,omitempty"`

	AutoUpdateEnabled       bool       `gorm:"default:false" json:"auto_update_enabled"`
	AutoUpdateIntervalHours int        `gorm:"default:24" json:"auto_update_interval_hours"`
	LastUpdate              *time.Time `json:"last_update,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Channel) TableName() string {
	return "channels"
}

// Validate checks that required fields are present.
func (c *Channel) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrChannelNameRequired
	}
	if strings.TrimSpace(c.StreamURL) == "" {
		return ErrChannelStreamRequired
	}
	return nil
}

// ClampUpdateInterval forces the auto-update interval into the allowed
// range, defaulting to 24h when unset.
func (c *Channel) ClampUpdateInterval() {
	switch {
	case c.AutoUpdateIntervalHours == 0:
		c.AutoUpdateIntervalHours = 24
	case c.AutoUpdateIntervalHours < MinUpdateIntervalHours:
		c.AutoUpdateIntervalHours = MinUpdateIntervalHours
	case c.AutoUpdateIntervalHours > MaxUpdateIntervalHours:
		c.AutoUpdateIntervalHours = MaxUpdateIntervalHours
	}
}

// UpdateDue reports whether the channel's credentials are due for a
// refresh at the given time. A channel that has never been refreshed is
// always due.
func (c *Channel) UpdateDue(now time.Time) bool {
	if !c.AutoUpdateEnabled {
		return false
	}
	if c.LastUpdate == nil {
		return true
	}
	next := c.LastUpdate.Add(time.Duration(c.AutoUpdateIntervalHours) * time.Hour)
	return !now.Before(next)
}
