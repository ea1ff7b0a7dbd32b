package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannelValidate(t *testing.T) {
	ch := &Channel{Name: "one", StreamURL: "http://src/a.m3u8"}
	assert.NoError(t, ch.Validate())

	assert.ErrorIs(t, (&Channel{StreamURL: "http://src/a.m3u8"}).Validate(), ErrChannelNameRequired)
	assert.ErrorIs(t, (&Channel{Name: "  "}).Validate(), ErrChannelNameRequired)
	assert.ErrorIs(t, (&Channel{Name: "one"}).Validate(), ErrChannelStreamRequired)
}

func TestClampUpdateInterval(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 24},
		{-5, 1},
		{1, 1},
		{48, 48},
		{168, 168},
		{500, 168},
	}

	for _, tt := range tests {
		ch := &Channel{AutoUpdateIntervalHours: tt.in}
		ch.ClampUpdateInterval()
		assert.Equal(t, tt.want, ch.AutoUpdateIntervalHours, "interval %d", tt.in)
	}
}

func TestUpdateDue(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	thirteenAgo := now.Add(-13 * time.Hour)
	elevenAgo := now.Add(-11 * time.Hour)
	exactly := now.Add(-12 * time.Hour)

	assert.False(t, (&Channel{AutoUpdateIntervalHours: 12, LastUpdate: &thirteenAgo}).UpdateDue(now),
		"disabled channels are never due")
	assert.True(t, (&Channel{AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12, LastUpdate: &thirteenAgo}).UpdateDue(now))
	assert.False(t, (&Channel{AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12, LastUpdate: &elevenAgo}).UpdateDue(now))
	assert.True(t, (&Channel{AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12, LastUpdate: &exactly}).UpdateDue(now),
		"the boundary instant counts as due")
	assert.True(t, (&Channel{AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12}).UpdateDue(now),
		"never-refreshed channels are immediately due")
}

func TestCredentialsSanitized(t *testing.T) {
	creds := Credentials{
		UserAgent: "agent/1.0; ",
		Referer:   "http://site/watch;\t",
		Origin:    "http://site\r\n",
	}.Sanitized()

	assert.Equal(t, "agent/1.0", creds.UserAgent)
	assert.Equal(t, "http://site/watch", creds.Referer)
	assert.Equal(t, "http://site", creds.Origin)
}

func TestCredentialsMergedWith(t *testing.T) {
	partial := Credentials{UserAgent: "new-agent"}
	prior := Credentials{UserAgent: "old-agent", Referer: "http://site/old", Origin: "http://site"}

	merged := partial.MergedWith(prior)
	assert.Equal(t, "new-agent", merged.UserAgent)
	assert.Equal(t, "http://site/old", merged.Referer)
	assert.Equal(t, "http://site", merged.Origin)
}

func TestCredentialsIsZero(t *testing.T) {
	assert.True(t, Credentials{}.IsZero())
	assert.False(t, Credentials{Referer: "http://site"}.IsZero())
}
