package models

import (
	"errors"
	"strings"
	"time"
)

// Validation errors.
var (
	ErrUserAgentNicknameRequired = errors.New("user agent nickname is required")
	ErrUserAgentValueRequired    = errors.New("user agent value is required")
)

// UserAgent is a named browser identity that operators can assign to
// channels and that the identity pool mixes into credential probes.
type UserAgent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Nickname  string    `gorm:"uniqueIndex;not null" json:"nickname"`
	UserAgent string    `gorm:"not null" json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (UserAgent) TableName() string {
	return "user_agents"
}

// Validate checks that required fields are present.
func (u *UserAgent) Validate() error {
	if strings.TrimSpace(u.Nickname) == "" {
		return ErrUserAgentNicknameRequired
	}
	if strings.TrimSpace(u.UserAgent) == "" {
		return ErrUserAgentValueRequired
	}
	return nil
}
