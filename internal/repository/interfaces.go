// Package repository provides data access interfaces and GORM-backed
// implementations for restreamarr.
package repository

import (
	"context"
	"time"

	"github.com/restreamarr/restreamarr/internal/models"
)

// ChannelRepository manages channel persistence.
//
// Lookup methods return (nil, nil) when no row matches, so callers can
// distinguish absence from failure without unwrapping driver errors.
type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id uint) (*models.Channel, error)
	GetByStreamURL(ctx context.Context, streamURL string) (*models.Channel, error)
	List(ctx context.Context) ([]*models.Channel, error)
	ListAutoUpdate(ctx context.Context) ([]*models.Channel, error)
	Update(ctx context.Context, channel *models.Channel) error
	// UpdateCredentials persists a refreshed credential set and stamps the
	// refresh time in one write.
	UpdateCredentials(ctx context.Context, id uint, userAgent, referer, origin string, refreshedAt time.Time) error
	Delete(ctx context.Context, id uint) error
	// Resequence renumbers all channels into a contiguous 1..n range
	// ordered by their current ids.
	Resequence(ctx context.Context) error
}

// UserAgentRepository manages stored browser identities.
type UserAgentRepository interface {
	Create(ctx context.Context, ua *models.UserAgent) error
	GetByNickname(ctx context.Context, nickname string) (*models.UserAgent, error)
	List(ctx context.Context) ([]*models.UserAgent, error)
	Delete(ctx context.Context, id uint) error
}
