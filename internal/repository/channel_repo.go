package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/restreamarr/restreamarr/internal/models"
)

// channelRepo implements ChannelRepository using GORM.
type channelRepo struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepo{db: db}
}

// Create creates a new channel.
func (r *channelRepo) Create(ctx context.Context, channel *models.Channel) error {
	if err := r.db.WithContext(ctx).Create(channel).Error; err != nil {
		return fmt.Errorf("creating channel: %w", err)
	}
	return nil
}

// GetByID retrieves a channel by ID.
func (r *channelRepo) GetByID(ctx context.Context, id uint) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting channel by ID: %w", err)
	}
	return &channel, nil
}

// GetByStreamURL retrieves the channel configured with the given stream URL.
func (r *channelRepo) GetByStreamURL(ctx context.Context, streamURL string) (*models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).Where("stream_url = ?", streamURL).First(&channel).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting channel by stream URL: %w", err)
	}
	return &channel, nil
}

// List retrieves all channels ordered by ID.
func (r *channelRepo) List(ctx context.Context) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}
	return channels, nil
}

// ListAutoUpdate retrieves all channels with auto-update enabled.
func (r *channelRepo) ListAutoUpdate(ctx context.Context) ([]*models.Channel, error) {
	var channels []*models.Channel
	if err := r.db.WithContext(ctx).
		Where("auto_update_enabled = ?", true).
		Order("id ASC").
		Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("listing auto-update channels: %w", err)
	}
	return channels, nil
}

// Update updates an existing channel.
func (r *channelRepo) Update(ctx context.Context, channel *models.Channel) error {
	if err := r.db.WithContext(ctx).Save(channel).Error; err != nil {
		return fmt.Errorf("updating channel: %w", err)
	}
	return nil
}

// UpdateCredentials persists a refreshed credential set and the refresh time.
func (r *channelRepo) UpdateCredentials(ctx context.Context, id uint, userAgent, referer, origin string, refreshedAt time.Time) error {
	updates := map[string]interface{}{
		"user_agent":  userAgent,
		"referer":     referer,
		"origin":      origin,
		"last_update": refreshedAt,
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("updating channel credentials: %w", err)
	}
	return nil
}

// Delete deletes a channel by ID.
func (r *channelRepo) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Channel{}).Error; err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return nil
}

// Resequence renumbers all channels into a contiguous 1..n range ordered by
// their current ids. The rewrite happens inside one transaction so readers
// never observe a half-renumbered table.
func (r *channelRepo) Resequence(ctx context.Context) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var channels []*models.Channel
		if err := tx.Order("id ASC").Find(&channels).Error; err != nil {
			return fmt.Errorf("loading channels: %w", err)
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
			Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("clearing channels: %w", err)
		}

		for i, channel := range channels {
			channel.ID = uint(i + 1)
			if err := tx.Create(channel).Error; err != nil {
				return fmt.Errorf("reinserting channel %q: %w", channel.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("resequencing channels: %w", err)
	}
	return nil
}

// Ensure channelRepo implements ChannelRepository at compile time.
var _ ChannelRepository = (*channelRepo)(nil)
