package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/restreamarr/restreamarr/internal/models"
)

// userAgentRepo implements UserAgentRepository using GORM.
type userAgentRepo struct {
	db *gorm.DB
}

// NewUserAgentRepository creates a new UserAgentRepository.
func NewUserAgentRepository(db *gorm.DB) UserAgentRepository {
	return &userAgentRepo{db: db}
}

// Create creates a new stored user agent.
func (r *userAgentRepo) Create(ctx context.Context, ua *models.UserAgent) error {
	if err := r.db.WithContext(ctx).Create(ua).Error; err != nil {
		return fmt.Errorf("creating user agent: %w", err)
	}
	return nil
}

// GetByNickname retrieves a stored user agent by its unique nickname.
func (r *userAgentRepo) GetByNickname(ctx context.Context, nickname string) (*models.UserAgent, error) {
	var ua models.UserAgent
	if err := r.db.WithContext(ctx).Where("nickname = ?", nickname).First(&ua).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting user agent by nickname: %w", err)
	}
	return &ua, nil
}

// List retrieves all stored user agents ordered by nickname.
func (r *userAgentRepo) List(ctx context.Context) ([]*models.UserAgent, error) {
	var agents []*models.UserAgent
	if err := r.db.WithContext(ctx).Order("nickname ASC").Find(&agents).Error; err != nil {
		return nil, fmt.Errorf("listing user agents: %w", err)
	}
	return agents, nil
}

// Delete deletes a stored user agent by ID.
func (r *userAgentRepo) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.UserAgent{}).Error; err != nil {
		return fmt.Errorf("deleting user agent: %w", err)
	}
	return nil
}

// Ensure userAgentRepo implements UserAgentRepository at compile time.
var _ UserAgentRepository = (*userAgentRepo)(nil)
