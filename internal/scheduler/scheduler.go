// Package scheduler runs the periodic auto-update check that refreshes
// channel stream credentials from their companion websites.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/repository"
)

// Refresher refreshes one channel's stream URL and credentials from its
// companion website and persists the result.
type Refresher interface {
	RefreshFromWebsite(ctx context.Context, channel *models.Channel) error
}

// UpdateResult reports the outcome of one channel refresh.
type UpdateResult struct {
	ChannelID uint   `json:"channel_id"`
	Name      string `json:"name"`
	Updated   bool   `json:"updated"`
	Error     string `json:"error,omitempty"`
}

// Scheduler periodically scans auto-update channels and refreshes the ones
// whose interval has elapsed.
type Scheduler struct {
	mu sync.Mutex

	channels  repository.ChannelRepository
	refresher Refresher

	logger        *slog.Logger
	checkInterval time.Duration
	now           func() time.Time

	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a scheduler with the default one minute check
// interval.
func NewScheduler(channels repository.ChannelRepository, refresher Refresher) *Scheduler {
	return &Scheduler{
		channels:      channels,
		refresher:     refresher,
		logger:        slog.Default(),
		checkInterval: time.Minute,
		now:           time.Now,
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithCheckInterval overrides how often due channels are looked for.
func (s *Scheduler) WithCheckInterval(d time.Duration) *Scheduler {
	if d > 0 {
		s.checkInterval = d
	}
	return s
}

// Start begins the background check loop. The first check runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.checkInterval), func() {
		s.CheckOnce(s.ctx)
	}); err != nil {
		s.cancel()
		return fmt.Errorf("registering auto-update job: %w", err)
	}

	s.running = true
	s.cron.Start()
	go s.CheckOnce(s.ctx)

	s.logger.Info("auto-update scheduler started",
		slog.Duration("check_interval", s.checkInterval))
	return nil
}

// Stop halts the check loop and waits for an in-flight check to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	stopped := s.cron.Stop()
	s.mu.Unlock()

	<-stopped.Done()
	s.logger.Info("auto-update scheduler stopped")
}

// CheckOnce scans every auto-update channel and refreshes the due ones. A
// failing channel is logged and skipped; it never blocks the rest of the
// scan.
func (s *Scheduler) CheckOnce(ctx context.Context) {
	channels, err := s.channels.ListAutoUpdate(ctx)
	if err != nil {
		s.logger.Error("listing auto-update channels", slog.Any("error", err))
		return
	}

	now := s.now()
	for _, channel := range channels {
		if ctx.Err() != nil {
			return
		}
		if channel.WebsiteURL == "" || !channel.UpdateDue(now) {
			continue
		}

		if err := s.refresher.RefreshFromWebsite(ctx, channel); err != nil {
			s.logger.Warn("auto-update failed",
				slog.Uint64("channel_id", uint64(channel.ID)),
				slog.String("name", channel.Name),
				slog.Any("error", err))
			continue
		}

		s.logger.Info("channel auto-updated",
			slog.Uint64("channel_id", uint64(channel.ID)),
			slog.String("name", channel.Name))
	}
}

// ForceUpdateAll refreshes every channel that has a companion website,
// regardless of schedule, and reports per-channel outcomes.
func (s *Scheduler) ForceUpdateAll(ctx context.Context) ([]UpdateResult, error) {
	channels, err := s.channels.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing channels: %w", err)
	}

	results := make([]UpdateResult, 0, len(channels))
	for _, channel := range channels {
		result := UpdateResult{ChannelID: channel.ID, Name: channel.Name}
		if channel.WebsiteURL == "" {
			result.Error = "no website configured"
		} else if err := s.refresher.RefreshFromWebsite(ctx, channel); err != nil {
			result.Error = err.Error()
		} else {
			result.Updated = true
		}
		results = append(results, result)
	}
	return results, nil
}
