package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/repository"
)

type fakeRefresher struct {
	mu        sync.Mutex
	refreshed []uint
	err       error
}

func (f *fakeRefresher) RefreshFromWebsite(ctx context.Context, channel *models.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.refreshed = append(f.refreshed, channel.ID)
	return nil
}

func (f *fakeRefresher) refreshedIDs() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint(nil), f.refreshed...)
}

func newTestRepo(t *testing.T) repository.ChannelRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Channel{}))
	return repository.NewChannelRepository(db)
}

func createChannel(t *testing.T, repo repository.ChannelRepository, ch *models.Channel) *models.Channel {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), ch))
	return ch
}

func TestCheckOnce_RefreshesDueChannels(t *testing.T) {
	repo := newTestRepo(t)
	now := time.Now()

	thirteenAgo := now.Add(-13 * time.Hour)
	oneAgo := now.Add(-1 * time.Hour)

	due := createChannel(t, repo, &models.Channel{
		Name: "due", StreamURL: "http://s/due.m3u8", WebsiteURL: "http://site/due",
		AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12, LastUpdate: &thirteenAgo,
	})
	createChannel(t, repo, &models.Channel{
		Name: "fresh", StreamURL: "http://s/fresh.m3u8", WebsiteURL: "http://site/fresh",
		AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12, LastUpdate: &oneAgo,
	})
	neverUpdated := createChannel(t, repo, &models.Channel{
		Name: "never", StreamURL: "http://s/never.m3u8", WebsiteURL: "http://site/never",
		AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12,
	})
	createChannel(t, repo, &models.Channel{
		Name: "no-site", StreamURL: "http://s/nosite.m3u8",
		AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12,
	})
	createChannel(t, repo, &models.Channel{
		Name: "disabled", StreamURL: "http://s/disabled.m3u8", WebsiteURL: "http://site/disabled",
		AutoUpdateIntervalHours: 12, LastUpdate: &thirteenAgo,
	})

	refresher := &fakeRefresher{}
	s := NewScheduler(repo, refresher)
	s.now = func() time.Time { return now }

	s.CheckOnce(context.Background())

	// A channel that has never been refreshed is immediately due.
	assert.ElementsMatch(t, []uint{due.ID, neverUpdated.ID}, refresher.refreshedIDs())
}

func TestCheckOnce_FailureDoesNotBlockOthers(t *testing.T) {
	repo := newTestRepo(t)
	createChannel(t, repo, &models.Channel{
		Name: "a", StreamURL: "http://s/a.m3u8", WebsiteURL: "http://site/a",
		AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12,
	})
	createChannel(t, repo, &models.Channel{
		Name: "b", StreamURL: "http://s/b.m3u8", WebsiteURL: "http://site/b",
		AutoUpdateEnabled: true, AutoUpdateIntervalHours: 12,
	})

	calls := 0
	refresher := &countingRefresher{fail: func(n int) error {
		if n == 1 {
			return errors.New("detection timed out")
		}
		return nil
	}, calls: &calls}

	s := NewScheduler(repo, refresher)
	s.CheckOnce(context.Background())

	assert.Equal(t, 2, calls, "the failing channel must not stop the scan")
}

type countingRefresher struct {
	mu    sync.Mutex
	calls *int
	fail  func(call int) error
}

func (c *countingRefresher) RefreshFromWebsite(ctx context.Context, channel *models.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.calls++
	return c.fail(*c.calls)
}

func TestForceUpdateAll(t *testing.T) {
	repo := newTestRepo(t)
	oneAgo := time.Now().Add(-1 * time.Hour)

	withSite := createChannel(t, repo, &models.Channel{
		Name: "with-site", StreamURL: "http://s/a.m3u8", WebsiteURL: "http://site/a",
		AutoUpdateIntervalHours: 12, LastUpdate: &oneAgo,
	})
	noSite := createChannel(t, repo, &models.Channel{
		Name: "no-site", StreamURL: "http://s/b.m3u8",
		AutoUpdateIntervalHours: 12,
	})

	refresher := &fakeRefresher{}
	s := NewScheduler(repo, refresher)

	results, err := s.ForceUpdateAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[uint]UpdateResult{}
	for _, r := range results {
		byID[r.ChannelID] = r
	}

	// Force update ignores the schedule entirely.
	assert.True(t, byID[withSite.ID].Updated)
	assert.False(t, byID[noSite.ID].Updated)
	assert.Equal(t, "no website configured", byID[noSite.ID].Error)
	assert.Equal(t, []uint{withSite.ID}, refresher.refreshedIDs())
}

func TestStartStop(t *testing.T) {
	repo := newTestRepo(t)
	refresher := &fakeRefresher{}
	s := NewScheduler(repo, refresher).WithCheckInterval(time.Hour)

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()), "double start must fail")

	s.Stop()
	s.Stop()

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
