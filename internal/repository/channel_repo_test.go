package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/restreamarr/restreamarr/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Channel{}, &models.UserAgent{}))

	return db
}

func testChannel(name, streamURL string) *models.Channel {
	return &models.Channel{
		Name:      name,
		StreamURL: streamURL,
	}
}

func TestChannelRepo_CreateAndGet(t *testing.T) {
	repo := NewChannelRepository(setupTestDB(t))
	ctx := context.Background()

	ch := testChannel("News One", "http://example.com/news.m3u8")
	ch.UserAgent = "Mozilla/5.0"
	require.NoError(t, repo.Create(ctx, ch))
	require.NotZero(t, ch.ID)

	got, err := repo.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "News One", got.Name)
	assert.Equal(t, "Mozilla/5.0", got.UserAgent)

	byURL, err := repo.GetByStreamURL(ctx, "http://example.com/news.m3u8")
	require.NoError(t, err)
	require.NotNil(t, byURL)
	assert.Equal(t, ch.ID, byURL.ID)
}

func TestChannelRepo_GetMissingReturnsNil(t *testing.T) {
	repo := NewChannelRepository(setupTestDB(t))
	ctx := context.Background()

	got, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	byURL, err := repo.GetByStreamURL(ctx, "http://example.com/missing.m3u8")
	require.NoError(t, err)
	assert.Nil(t, byURL)
}

func TestChannelRepo_ListAutoUpdate(t *testing.T) {
	repo := NewChannelRepository(setupTestDB(t))
	ctx := context.Background()

	auto := testChannel("Auto", "http://example.com/a.m3u8")
	auto.AutoUpdateEnabled = true
	manual := testChannel("Manual", "http://example.com/b.m3u8")

	require.NoError(t, repo.Create(ctx, auto))
	require.NoError(t, repo.Create(ctx, manual))

	got, err := repo.ListAutoUpdate(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Auto", got[0].Name)
}

func TestChannelRepo_UpdateCredentials(t *testing.T) {
	repo := NewChannelRepository(setupTestDB(t))
	ctx := context.Background()

	ch := testChannel("Sports", "http://example.com/sports.m3u8")
	require.NoError(t, repo.Create(ctx, ch))

	refreshedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpdateCredentials(ctx, ch.ID, "UA/2.0", "http://ref.example.com", "http://origin.example.com", refreshedAt))

	got, err := repo.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "UA/2.0", got.UserAgent)
	assert.Equal(t, "http://ref.example.com", got.Referer)
	assert.Equal(t, "http://origin.example.com", got.Origin)
	require.NotNil(t, got.LastUpdate)
	assert.WithinDuration(t, refreshedAt, *got.LastUpdate, time.Second)
}

func TestChannelRepo_Resequence(t *testing.T) {
	repo := NewChannelRepository(setupTestDB(t))
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.Create(ctx, testChannel(name, "http://example.com/"+name+".m3u8")))
	}

	// Punch holes in the sequence.
	require.NoError(t, repo.Delete(ctx, 1))
	require.NoError(t, repo.Delete(ctx, 3))

	require.NoError(t, repo.Resequence(ctx))

	got, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(1), got[0].ID)
	assert.Equal(t, "b", got[0].Name)
	assert.Equal(t, uint(2), got[1].ID)
	assert.Equal(t, "d", got[1].Name)
}

func TestChannelRepo_Delete(t *testing.T) {
	repo := NewChannelRepository(setupTestDB(t))
	ctx := context.Background()

	ch := testChannel("Temp", "http://example.com/t.m3u8")
	require.NoError(t, repo.Create(ctx, ch))
	require.NoError(t, repo.Delete(ctx, ch.ID))

	got, err := repo.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
