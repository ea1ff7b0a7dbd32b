package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/relay"
	"github.com/restreamarr/restreamarr/internal/repository"
	"github.com/restreamarr/restreamarr/internal/resolver"
)

type passValidator struct{}

func (passValidator) ValidateAndRefresh(ctx context.Context, sourceURL string, creds models.Credentials) (*resolver.Outcome, error) {
	return &resolver.Outcome{SourceURL: sourceURL, Credentials: creds}, nil
}

type failValidator struct{ err error }

func (v failValidator) ValidateAndRefresh(ctx context.Context, sourceURL string, creds models.Credentials) (*resolver.Outcome, error) {
	return nil, v.err
}

type staticHandle struct {
	mu     sync.Mutex
	stdout io.ReadCloser
	done   chan struct{}
	fatal  chan error
	dead   bool
}

func newStaticHandle(payload string) *staticHandle {
	pr, pw := io.Pipe()
	go func() {
		io.WriteString(pw, payload)
		pw.Close()
	}()
	return &staticHandle{
		stdout: pr,
		done:   make(chan struct{}),
		fatal:  make(chan error, 1),
	}
}

// newOpenHandle writes the payload but keeps the pipe open so the session
// stays live until it is terminated.
func newOpenHandle(payload string) *staticHandle {
	pr, pw := io.Pipe()
	go func() {
		io.WriteString(pw, payload)
	}()
	return &staticHandle{
		stdout: pr,
		done:   make(chan struct{}),
		fatal:  make(chan error, 1),
	}
}

func (h *staticHandle) Stdout() io.ReadCloser { return h.stdout }
func (h *staticHandle) Done() <-chan struct{} { return h.done }
func (h *staticHandle) Fatal() <-chan error   { return h.fatal }

func (h *staticHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.dead
}

func (h *staticHandle) Terminate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dead {
		h.dead = true
		h.stdout.Close()
		close(h.done)
	}
}

func newChannelRepo(t *testing.T) repository.ChannelRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Channel{}))
	return repository.NewChannelRepository(db)
}

func newStreamServer(t *testing.T, validator relay.Validator, spawner relay.Spawner, channels repository.ChannelRepository) *httptest.Server {
	t.Helper()

	orch := relay.NewOrchestrator(relay.NewRegistry(30*time.Second), validator, spawner, 5*time.Second)
	t.Cleanup(orch.Shutdown)

	router := chi.NewRouter()
	NewStreamHandler(orch, channels, nil).Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func spawnStatic(payload string) relay.Spawner {
	return relay.SpawnerFunc(func(ctx context.Context, sourceURL string, creds models.Credentials) (relay.StreamHandle, error) {
		return newStaticHandle(payload), nil
	})
}

func TestProxyStream_RequiresURL(t *testing.T) {
	srv := newStreamServer(t, passValidator{}, spawnStatic(""), newChannelRepo(t))

	resp, err := http.Get(srv.URL + "/proxy/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProxyStream_RelaysTransportStream(t *testing.T) {
	srv := newStreamServer(t, passValidator{}, spawnStatic("ts-bytes"), newChannelRepo(t))

	resp, err := http.Get(srv.URL + "/proxy/stream?url=http://src/live.m3u8")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/mp2t", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", resp.Header.Get("Cache-Control"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ts-bytes", string(body))
}

func TestProxyStream_ValidationErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no companion site", resolver.ErrNoCompanionSite, http.StatusBadGateway},
		{"retries exhausted", resolver.ErrRetriesExhausted, http.StatusBadGateway},
		{"terminal upstream status", &resolver.StatusError{StatusCode: 404}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newStreamServer(t, failValidator{err: tt.err}, spawnStatic(""), newChannelRepo(t))

			resp, err := http.Get(srv.URL + "/proxy/stream?url=http://src/live.m3u8")
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestStaticStream_RedirectsWithCredentials(t *testing.T) {
	channels := newChannelRepo(t)
	ch := &models.Channel{
		Name:      "one",
		StreamURL: "http://src/live.m3u8",
		UserAgent: "agent/1.0; ",
		Referer:   "http://site/watch",
	}
	require.NoError(t, channels.Create(context.Background(), ch))

	srv := newStreamServer(t, passValidator{}, spawnStatic(""), channels)

	client := &http.Client{CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Get(srv.URL + "/static/stream/1")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := resp.Location()
	require.NoError(t, err)
	assert.Equal(t, "/proxy/stream", loc.Path)
	assert.Equal(t, "http://src/live.m3u8", loc.Query().Get("url"))
	// Trailing separators must be stripped before the value reaches the
	// proxy URL.
	assert.Equal(t, "agent/1.0", loc.Query().Get("userAgent"))
	assert.Equal(t, "http://site/watch", loc.Query().Get("referer"))
	assert.Empty(t, loc.Query().Get("origin"))
}

func TestStaticStream_UnknownChannel(t *testing.T) {
	srv := newStreamServer(t, passValidator{}, spawnStatic(""), newChannelRepo(t))

	resp, err := http.Get(srv.URL + "/static/stream/99")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatus_ReportsLiveSessions(t *testing.T) {
	srv := newStreamServer(t, passValidator{}, relay.SpawnerFunc(func(ctx context.Context, sourceURL string, creds models.Credentials) (relay.StreamHandle, error) {
		return newOpenHandle("payload"), nil
	}), newChannelRepo(t))

	// Open one stream and keep it running while the status is queried.
	streamResp, err := http.Get(srv.URL + "/proxy/stream?url=http://src/live.m3u8")
	require.NoError(t, err)
	defer streamResp.Body.Close()

	buf := make([]byte, 7)
	_, err = io.ReadFull(streamResp.Body, buf)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/streams/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var status struct {
		Count    int `json:"count"`
		Sessions []struct {
			ID              string  `json:"id"`
			URL             string  `json:"url"`
			DurationSeconds float64 `json:"duration_seconds"`
		} `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))

	require.Equal(t, 1, status.Count)
	assert.Equal(t, "http://src/live.m3u8", status.Sessions[0].URL)
	assert.NotEmpty(t, status.Sessions[0].ID)
}
