package detect

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restreamarr/restreamarr/internal/httpclient"
	"github.com/restreamarr/restreamarr/internal/useragent"
)

func newScanner(t *testing.T, cfg PageScannerConfig) *PageScanner {
	t.Helper()

	clientCfg := httpclient.DefaultConfig()
	clientCfg.RetryAttempts = 0
	return NewPageScanner(httpclient.New(clientCfg), useragent.NewPool(1), cfg)
}

func TestPageScanner_FindsInlineScriptURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><script>
			var player = jwplayer("root");
			player.setup({file: "https://cdn.example.com/live/ch5.m3u8?token=xyz&expires=999"});
		</script></body></html>`)
	}))
	defer srv.Close()

	result, err := newScanner(t, PageScannerConfig{}).Detect(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/live/ch5.m3u8?token=xyz&expires=999", result.StreamURL)
	assert.True(t, result.IsHLS)
	assert.Equal(t, "xyz", result.URLParams["token"])
	assert.Equal(t, "999", result.URLParams["expires"])
	assert.Equal(t, srv.URL, result.Credentials.Referer)
	assert.NotEmpty(t, result.Credentials.UserAgent)
	assert.NotEmpty(t, result.Credentials.Origin)
}

func TestPageScanner_FindsVideoSourceTag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><video controls>
			<source src="/streams/main.m3u8" type="application/x-mpegURL">
		</video></body></html>`)
	}))
	defer srv.Close()

	result, err := newScanner(t, PageScannerConfig{}).Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/streams/main.m3u8", result.StreamURL)
}

func TestPageScanner_FollowsIframe(t *testing.T) {
	var mux http.ServeMux
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><iframe src="%s/embed"></iframe></body></html>`, srv.URL)
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><script>load("http://cdn.example.com/embed.m3u8")</script></body></html>`)
	})

	result, err := newScanner(t, PageScannerConfig{}).Detect(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example.com/embed.m3u8", result.StreamURL)
}

func TestPageScanner_NoStreamFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><p>nothing to see</p></body></html>`)
	}))
	defer srv.Close()

	_, err := newScanner(t, PageScannerConfig{}).Detect(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrNoStreamFound)
}

func TestPageScanner_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	scanner := newScanner(t, PageScannerConfig{
		NavTimeout:   100 * time.Millisecond,
		TotalTimeout: 100 * time.Millisecond,
	})

	_, err := scanner.Detect(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestPageScanner_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><script>x("http://cdn.example.com/a.m3u8")</script></body></html>`)
	}))
	defer srv.Close()

	scanner := newScanner(t, PageScannerConfig{RatePerMinute: 1})

	_, err := scanner.Detect(context.Background(), srv.URL)
	require.NoError(t, err)

	_, err = scanner.Detect(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrRateLimited)
}
