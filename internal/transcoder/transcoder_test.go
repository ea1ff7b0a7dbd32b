package transcoder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restreamarr/restreamarr/internal/models"
)

func TestStreamArgs_HeaderBlob(t *testing.T) {
	args, err := streamArgs("http://example.com/live.m3u8", models.Credentials{
		UserAgent: "Mozilla/5.0 ",
		Referer:   "http://ref.example.com;",
		Origin:    "http://origin.example.com",
	})
	require.NoError(t, err)

	var headerBlob string
	for i, a := range args {
		if a == "-headers" {
			headerBlob = args[i+1]
			break
		}
	}
	require.NotEmpty(t, headerBlob, "expected a -headers argument")

	assert.Equal(t, "User-Agent: Mozilla/5.0\r\nReferer: http://ref.example.com\r\nOrigin: http://origin.example.com\r\n", headerBlob)
}

func TestStreamArgs_NoHeadersWhenEmpty(t *testing.T) {
	args, err := streamArgs("http://example.com/live.m3u8", models.Credentials{})
	require.NoError(t, err)
	assert.NotContains(t, args, "-headers")
}

func TestStreamArgs_Shape(t *testing.T) {
	args, err := streamArgs("http://example.com/live.m3u8", models.Credentials{UserAgent: "ua"})
	require.NoError(t, err)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-reconnect 1")
	assert.Contains(t, joined, "-analyzeduration 5000000")
	assert.Contains(t, joined, "-i http://example.com/live.m3u8")
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-tune zerolatency")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-f mpegts")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	// Input flags must precede the input, output flags must follow it.
	inputIdx := -1
	for i, a := range args {
		if a == "-i" {
			inputIdx = i
			break
		}
	}
	require.Greater(t, inputIdx, 0)
	for i, a := range args[:inputIdx] {
		if a == "-c:v" {
			t.Fatalf("output flag -c:v at position %d before input", i)
		}
	}
}

func TestIsFatalLine(t *testing.T) {
	tests := []struct {
		line  string
		fatal bool
	}{
		{"Error opening input: Server returned 404 Not Found", true},
		{"Invalid data found when processing input", true},
		{"[https] HTTP error 404 Not Found", false},
		{"[h264] non-existing SPS 0 referenced in buffering period", false},
		{"Consider increasing the value for the 'analyzeduration' and 'probesize' options", false},
		{"Could not find codec parameters for stream 0", false},
		{"frame=  100 fps= 25 q=28.0 size=  512kB", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.fatal, isFatalLine(tt.line), "line: %q", tt.line)
	}
}

func spawnShell(t *testing.T, script string) *Handle {
	t.Helper()

	tr := New("/bin/sh")
	h, err := tr.spawn(context.Background(), []string{"-c", script})
	require.NoError(t, err)
	return h
}

func TestHandle_CleanExit(t *testing.T) {
	h := spawnShell(t, "exit 0")

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}

	assert.NoError(t, h.Wait())
	assert.False(t, h.Alive())
}

func TestHandle_TerminateStopsProcess(t *testing.T) {
	h := spawnShell(t, "sleep 30")
	require.True(t, h.Alive())

	start := time.Now()
	h.Terminate()

	assert.False(t, h.Alive())
	assert.Less(t, time.Since(start), termGracePeriod, "SIGTERM should have sufficed")
}

func TestHandle_TerminateIdempotent(t *testing.T) {
	h := spawnShell(t, "sleep 30")
	h.Terminate()

	// Repeated and concurrent calls must return without effect.
	done := make(chan struct{})
	go func() {
		h.Terminate()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Terminate did not return")
	}
	h.Terminate()
	assert.False(t, h.Alive())
}

func TestHandle_TerminateAfterExit(t *testing.T) {
	h := spawnShell(t, "exit 0")
	<-h.Done()

	// Terminating a dead process is a no-op.
	h.Terminate()
	assert.False(t, h.Alive())
}

func TestHandle_FatalStderr(t *testing.T) {
	h := spawnShell(t, `echo "Error opening input: connection refused" 1>&2; sleep 30`)
	defer h.Terminate()

	select {
	case err := <-h.Fatal():
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	case <-time.After(5 * time.Second):
		t.Fatal("fatal stderr line was not reported")
	}

	assert.Error(t, h.FatalErr())
}

func TestHandle_BenignStderrNotFatal(t *testing.T) {
	h := spawnShell(t, `echo "[https] HTTP error 404 Not Found" 1>&2; sleep 1`)
	defer h.Terminate()

	select {
	case err := <-h.Fatal():
		t.Fatalf("benign stderr reported as fatal: %v", err)
	case <-time.After(500 * time.Millisecond):
	}
	assert.NoError(t, h.FatalErr())
}
