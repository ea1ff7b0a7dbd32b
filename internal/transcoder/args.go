// Package transcoder adapts an external ffmpeg process into a supervised
// stream handle. It owns argument construction, stderr classification, and
// deterministic process teardown.
package transcoder

import (
	"fmt"
	"strings"

	"github.com/restreamarr/restreamarr/internal/models"
)

// ArgsBuilder builds ffmpeg arguments with a fluent API. Argument order
// matters to ffmpeg: global flags, then input flags, then the input, then
// output flags.
type ArgsBuilder struct {
	globalArgs []string
	inputArgs  []string
	input      string
	outputArgs []string
	output     string
}

// NewArgsBuilder creates a new builder with error-level logging.
func NewArgsBuilder() *ArgsBuilder {
	return &ArgsBuilder{
		globalArgs: []string{"-hide_banner", "-loglevel", "error"},
	}
}

// Headers adds the upstream credential headers as a single -headers blob.
// Only User-Agent, Referer, and Origin are ever forwarded.
func (b *ArgsBuilder) Headers(creds models.Credentials) *ArgsBuilder {
	creds = creds.Sanitized()

	var lines []string
	if creds.UserAgent != "" {
		lines = append(lines, "User-Agent: "+creds.UserAgent)
	}
	if creds.Referer != "" {
		lines = append(lines, "Referer: "+creds.Referer)
	}
	if creds.Origin != "" {
		lines = append(lines, "Origin: "+creds.Origin)
	}
	if len(lines) > 0 {
		b.inputArgs = append(b.inputArgs, "-headers", strings.Join(lines, "\r\n")+"\r\n")
	}
	return b
}

// Reconnect enables automatic upstream reconnection for flaky live sources.
func (b *ArgsBuilder) Reconnect() *ArgsBuilder {
	b.inputArgs = append(b.inputArgs,
		"-reconnect", "1",
		"-reconnect_at_eof", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "2",
	)
	return b
}

// ProbeWindow widens the input analysis window. Live HLS sources often need
// more than the default before codec parameters settle.
func (b *ArgsBuilder) ProbeWindow() *ArgsBuilder {
	b.inputArgs = append(b.inputArgs,
		"-analyzeduration", "5000000",
		"-probesize", "5000000",
	)
	return b
}

// LowDelay configures flags for minimal startup latency.
func (b *ArgsBuilder) LowDelay() *ArgsBuilder {
	b.inputArgs = append(b.inputArgs,
		"-fflags", "+genpts+discardcorrupt",
		"-flags", "low_delay",
		"-avoid_negative_ts", "make_zero",
	)
	return b
}

// Input sets the source URL.
func (b *ArgsBuilder) Input(url string) *ArgsBuilder {
	b.input = url
	return b
}

// BrowserVideo transcodes video to browser-safe H.264: veryfast zero-latency
// main profile at level 3.1, capped at 3 Mbit/s and downscaled to fit 720p
// while keeping aspect ratio.
func (b *ArgsBuilder) BrowserVideo() *ArgsBuilder {
	b.outputArgs = append(b.outputArgs,
		"-fps_mode", "cfr",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-profile:v", "main",
		"-level", "3.1",
		"-maxrate", "3000k",
		"-bufsize", "6000k",
		"-vf", "scale='min(1280,iw)':'min(720,ih)':force_original_aspect_ratio=decrease",
	)
	return b
}

// BrowserAudio transcodes audio to stereo AAC at 128k/44.1kHz with async
// resampling to absorb upstream clock drift.
func (b *ArgsBuilder) BrowserAudio() *ArgsBuilder {
	b.outputArgs = append(b.outputArgs,
		"-c:a", "aac",
		"-b:a", "128k",
		"-ar", "44100",
		"-ac", "2",
		"-af", "aresample=async=1",
	)
	return b
}

// MpegtsPipe muxes to MPEG-TS on stdout with zero mux delay.
func (b *ArgsBuilder) MpegtsPipe() *ArgsBuilder {
	b.outputArgs = append(b.outputArgs,
		"-f", "mpegts",
		"-muxdelay", "0",
		"-muxpreload", "0",
	)
	b.output = "pipe:1"
	return b
}

// Build assembles the final argument list.
func (b *ArgsBuilder) Build() ([]string, error) {
	if b.input == "" {
		return nil, fmt.Errorf("input URL is required")
	}
	if b.output == "" {
		return nil, fmt.Errorf("output is required")
	}

	args := make([]string, 0, len(b.globalArgs)+len(b.inputArgs)+len(b.outputArgs)+4)
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	args = append(args, b.outputArgs...)
	args = append(args, b.output)
	return args, nil
}

// streamArgs builds the fixed relay argument contract for a source.
func streamArgs(sourceURL string, creds models.Credentials) ([]string, error) {
	return NewArgsBuilder().
		Headers(creds).
		Reconnect().
		ProbeWindow().
		LowDelay().
		Input(sourceURL).
		BrowserVideo().
		BrowserAudio().
		MpegtsPipe().
		Build()
}
