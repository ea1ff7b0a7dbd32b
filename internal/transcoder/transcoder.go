package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/restreamarr/restreamarr/internal/models"
)

// Transcoder spawns supervised ffmpeg processes. The process is controlled
// exclusively through its standard streams and signals; there is no side
// channel.
type Transcoder struct {
	binary string
	logger *slog.Logger
}

// New creates a Transcoder. An empty binaryPath resolves "ffmpeg" from PATH.
func New(binaryPath string) *Transcoder {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Transcoder{
		binary: binaryPath,
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (t *Transcoder) WithLogger(logger *slog.Logger) *Transcoder {
	t.logger = logger
	return t
}

// Spawn starts a transcoding process for the source and returns a Handle
// supervising it. The context bounds process startup only; a running
// process outlives it and is stopped via Handle.Terminate.
func (t *Transcoder) Spawn(ctx context.Context, sourceURL string, creds models.Credentials) (*Handle, error) {
	args, err := streamArgs(sourceURL, creds)
	if err != nil {
		return nil, fmt.Errorf("building ffmpeg args: %w", err)
	}
	return t.spawn(ctx, args)
}

// spawn starts the binary with the given argv and wires up supervision.
func (t *Transcoder) spawn(ctx context.Context, args []string) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(t.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()
		return nil, fmt.Errorf("opening stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("starting %s: %w", t.binary, err)
	}

	h := &Handle{
		cmd:        cmd,
		stdout:     stdout,
		done:       make(chan struct{}),
		stderrDone: make(chan struct{}),
		fatal:      make(chan error, 1),
		logger:     t.logger.With(slog.Int("pid", cmd.Process.Pid)),
	}

	h.logger.Info("transcoder started", slog.String("binary", t.binary))

	go h.scanStderr(bufio.NewScanner(stderr))
	go h.waitForExit()

	return h, nil
}
