package transcoder

import (
	"bufio"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Teardown timing: SIGTERM first, SIGKILL after the grace period, and give
// up waiting at the hard cutoff even if the kernel has not reaped the
// process yet.
const (
	termGracePeriod = 2 * time.Second
	killHardCutoff  = 5 * time.Second
)

// Handle supervises one running transcoder process.
type Handle struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	logger *slog.Logger

	// done closes once the process has exited and been reaped.
	done    chan struct{}
	waitErr error

	// stderrDone closes once the stderr scanner has drained the pipe.
	// Wait must not reap the process before then or the final stderr
	// lines are lost.
	stderrDone chan struct{}

	// fatal receives the first fatal stderr line, at most once.
	fatal    chan error
	fatalMu  sync.Mutex
	fatalErr error

	termOnce sync.Once
}

// Stats holds a point-in-time resource sample for the process.
type Stats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemoryRSS  uint64  `json:"memory_rss"`
}

// Stdout returns the MPEG-TS output stream of the process.
func (h *Handle) Stdout() io.ReadCloser {
	return h.stdout
}

// Done returns a channel closed when the process has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the process exits and returns its exit error.
func (h *Handle) Wait() error {
	<-h.done
	return h.waitErr
}

// Fatal returns a channel that receives the first fatal stderr error, if
// any. Consumers racing process output against this channel learn about
// unplayable inputs before relaying garbage to a client.
func (h *Handle) Fatal() <-chan error {
	return h.fatal
}

// FatalErr returns the recorded fatal stderr error, or nil.
func (h *Handle) FatalErr() error {
	h.fatalMu.Lock()
	defer h.fatalMu.Unlock()
	return h.fatalErr
}

// Alive reports whether the process has not exited yet.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Stats samples the process's resource usage.
func (h *Handle) Stats() (*Stats, error) {
	proc, err := process.NewProcess(int32(h.cmd.Process.Pid))
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		stats.MemoryRSS = mem.RSS
	}
	return stats, nil
}

// Terminate stops the process deterministically: close the output pipe,
// SIGTERM, escalate to SIGKILL after the grace period, and stop waiting at
// the hard cutoff. Safe to call from multiple goroutines; every call
// returns only after the first has finished.
func (h *Handle) Terminate() {
	h.termOnce.Do(func() {
		h.stdout.Close()

		if !h.Alive() {
			return
		}

		if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			h.logger.Debug("sending SIGTERM", slog.String("error", err.Error()))
		}

		select {
		case <-h.done:
			h.logger.Info("transcoder exited on SIGTERM")
			return
		case <-time.After(termGracePeriod):
		}

		h.logger.Warn("transcoder ignored SIGTERM, sending SIGKILL")
		if err := h.cmd.Process.Kill(); err != nil {
			h.logger.Debug("sending SIGKILL", slog.String("error", err.Error()))
		}

		select {
		case <-h.done:
		case <-time.After(killHardCutoff - termGracePeriod):
			h.logger.Error("transcoder did not exit within hard cutoff")
		}
	})
}

// scanStderr reads the process's stderr line by line, recording the first
// fatal line and logging the rest at debug level.
func (h *Handle) scanStderr(scanner *bufio.Scanner) {
	defer close(h.stderrDone)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if isFatalLine(line) {
			h.recordFatal(line)
			continue
		}
		h.logger.Debug("transcoder stderr", slog.String("line", line))
	}
}

// recordFatal stores the first fatal stderr line and signals it once.
func (h *Handle) recordFatal(line string) {
	h.fatalMu.Lock()
	first := h.fatalErr == nil
	if first {
		h.fatalErr = &FatalStderrError{Line: line}
	}
	h.fatalMu.Unlock()

	if first {
		h.logger.Error("transcoder fatal stderr", slog.String("line", line))
		select {
		case h.fatal <- h.FatalErr():
		default:
		}
		return
	}
	h.logger.Debug("transcoder stderr after fatal", slog.String("line", line))
}

// waitForExit reaps the process and closes done.
func (h *Handle) waitForExit() {
	<-h.stderrDone
	h.waitErr = h.cmd.Wait()
	close(h.done)

	if h.waitErr != nil {
		h.logger.Info("transcoder exited", slog.String("error", h.waitErr.Error()))
	} else {
		h.logger.Info("transcoder exited")
	}
}

// FatalStderrError wraps a fatal stderr line as an error.
type FatalStderrError struct {
	Line string
}

func (e *FatalStderrError) Error() string {
	return "transcoder reported fatal error: " + e.Line
}
