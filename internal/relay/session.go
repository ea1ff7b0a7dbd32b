// Package relay owns the live stream session lifecycle: the session model,
// the concurrent session registry, and the orchestrator that drives a
// request from validation through process teardown.
package relay

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StreamHandle is the supervised transcoding process behind a session.
type StreamHandle interface {
	// Stdout is the muxed output stream.
	Stdout() io.ReadCloser
	// Done closes when the process has exited.
	Done() <-chan struct{}
	// Fatal receives the first fatal process error, if any.
	Fatal() <-chan error
	// Alive reports whether the process is still running.
	Alive() bool
	// Terminate stops the process deterministically and is safe to call
	// more than once.
	Terminate()
}

// Session is one client's claim on one source stream. Sessions live only in
// memory; they exist exactly as long as bytes could still flow.
type Session struct {
	ID         string
	SourceURL  string
	ClientAddr string
	StartedAt  time.Time

	mu         sync.Mutex
	lastActive time.Time
	active     bool
	handle     StreamHandle
}

// NewSession creates an active session with a fresh identifier. The handle
// is attached later, once the transcoder has been spawned.
func NewSession(sourceURL, clientAddr string, now time.Time) *Session {
	return &Session{
		ID:         uuid.New().String(),
		SourceURL:  sourceURL,
		ClientAddr: clientAddr,
		StartedAt:  now,
		lastActive: now,
		active:     true,
	}
}

// Touch advances the activity stamp. The stamp never moves backwards, so a
// late tick racing a newer one cannot mask staleness.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastActive) {
		s.lastActive = now
	}
}

// LastActive returns the current activity stamp.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Deactivate marks the session inactive. Inactive sessions are evicted by
// the next sweep regardless of their activity stamp.
func (s *Session) Deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

// IsActive reports whether the session is still marked active.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// AttachHandle binds the spawned process to the session.
func (s *Session) AttachHandle(h StreamHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// Handle returns the attached process handle, or nil before spawn.
func (s *Session) Handle() StreamHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Duration returns how long the session has existed.
func (s *Session) Duration(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

// stale reports whether the session should be evicted: explicitly
// deactivated, backed by a dead process, or idle past the threshold.
func (s *Session) stale(now time.Time, staleAfter time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return true
	}
	if s.handle != nil && !s.handle.Alive() {
		return true
	}
	return now.Sub(s.lastActive) > staleAfter
}
