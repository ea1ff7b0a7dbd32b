package relay

import (
	"log/slog"
	"sync"
	"time"
)

// Registry is the authoritative set of live sessions. All mutations happen
// under one mutex, so duplicate detection, eviction, and sweeps can never
// interleave halfway.
type Registry struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewRegistry creates a session registry with the given staleness window.
func NewRegistry(staleAfter time.Duration) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		staleAfter: staleAfter,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Admit registers the session and atomically removes everything it
// displaces: sessions already stale at admission time plus any live session
// for the same client and source. The displaced sessions are returned so
// the caller can tear their processes down before spawning a new one; only
// one of two racing duplicates can ever see the other as live.
func (r *Registry) Admit(sess *Session, now time.Time) (displaced []*Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, existing := range r.sessions {
		if existing.stale(now, r.staleAfter) {
			delete(r.sessions, id)
			displaced = append(displaced, existing)
			r.logger.Debug("evicting stale session at admission",
				slog.String("session_id", id))
			continue
		}
		if existing.ClientAddr == sess.ClientAddr && existing.SourceURL == sess.SourceURL {
			existing.Deactivate()
			delete(r.sessions, id)
			displaced = append(displaced, existing)
			r.logger.Info("superseding duplicate session",
				slog.String("session_id", id),
				slog.String("client_addr", sess.ClientAddr))
		}
	}

	r.sessions[sess.ID] = sess
	return displaced
}

// Remove deletes a session by id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Touch advances a session's activity stamp. Touching an already evicted
// session is a no-op, so a late keep-alive cannot resurrect it.
func (r *Registry) Touch(id string, now time.Time) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()

	if !ok {
		return false
	}
	sess.Touch(now)
	return true
}

// Get returns a session by id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepStale removes every session that is inactive, dead, or idle past
// the staleness window and returns them for teardown. Fresh sessions with
// live processes are never touched.
func (r *Registry) SweepStale(now time.Time) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var evicted []*Session
	for id, sess := range r.sessions {
		if sess.stale(now, r.staleAfter) {
			delete(r.sessions, id)
			evicted = append(evicted, sess)
			r.logger.Info("evicting stale session",
				slog.String("session_id", id),
				slog.String("source_url", sess.SourceURL),
				slog.Duration("idle", now.Sub(sess.LastActive())))
		}
	}
	return evicted
}

// Drain removes and returns every session. Used at shutdown.
func (r *Registry) Drain() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	drained := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		delete(r.sessions, id)
		drained = append(drained, sess)
	}
	return drained
}

// SessionInfo is a point-in-time view of one session for the status API.
type SessionInfo struct {
	ID       string        `json:"id"`
	URL      string        `json:"url"`
	Duration time.Duration `json:"duration"`
}

// Snapshot returns a view of all current sessions.
func (r *Registry) Snapshot(now time.Time) []SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]SessionInfo, 0, len(r.sessions))
	for _, sess := range r.sessions {
		infos = append(infos, SessionInfo{
			ID:       sess.ID,
			URL:      sess.SourceURL,
			Duration: sess.Duration(now),
		})
	}
	return infos
}
