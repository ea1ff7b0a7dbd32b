package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/restreamarr/restreamarr/internal/models"
	"github.com/restreamarr/restreamarr/internal/resolver"
)

// Errors returned by the orchestrator.
var (
	// ErrMissingURL means the request named no source.
	ErrMissingURL = errors.New("url parameter is required")
	// ErrShuttingDown means the orchestrator no longer accepts sessions.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
	// ErrNoOutput means the transcoder died before producing a single byte.
	ErrNoOutput = errors.New("transcoder produced no output")
)

// Session lifecycle states, in order. Failures jump straight to closing.
type sessionState int

const (
	stateValidating sessionState = iota
	stateDeduping
	stateSpawning
	stateStreaming
	stateClosing
)

func (s sessionState) String() string {
	switch s {
	case stateValidating:
		return "validating"
	case stateDeduping:
		return "deduping"
	case stateSpawning:
		return "spawning"
	case stateStreaming:
		return "streaming"
	case stateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Validator validates stream credentials, refreshing them when rejected.
type Validator interface {
	ValidateAndRefresh(ctx context.Context, sourceURL string, creds models.Credentials) (*resolver.Outcome, error)
}

// Spawner starts a transcoding process for a source.
type Spawner interface {
	Spawn(ctx context.Context, sourceURL string, creds models.Credentials) (StreamHandle, error)
}

// SpawnerFunc adapts a function to the Spawner interface.
type SpawnerFunc func(ctx context.Context, sourceURL string, creds models.Credentials) (StreamHandle, error)

// Spawn implements Spawner.
func (f SpawnerFunc) Spawn(ctx context.Context, sourceURL string, creds models.Credentials) (StreamHandle, error) {
	return f(ctx, sourceURL, creds)
}

// StreamRequest is one client's request for one source stream.
type StreamRequest struct {
	SourceURL   string
	ClientAddr  string
	Credentials models.Credentials
}

// Orchestrator drives each stream request through its lifecycle and owns
// every resource acquired along the way.
type Orchestrator struct {
	registry  *Registry
	validator Validator
	spawner   Spawner
	keepAlive time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	closed bool
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(registry *Registry, validator Validator, spawner Spawner, keepAlive time.Duration) *Orchestrator {
	if keepAlive <= 0 {
		keepAlive = 5 * time.Second
	}
	return &Orchestrator{
		registry:  registry,
		validator: validator,
		spawner:   spawner,
		keepAlive: keepAlive,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// WithLogger sets a custom logger.
func (o *Orchestrator) WithLogger(logger *slog.Logger) *Orchestrator {
	o.logger = logger
	return o
}

// Registry returns the session registry, for the status API.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Prepare runs the pre-streaming lifecycle: validate credentials, displace
// any conflicting session, and spawn the transcoder. On success the caller
// owns the returned Stream and must finish it with Relay or Close. On
// failure no session remains registered.
func (o *Orchestrator) Prepare(ctx context.Context, req StreamRequest) (*Stream, error) {
	if req.SourceURL == "" {
		return nil, ErrMissingURL
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShuttingDown
	}
	o.mu.Unlock()

	logger := o.logger.With(
		slog.String("source_url", req.SourceURL),
		slog.String("client_addr", req.ClientAddr),
	)

	logger.Debug("session state", slog.String("state", stateValidating.String()))
	outcome, err := o.validator.ValidateAndRefresh(ctx, req.SourceURL, req.Credentials)
	if err != nil {
		logger.Warn("credential validation failed",
			slog.String("state", stateValidating.String()),
			slog.String("error", err.Error()))
		return nil, err
	}

	sess := NewSession(outcome.SourceURL, req.ClientAddr, o.now())
	logger = logger.With(slog.String("session_id", sess.ID))

	// Everything this session displaces is torn down completely before the
	// new process starts, so two transcoders never fight over one upstream
	// slot.
	logger.Debug("session state", slog.String("state", stateDeduping.String()))
	for _, old := range o.registry.Admit(sess, o.now()) {
		o.teardown(old)
	}

	logger.Debug("session state", slog.String("state", stateSpawning.String()))
	handle, err := o.spawner.Spawn(ctx, outcome.SourceURL, outcome.Credentials)
	if err != nil {
		o.registry.Remove(sess.ID)
		logger.Error("spawning transcoder failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("spawning transcoder: %w", err)
	}
	sess.AttachHandle(handle)

	logger.Info("session started")
	return &Stream{
		orch:    o,
		session: sess,
		handle:  handle,
		logger:  logger,
	}, nil
}

// teardown fully releases one displaced session.
func (o *Orchestrator) teardown(sess *Session) {
	sess.Deactivate()
	if h := sess.Handle(); h != nil {
		h.Terminate()
	}
	o.registry.Remove(sess.ID)
}

// Shutdown stops accepting new sessions and tears down every live one.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	drained := o.registry.Drain()
	for _, sess := range drained {
		sess.Deactivate()
		if h := sess.Handle(); h != nil {
			h.Terminate()
		}
	}
	if len(drained) > 0 {
		o.logger.Info("terminated sessions on shutdown", slog.Int("count", len(drained)))
	}
}

// Stream is a prepared session ready to relay bytes to one client.
type Stream struct {
	orch    *Orchestrator
	session *Session
	handle  StreamHandle
	logger  *slog.Logger

	closeOnce sync.Once
}

// SessionID returns the session identifier.
func (s *Stream) SessionID() string {
	return s.session.ID
}

// relayChunk carries one read from the transcoder's stdout.
type relayChunk struct {
	data []byte
	err  error
}

// Relay copies transcoder output to w until the client disconnects, the
// process exits, or a fatal process error arrives before the first byte.
// onStart runs exactly once, just before the first byte is written; errors
// are only returned while nothing has been written yet. Once bytes are
// flowing, process errors are logged and relaying continues until the
// output pipe closes. Relay always closes the stream.
func (s *Stream) Relay(ctx context.Context, w io.Writer, onStart func()) error {
	defer s.Close()

	flusher, _ := w.(http.Flusher)

	stop := make(chan struct{})
	defer close(stop)

	chunks := make(chan relayChunk)
	go s.pump(chunks, stop)

	ticker := time.NewTicker(s.orch.keepAlive)
	defer ticker.Stop()

	started := false
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("client disconnected")
			if !started {
				return ctx.Err()
			}
			return nil

		case <-ticker.C:
			s.orch.registry.Touch(s.session.ID, s.orch.now())

		case err := <-s.handle.Fatal():
			if !started {
				s.logger.Error("transcoder failed before first byte",
					slog.String("error", err.Error()))
				return err
			}
			// Live encodes emit transient decode errors without dying.
			// After the first byte only the pipe closing ends the relay.
			s.logger.Warn("transcoder reported an error mid-stream",
				slog.String("error", err.Error()))

		case chunk := <-chunks:
			if len(chunk.data) > 0 {
				if !started {
					started = true
					if onStart != nil {
						onStart()
					}
				}
				if _, err := w.Write(chunk.data); err != nil {
					s.logger.Info("client write failed, tearing down",
						slog.String("error", err.Error()))
					return nil
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
			if chunk.err != nil {
				if !started {
					if fatal := fatalFromHandle(s.handle); fatal != nil {
						return fatal
					}
					return ErrNoOutput
				}
				s.logger.Info("transcoder output ended")
				return nil
			}
		}
	}
}

// pump reads stdout into chunks until the pipe closes or the relay loop
// stops receiving.
func (s *Stream) pump(chunks chan<- relayChunk, stop <-chan struct{}) {
	stdout := s.handle.Stdout()
	for {
		buf := make([]byte, 32*1024)
		n, err := stdout.Read(buf)
		select {
		case chunks <- relayChunk{data: buf[:n], err: err}:
		case <-stop:
			return
		}
		if err != nil {
			return
		}
	}
}

// fatalFromHandle drains an already-signalled fatal error, if present.
func fatalFromHandle(h StreamHandle) error {
	select {
	case err := <-h.Fatal():
		return err
	default:
		return nil
	}
}

// Close finishes the session: deactivate, terminate the process, remove
// from the registry, then opportunistically sweep whatever else went stale.
// Safe to call multiple times.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.logger.Debug("session state", slog.String("state", stateClosing.String()))

		s.session.Deactivate()
		s.handle.Terminate()
		s.orch.registry.Remove(s.session.ID)

		for _, stale := range s.orch.registry.SweepStale(s.orch.now()) {
			s.orch.teardown(stale)
		}

		s.logger.Info("session closed",
			slog.Duration("duration", s.session.Duration(s.orch.now())))
	})
}
