// Package supervisor owns the live connection and its
// authentication-recovery state machine. It is the only component that
// touches the stream handle or writes the stored credential.
//
// A connect invocation makes at most two attempts: once with the stored
// credential (if any), and once with a freshly acquired one. A stored
// credential that fails is presumed stale and cleared, never retried.
// A second failure is terminal for that invocation; the caller
// decides whether to call Connect again. The stream closing later does
// not trigger a reconnect on its own.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/moyuhunter/huntqueue/bili"
	"github.com/moyuhunter/huntqueue/telemetry"
)

// State enumerates the supervisor's connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateHasCredential
	StateNeedsCredential
	StateAcquiringCredential
	StateConnecting
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHasCredential:
		return "has_credential"
	case StateNeedsCredential:
		return "needs_credential"
	case StateAcquiringCredential:
		return "acquiring_credential"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Stream is the minimal live-connection contract the supervisor manages.
type Stream interface {
	Events() <-chan bili.Event
	Close() error
}

// Dialer opens a stream for a room using a session cookie.
type Dialer func(ctx context.Context, roomID int64, cookie string) (Stream, error)

// Acquirer obtains a fresh credential interactively. Returning ("", nil)
// means the user declined or the window timed out: a definite negative,
// not an error.
type Acquirer func(ctx context.Context, loginURL, markerCookie string) (string, error)

// CredentialStore persists the session credential across restarts.
type CredentialStore interface {
	Get(ctx context.Context) (string, error)
	Set(ctx context.Context, credential string) error
	Clear(ctx context.Context) error
}

// Sink receives every translated event from the attached stream.
type Sink func(ctx context.Context, ev bili.Event)

// Supervisor drives connect attempts and pumps the attached stream into
// the sink.
type Supervisor struct {
	store   CredentialStore
	dial    Dialer
	acquire Acquirer
	sink    Sink

	// baseCtx outlives individual Connect calls; the event pump runs
	// under it, not under the request-scoped connect context.
	baseCtx context.Context

	mu      sync.Mutex
	current Stream
	state   State
}

// New wires a supervisor. ctx bounds the lifetime of attached streams.
func New(ctx context.Context, store CredentialStore, dial Dialer, acquire Acquirer, sink Sink) *Supervisor {
	return &Supervisor{
		store:   store,
		dial:    dial,
		acquire: acquire,
		sink:    sink,
		baseCtx: ctx,
		state:   StateIdle,
	}
}

// State reports the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a stream is currently attached.
func (s *Supervisor) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && s.state == StateConnected
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	slog.Debug("supervisor state", slog.String("state", st.String()))
}

// Connect runs the two-attempt sequence. It returns (true, nil) once the
// stream is attached, (false, nil) when no credential could be obtained
// (timeout or user close, not a failure), and (false, err) for real
// connect failures after credential cleanup.
func (s *Supervisor) Connect(ctx context.Context, loginURL, markerCookie string, roomID int64) (bool, error) {
	telemetry.CountConnectAttempt()

	// One live connection at a time: drop any prior stream first.
	s.Disconnect()

	cred, err := s.store.Get(ctx)
	if err != nil {
		// Unreadable store entry is equivalent to no credential.
		slog.Warn("credential read failed; acquiring fresh", slog.Any("err", err))
		cred = ""
	}

	if cred != "" {
		s.setState(StateHasCredential)
		s.setState(StateConnecting)
		stream, err := s.dial(ctx, roomID, cred)
		if err == nil {
			s.attach(stream)
			return true, nil
		}
		// Presumed stale: clear it and fall through to acquisition.
		// The same credential is never retried.
		slog.Warn("connect with stored credential failed", slog.Any("err", err))
		if cerr := s.store.Clear(ctx); cerr != nil {
			slog.Error("credential clear failed", slog.Any("err", cerr))
		}
	}

	s.setState(StateNeedsCredential)
	s.setState(StateAcquiringCredential)
	cred, err = s.acquire(ctx, loginURL, markerCookie)
	if err != nil {
		s.setState(StateFailed)
		telemetry.CountConnectFailure()
		return false, fmt.Errorf("credential acquisition: %w", err)
	}
	if cred == "" {
		// Declined/timed out. Not connected, and not an error.
		s.setState(StateIdle)
		return false, nil
	}

	s.setState(StateConnecting)
	stream, err := s.dial(ctx, roomID, cred)
	if err != nil {
		// Second failure is terminal for this invocation. Drop the
		// partial credential so the next invocation starts clean.
		if cerr := s.store.Clear(ctx); cerr != nil {
			slog.Error("credential clear failed", slog.Any("err", cerr))
		}
		s.setState(StateFailed)
		telemetry.CountConnectFailure()
		return false, fmt.Errorf("connect with fresh credential: %w", err)
	}
	if err := s.store.Set(ctx, cred); err != nil {
		// The connection is up; a persistence hiccup only costs the
		// user a login next restart.
		slog.Error("credential persist failed", slog.Any("err", err))
	}
	s.attach(stream)
	return true, nil
}

// Disconnect closes the current stream, if any. Idempotent.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	stream := s.current
	s.current = nil
	if stream != nil {
		s.state = StateIdle
	}
	s.mu.Unlock()
	if stream != nil {
		if err := stream.Close(); err != nil {
			slog.Debug("stream close", slog.Any("err", err))
		}
	}
}

// attach installs the stream and starts pumping its events into the sink
// in arrival order. The pump exits when the stream's channel closes; it
// never reconnects by itself.
func (s *Supervisor) attach(stream Stream) {
	s.mu.Lock()
	s.current = stream
	s.state = StateConnected
	s.mu.Unlock()
	telemetry.SetConnected(true)

	go func() {
		for ev := range stream.Events() {
			s.sink(s.baseCtx, ev)
		}
		s.mu.Lock()
		if s.current == stream {
			s.current = nil
			s.state = StateIdle
		}
		s.mu.Unlock()
		telemetry.SetConnected(false)
	}()
}
