package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polybacker/polybacker/internal/domain"
)

// Kind identifies a worker slot. Each (user, kind) pair runs at most one
// worker at a time.
type Kind string

const (
	KindCopy      Kind = "copy"
	KindArbitrage Kind = "arb"
	KindFund      Kind = "fund"
	KindPositions Kind = "positions"
)

// Key addresses one worker slot. Global workers use an empty User.
type Key struct {
	User string
	Kind Kind
}

func (k Key) String() string {
	if k.User == "" {
		return string(k.Kind)
	}
	return k.User + ":" + string(k.Kind)
}

// WorkerStatus is a point-in-time view of one slot.
type WorkerStatus struct {
	Key       Key       `json:"-"`
	User      string    `json:"user,omitempty"`
	Kind      Kind      `json:"kind"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"started_at,omitempty"`
	StoppedAt time.Time `json:"stopped_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Transition is broadcast to subscribers whenever a worker starts or stops.
type Transition struct {
	Key   Key
	Event string // engine_started or engine_stopped
	Error string // non-empty when the worker exited with an error
	At    time.Time
}

type handle struct {
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Supervisor owns worker lifecycles. Start is idempotent per key, Stop is
// fire-and-forget: it cancels the worker's context and returns without
// waiting for the goroutine to unwind.
type Supervisor struct {
	logger *slog.Logger
	events domain.EventStore

	mu      sync.Mutex
	workers map[Key]*handle
	last    map[Key]WorkerStatus
	subs    map[chan Transition]struct{}
}

// NewSupervisor creates an empty supervisor. events may be nil in tests.
func NewSupervisor(logger *slog.Logger, events domain.EventStore) *Supervisor {
	return &Supervisor{
		logger:  logger.With("component", "supervisor"),
		events:  events,
		workers: make(map[Key]*handle),
		last:    make(map[Key]WorkerStatus),
		subs:    make(map[chan Transition]struct{}),
	}
}

// Start launches run under the given key. A second Start for a running key
// returns domain.ErrAlreadyExists and leaves the first worker untouched.
func (s *Supervisor) Start(ctx context.Context, key Key, strategy domain.Strategy, run func(ctx context.Context) error) error {
	s.mu.Lock()
	if _, ok := s.workers[key]; ok {
		s.mu.Unlock()
		return fmt.Errorf("supervisor: start %s: %w", key, domain.ErrAlreadyExists)
	}

	// Workers outlive the caller. Start is typically invoked from a request
	// handler whose context dies with the response, so the worker context is
	// detached from the caller's cancellation; Stop and StopAll own it.
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &handle{
		cancel:    cancel,
		done:      make(chan struct{}),
		startedAt: time.Now().UTC(),
	}
	s.workers[key] = h
	s.last[key] = WorkerStatus{
		Key: key, User: key.User, Kind: key.Kind,
		Running: true, StartedAt: h.startedAt,
	}
	s.mu.Unlock()

	s.logger.Info("worker started", "key", key.String())
	s.record(ctx, key, strategy, domain.EventEngineStarted, "")
	s.broadcast(Transition{Key: key, Event: domain.EventEngineStarted, At: h.startedAt})

	go func() {
		defer close(h.done)
		err := run(workerCtx)

		errMsg := ""
		if err != nil && workerCtx.Err() == nil {
			errMsg = err.Error()
			s.logger.Error("worker exited", "key", key.String(), "error", err)
		} else {
			s.logger.Info("worker stopped", "key", key.String())
		}

		now := time.Now().UTC()
		s.mu.Lock()
		delete(s.workers, key)
		st := s.last[key]
		st.Running = false
		st.StoppedAt = now
		st.LastError = errMsg
		s.last[key] = st
		s.mu.Unlock()

		// The parent ctx may already be gone; audit with a detached one.
		s.record(context.WithoutCancel(ctx), key, strategy, domain.EventEngineStopped, errMsg)
		s.broadcast(Transition{Key: key, Event: domain.EventEngineStopped, Error: errMsg, At: now})
	}()

	return nil
}

// Stop cancels the worker for key. It does not wait for the worker to exit;
// the stop transition is broadcast by the worker goroutine itself.
func (s *Supervisor) Stop(key Key) error {
	s.mu.Lock()
	h, ok := s.workers[key]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("supervisor: stop %s: %w", key, domain.ErrNotFound)
	}
	h.cancel()
	return nil
}

// StopAll cancels every running worker and waits for them to unwind, bounded
// by ctx. Used on shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	handles := make([]*handle, 0, len(s.workers))
	for _, h := range s.workers {
		h.cancel()
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		select {
		case <-h.done:
		case <-ctx.Done():
			return
		}
	}
}

// Running reports whether a worker currently occupies key.
func (s *Supervisor) Running(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[key]
	return ok
}

// Status snapshots every slot that has ever run, most recent state wins.
func (s *Supervisor) Status() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkerStatus, 0, len(s.last))
	for _, st := range s.last {
		out = append(out, st)
	}
	return out
}

// StatusFor filters Status down to one user's slots plus global ones.
func (s *Supervisor) StatusFor(user string) []WorkerStatus {
	all := s.Status()
	out := all[:0]
	for _, st := range all {
		if st.User == user || st.User == "" {
			out = append(out, st)
		}
	}
	return out
}

// Subscribe returns a channel receiving every future transition. The channel
// is buffered; a slow consumer loses transitions rather than blocking the
// supervisor.
func (s *Supervisor) Subscribe() chan Transition {
	ch := make(chan Transition, 16)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (s *Supervisor) Unsubscribe(ch chan Transition) {
	s.mu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Supervisor) broadcast(t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- t:
		default:
		}
	}
}

func (s *Supervisor) record(ctx context.Context, key Key, strategy domain.Strategy, eventType, errMsg string) {
	if s.events == nil {
		return
	}
	e := domain.EngineEvent{
		UserAddress: key.User,
		Strategy:    strategy,
		EventType:   eventType,
		Message:     fmt.Sprintf("%s worker %s", key.Kind, eventType),
	}
	if errMsg != "" {
		e.Details = map[string]any{"error": errMsg}
	}
	if err := s.events.RecordEvent(ctx, e); err != nil {
		s.logger.Warn("record event", "error", err)
	}
}
