package dashboard

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Cycle outcomes reported to observers.
const (
	OutcomeApplied  = "applied"
	OutcomeRejected = "rejected"
	OutcomeIgnored  = "ignored"
)

// CycleObserver receives one notification per processed event.
type CycleObserver interface {
	ObserveCycle(cause Cause, outcome string, elapsed time.Duration)
}

// Outcome is the result of one evaluation cycle.
type Outcome struct {
	State      SelectionState
	View       ViewModel
	Recomputed bool
	Ignored    bool
}

// Deriver computes a view; DeriveView is the production implementation.
type Deriver func(*Dataset, SelectionState) ViewModel

// Session owns the selection state of one dashboard. Events are queued and
// processed one at a time in arrival order by a single goroutine, so the state
// never has concurrent writers.
type Session struct {
	id       string
	ds       *Dataset
	derive   Deriver
	observer CycleObserver

	requests  chan sessionRequest
	done      chan struct{}
	closeOnce sync.Once

	mu    sync.RWMutex
	state SelectionState
	view  ViewModel

	lastSeen atomic.Int64
}

type sessionRequest struct {
	event Event
	reply chan sessionReply
}

type sessionReply struct {
	outcome Outcome
	err     error
}

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithDeriver replaces the view computation.
func WithDeriver(fn Deriver) SessionOption {
	return func(s *Session) {
		if fn != nil {
			s.derive = fn
		}
	}
}

// WithObserver attaches a cycle observer.
func WithObserver(o CycleObserver) SessionOption {
	return func(s *Session) { s.observer = o }
}

// NewSession starts a session with an initial selection and computes its
// first view.
func NewSession(id string, ds *Dataset, initial SelectionState, opts ...SessionOption) *Session {
	s := &Session{
		id:       id,
		ds:       ds,
		derive:   DeriveView,
		requests: make(chan sessionRequest, 16),
		done:     make(chan struct{}),
		state:    initial,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.view = s.derive(ds, initial)
	s.touch()
	go s.loop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Current returns the current selection.
func (s *Session) Current() SelectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// View returns the view computed by the latest applied cycle.
func (s *Session) View() ViewModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Dataset returns the dataset the session reads from.
func (s *Session) Dataset() *Dataset { return s.ds }

// LastSeen returns the time of the latest interaction.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Dispatch queues an event and waits for its cycle to finish. A rejected date
// returns ErrOutOfRangeDate with the unchanged state and view; a click on an
// unknown region is ignored without recomputing the view. Once queued, a
// cycle runs to completion even if ctx is cancelled. Dispatch on a closed
// session, or one closed while the event waits in the queue, returns
// ErrSessionClosed.
func (s *Session) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	select {
	case <-s.done:
		return Outcome{}, ErrSessionClosed
	default:
	}

	req := sessionRequest{event: ev, reply: make(chan sessionReply, 1)}
	select {
	case <-s.done:
		return Outcome{}, ErrSessionClosed
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case s.requests <- req:
	}
	select {
	case rep := <-req.reply:
		return rep.outcome, rep.err
	case <-s.done:
		// the loop may have finished this cycle just before closing
		select {
		case rep := <-req.reply:
			return rep.outcome, rep.err
		default:
			return Outcome{}, ErrSessionClosed
		}
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Close stops the event loop. Pending events are dropped and their callers
// receive ErrSessionClosed.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			outcome, err := s.process(req.event)
			req.reply <- sessionReply{outcome: outcome, err: err}
		}
	}
}

func (s *Session) process(ev Event) (Outcome, error) {
	start := time.Now()
	s.touch()

	s.mu.RLock()
	prev, prevView := s.state, s.view
	s.mu.RUnlock()

	next, err := Apply(s.ds, prev, ev)
	if err != nil {
		if errors.Is(err, ErrUnknownRegion) {
			s.observe(ev.Cause, OutcomeIgnored, start)
			return Outcome{State: prev, View: prevView, Ignored: true}, nil
		}
		s.observe(ev.Cause, OutcomeRejected, start)
		return Outcome{State: prev, View: prevView}, err
	}

	view := s.derive(s.ds, next)
	s.mu.Lock()
	s.state = next
	s.view = view
	s.mu.Unlock()
	s.observe(ev.Cause, OutcomeApplied, start)
	return Outcome{State: next, View: view, Recomputed: true}, nil
}

func (s *Session) observe(cause Cause, outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveCycle(cause, outcome, time.Since(start))
	}
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}
