package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegistryConfig sets the starting selection for new sessions.
type RegistryConfig struct {
	DefaultDate   time.Time
	DefaultMetric MetricKind
	IdleTTL       time.Duration
	Observer      CycleObserver
}

// Registry maps session identifiers to their owning Session.
type Registry struct {
	ds  *Dataset
	cfg RegistryConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry constructs an empty registry over a dataset.
func NewRegistry(ds *Dataset, cfg RegistryConfig) *Registry {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Registry{ds: ds, cfg: cfg, sessions: make(map[string]*Session)}
}

// Dataset returns the dataset shared by every session.
func (r *Registry) Dataset() *Dataset { return r.ds }

// Get returns a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Create starts a new session with the default selection.
func (r *Registry) Create() (*Session, error) {
	initial, err := NewSelection(r.ds, r.cfg.DefaultDate, r.cfg.DefaultMetric)
	if err != nil {
		return nil, err
	}
	var opts []SessionOption
	if r.cfg.Observer != nil {
		opts = append(opts, WithObserver(r.cfg.Observer))
	}
	sess := NewSession(uuid.NewString(), r.ds, initial, opts...)
	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()
	return sess, nil
}

// GetOrCreate returns the session for id, starting a new one when missing.
func (r *Registry) GetOrCreate(id string) (*Session, bool, error) {
	if id != "" {
		if sess, ok := r.Get(id); ok {
			return sess, false, nil
		}
	}
	sess, err := r.Create()
	return sess, true, err
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle since before now-IdleTTL and returns how many
// were removed.
func (r *Registry) Sweep(now time.Time) int {
	cutoff := now.Add(-r.cfg.IdleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, sess := range r.sessions {
		if sess.LastSeen().Before(cutoff) {
			sess.Close()
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions on an interval until ctx is cancelled, then closes
// every remaining session.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, sess := range r.sessions {
		sess.Close()
		delete(r.sessions, id)
	}
}
