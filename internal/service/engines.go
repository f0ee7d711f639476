package service

import (
	"sync"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-bfa/internal/port"

	"go.uber.org/zap"
)

// Engines holds one refresh coordinator per live session, shared by every
// screen and subscriber of that session.
type Engines struct {
	sessions port.SessionStore
	fetcher  port.TransactionsFetcher
	cfg      CoordinatorConfig
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu      sync.Mutex
	engines map[string]*Coordinator
	hooks   []func(domain.SnapshotEvent)
	closed  bool
}

// NewEngines creates an empty registry.
func NewEngines(sessions port.SessionStore, fetcher port.TransactionsFetcher, cfg CoordinatorConfig, metrics *observability.Metrics, logger *zap.Logger) *Engines {
	return &Engines{
		sessions: sessions,
		fetcher:  fetcher,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		engines:  make(map[string]*Coordinator),
	}
}

// OnEvent registers fn on every current and future coordinator.
func (e *Engines) OnEvent(fn func(domain.SnapshotEvent)) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hooks = append(e.hooks, fn)
	for _, c := range e.engines {
		c.Subscribe(fn)
	}
}

// Get returns the session's coordinator, creating it on first use. A
// session that has already ended gets no coordinator.
func (e *Engines) Get(sessionID string) (*Coordinator, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if c, ok := e.engines[sessionID]; ok {
		return c, nil
	}
	// Checked under mu: an eviction racing this call either fails the check
	// or waits in Drop and removes the new coordinator.
	if _, ok := e.sessions.Get(sessionID); !ok {
		return nil, domain.ErrMissingCredentials
	}

	c := NewCoordinator(sessionID, e.sessions, e.fetcher, e.cfg, e.metrics, e.logger)
	for _, fn := range e.hooks {
		c.Subscribe(fn)
	}
	e.engines[sessionID] = c
	e.metrics.SetActiveEngines(len(e.engines))
	return c, nil
}

// Lookup returns the session's coordinator without creating one.
func (e *Engines) Lookup(sessionID string) (*Coordinator, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.engines[sessionID]
	return c, ok
}

// Drop closes and forgets the session's coordinator.
func (e *Engines) Drop(sessionID string) {
	e.mu.Lock()
	c, ok := e.engines[sessionID]
	delete(e.engines, sessionID)
	e.metrics.SetActiveEngines(len(e.engines))
	e.mu.Unlock()

	if ok {
		c.Close()
		e.logger.Debug("refresh coordinator dropped", zap.String("session_id", sessionID))
	}
}

// Len is the number of live coordinators.
func (e *Engines) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.engines)
}

// Close shuts every coordinator down. Later Get calls fail.
func (e *Engines) Close() {
	e.mu.Lock()
	e.closed = true
	all := e.engines
	e.engines = make(map[string]*Coordinator)
	e.metrics.SetActiveEngines(0)
	e.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
