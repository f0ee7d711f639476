package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-bfa/internal/ledger"
	"github.com/boddenberg/ledger-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var coordTracer = otel.Tracer("service/coordinator")

// ErrEngineClosed is returned for triggers against a coordinator whose
// session has ended.
var ErrEngineClosed = errors.New("refresh coordinator closed")

// State is the refresh lifecycle state of a coordinator.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Trigger names what asked for a refresh.
type Trigger string

const (
	TriggerMount         Trigger = "mount"
	TriggerPullToRefresh Trigger = "pull"
	TriggerFocus         Trigger = "focus"
	TriggerMutation      Trigger = "mutation"
)

// ParseTrigger accepts the query-string spelling of a user trigger.
// Mutation triggers are internal and not accepted here.
func ParseTrigger(s string) (Trigger, bool) {
	switch Trigger(s) {
	case TriggerMount, TriggerPullToRefresh, TriggerFocus:
		return Trigger(s), true
	case "":
		return TriggerPullToRefresh, true
	}
	return "", false
}

// Status is a point-in-time view of a coordinator, enough to tell an empty
// ledger from a failed fetch.
type Status struct {
	State       State     `json:"state"`
	Seq         uint64    `json:"seq"`
	InFlight    uint64    `json:"inFlight,omitempty"`
	Queued      bool      `json:"queued"`
	LastError   string    `json:"lastError,omitempty"`
	HasSnapshot bool      `json:"hasSnapshot"`
	Dropped     int       `json:"dropped"`
	FetchedAt   time.Time `json:"fetchedAt,omitempty"`
}

// Cycle is one requested refresh. Several triggers may share a cycle.
type Cycle struct {
	seq       atomic.Uint64
	trigger   Trigger
	done      chan struct{}
	err       error
	abandoned bool
	// next is set before done closes when the cycle was replaced by a newer one.
	next *Cycle
}

func newCycle(t Trigger) *Cycle {
	return &Cycle{trigger: t, done: make(chan struct{})}
}

// Seq is the fetch sequence number, zero while the cycle is still queued.
func (c *Cycle) Seq() uint64 { return c.seq.Load() }

// Done is closed when the cycle has completed, failed or been replaced.
func (c *Cycle) Done() <-chan struct{} { return c.done }

// CoordinatorConfig tunes a coordinator.
type CoordinatorConfig struct {
	FetchTimeout time.Duration
	Aggregate    ledger.AggregateOptions
}

// Coordinator owns the fetch lifecycle of one session's ledger. At most one
// fetch is tracked and at most one follow-up is queued; snapshots are
// published by atomic swap and never mutated.
type Coordinator struct {
	sessionID string
	sessions  port.SessionStore
	fetcher   port.TransactionsFetcher
	cfg       CoordinatorConfig
	metrics   *observability.Metrics
	logger    *zap.Logger

	snap atomic.Pointer[ledger.Snapshot]

	mu         sync.Mutex
	state      State
	nextSeq    uint64
	appliedSeq uint64
	current    *Cycle
	queued     *Cycle
	lastErr    error
	subs       map[int]func(domain.SnapshotEvent)
	subID      int
	closed     bool
	// pending holds events in the order they were produced under mu.
	pending []domain.SnapshotEvent

	// deliverMu serializes delivery so subscribers see events in order.
	deliverMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCoordinator creates an idle coordinator for a session.
func NewCoordinator(sessionID string, sessions port.SessionStore, fetcher port.TransactionsFetcher, cfg CoordinatorConfig, metrics *observability.Metrics, logger *zap.Logger) *Coordinator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		sessionID: sessionID,
		sessions:  sessions,
		fetcher:   fetcher,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.With(zap.String("session_id", sessionID)),
		state:     StateIdle,
		subs:      make(map[int]func(domain.SnapshotEvent)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Snapshot returns the last published snapshot, or nil before the first
// successful fetch.
func (c *Coordinator) Snapshot() *ledger.Snapshot {
	return c.snap.Load()
}

// Status reports the lifecycle state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:  c.state,
		Seq:    c.appliedSeq,
		Queued: c.queued != nil,
	}
	if c.current != nil {
		st.InFlight = c.current.Seq()
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if snap := c.snap.Load(); snap != nil {
		st.HasSnapshot = true
		st.Dropped = snap.Dropped()
		st.FetchedAt = snap.FetchedAt()
	}
	return st
}

// Subscribe registers fn for lifecycle events. Events reach every
// subscriber in the order the coordinator produced them, one at a time and
// outside the state lock. fn must not trigger refreshes on c.
func (c *Coordinator) Subscribe(fn func(domain.SnapshotEvent)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.subID
	c.subID++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Trigger requests a refresh. With nothing in flight a fetch starts now;
// while loading, the request is queued behind the current fetch, and further
// requests join the queued cycle.
func (c *Coordinator) Trigger(ctx context.Context, t Trigger) (*Cycle, error) {
	if _, err := c.credentials(); err != nil {
		c.metrics.IncrTrigger(observability.TriggerRejected)
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrEngineClosed
	}

	var cyc *Cycle
	switch {
	case c.current == nil:
		cyc = newCycle(t)
		c.startLocked(cyc)
		c.metrics.IncrTrigger(observability.TriggerStarted)
	case c.queued == nil:
		cyc = newCycle(t)
		c.queued = cyc
		c.metrics.IncrTrigger(observability.TriggerQueued)
	default:
		cyc = c.queued
		c.metrics.IncrTrigger(observability.TriggerCoalesced)
	}
	c.mu.Unlock()

	c.logger.Debug("refresh triggered", zap.String("trigger", string(t)), zap.Uint64("seq", cyc.Seq()))
	c.flush()
	return cyc, nil
}

// Supersede abandons the tracked fetch and starts a fresh one at once. The
// abandoned fetch keeps running but its result is discarded; anyone waiting
// on it, or on the queued cycle, follows the new cycle instead. Used after
// writes so a read that began before the write never lands after it.
func (c *Coordinator) Supersede(ctx context.Context) (*Cycle, error) {
	if _, err := c.credentials(); err != nil {
		c.metrics.IncrTrigger(observability.TriggerRejected)
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrEngineClosed
	}

	cyc := newCycle(TriggerMutation)
	if old := c.current; old != nil {
		old.abandoned = true
		c.resolveLocked(old, domain.ErrSuperseded, cyc)
		c.current = nil
	}
	if q := c.queued; q != nil {
		c.resolveLocked(q, domain.ErrSuperseded, cyc)
		c.queued = nil
	}
	c.startLocked(cyc)
	c.metrics.IncrTrigger(observability.TriggerStarted)
	c.mu.Unlock()

	c.logger.Debug("refresh superseded", zap.Uint64("seq", cyc.Seq()))
	c.flush()
	return cyc, nil
}

// Refresh triggers a refresh and waits for the cycle that serves it.
func (c *Coordinator) Refresh(ctx context.Context, t Trigger) error {
	cyc, err := c.Trigger(ctx, t)
	if err != nil {
		return err
	}
	return Wait(ctx, cyc)
}

// Wait blocks until cyc or the cycle that replaced it has completed.
func Wait(ctx context.Context, cyc *Cycle) error {
	for {
		select {
		case <-cyc.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		if cyc.next == nil {
			return cyc.err
		}
		cyc = cyc.next
	}
}

// Close stops in-flight fetches, fails the queued cycle and waits for the
// fetch goroutines to return. Later triggers get ErrEngineClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if q := c.queued; q != nil {
		c.resolveLocked(q, ErrEngineClosed, nil)
		c.queued = nil
	}
	c.subs = make(map[int]func(domain.SnapshotEvent))
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) credentials() (domain.Credentials, error) {
	sess, ok := c.sessions.Get(c.sessionID)
	if !ok || !sess.Credentials.Valid() {
		return domain.Credentials{}, domain.ErrMissingCredentials
	}
	return sess.Credentials, nil
}

// startLocked assigns the next sequence number and launches the fetch.
func (c *Coordinator) startLocked(cyc *Cycle) {
	c.nextSeq++
	cyc.seq.Store(c.nextSeq)
	c.current = cyc
	c.state = StateLoading

	c.wg.Add(1)
	go c.run(cyc)

	c.pending = append(c.pending, c.event(domain.EventLoading, cyc))
}

func (c *Coordinator) run(cyc *Cycle) {
	defer c.wg.Done()

	ctx, span := coordTracer.Start(c.ctx, "Coordinator.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("ledger.seq", int64(cyc.Seq())),
		attribute.String("ledger.trigger", string(cyc.trigger)),
	)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	creds, err := c.credentials()
	var res domain.FetchResult
	if err == nil {
		res, err = c.fetcher.FetchTransactions(ctx, creds, domain.FetchFilter{})
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	c.complete(cyc, res, err, time.Since(start))
}

// complete applies a fetch outcome. Results from abandoned or out-of-order
// fetches are discarded before normalization.
func (c *Coordinator) complete(cyc *Cycle, res domain.FetchResult, fetchErr error, took time.Duration) {
	c.mu.Lock()

	if cyc.abandoned {
		c.pending = append(c.pending, c.event(domain.EventDiscarded, cyc))
		c.mu.Unlock()
		c.discarded(cyc, took)
		return
	}

	c.current = nil

	switch {
	case c.closed:
		cyc.err = ErrEngineClosed
		close(cyc.done)
		c.mu.Unlock()
		return

	case cyc.Seq() < c.appliedSeq:
		cyc.err = domain.ErrSuperseded
		c.metrics.IncrStaleDiscarded()
		c.metrics.RecordFetch("stale", took)
		c.pending = append(c.pending, c.event(domain.EventDiscarded, cyc))

	case fetchErr != nil:
		c.lastErr = fetchErr
		c.state = StateFailed
		ev := c.event(domain.EventFailed, cyc)
		ev.Error = fetchErr.Error()
		c.pending = append(c.pending, ev)
		c.state = StateIdle
		cyc.err = fetchErr
		c.metrics.RecordFetch("failure", took)
		c.metrics.IncrExternalError("finance-api")
		c.logger.Warn("refresh failed", zap.Uint64("seq", cyc.Seq()), zap.Error(fetchErr))

	default:
		norm := ledger.NormalizeFetch(res)
		snap := ledger.NewSnapshot(cyc.Seq(), time.Now().UTC(), norm, c.cfg.Aggregate)
		c.snap.Store(snap)
		c.appliedSeq = cyc.Seq()
		c.lastErr = nil
		c.state = StateReady

		ev := c.event(domain.EventPublished, cyc)
		rounded := snap.Summary().Rounded()
		ev.Summary = &rounded
		ev.TransactionCount = snap.Len()
		ev.Dropped = snap.Dropped()
		c.pending = append(c.pending, ev)

		c.metrics.RecordFetch("success", took)
		c.metrics.SetSnapshotSize(snap.Len())
		if norm.Dropped > 0 {
			c.metrics.AddDropped(reasonLabels(norm.Reasons))
			c.logger.Info("records dropped during normalization",
				zap.Uint64("seq", cyc.Seq()),
				zap.Int("dropped", norm.Dropped),
				zap.Any("reasons", norm.Reasons),
			)
		}
	}
	if q := c.queued; q != nil {
		c.queued = nil
		c.startLocked(q)
	}
	c.mu.Unlock()

	// Subscribers hear about the outcome before waiters wake up.
	c.flush()
	close(cyc.done)
}

func (c *Coordinator) discarded(cyc *Cycle, took time.Duration) {
	c.metrics.IncrStaleDiscarded()
	c.metrics.RecordFetch("stale", took)
	c.logger.Debug("stale fetch result discarded", zap.Uint64("seq", cyc.Seq()))
	c.flush()
}

// resolveLocked finishes a cycle that will never run to completion itself.
func (c *Coordinator) resolveLocked(cyc *Cycle, err error, next *Cycle) {
	cyc.err = err
	cyc.next = next
	close(cyc.done)
}

func (c *Coordinator) event(t domain.EventType, cyc *Cycle) domain.SnapshotEvent {
	return domain.SnapshotEvent{
		Type:      t,
		SessionID: c.sessionID,
		Trigger:   string(cyc.trigger),
		Seq:       cyc.Seq(),
		At:        time.Now().UTC(),
	}
}

// flush delivers pending events in production order. When it returns,
// every event queued before the call has been delivered, whichever
// goroutine ended up delivering it.
func (c *Coordinator) flush() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		subs := make([]func(domain.SnapshotEvent), 0, len(c.subs))
		for _, fn := range c.subs {
			subs = append(subs, fn)
		}
		c.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, ev := range batch {
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
}

func reasonLabels(in map[ledger.DropReason]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}
