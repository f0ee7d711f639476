package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/infra/observability"
	"github.com/boddenberg/ledger-bfa/internal/ledger"
	"github.com/boddenberg/ledger-bfa/internal/service"

	"go.uber.org/zap"
)

func newCoordinator(t *testing.T, sessions *fakeSessions, fetcher *gatedFetcher) (*service.Coordinator, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics()
	c := service.NewCoordinator(sessionID, sessions, fetcher, service.CoordinatorConfig{
		FetchTimeout: 5 * time.Second,
		Aggregate:    ledger.AggregateOptions{VisibilityFloor: ledger.DefaultVisibilityFloor},
	}, metrics, zap.NewNop())
	t.Cleanup(c.Close)
	return c, metrics
}

func waitCycle(t *testing.T, cyc *service.Cycle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return service.Wait(ctx, cyc)
}

func TestCoordinator_MissingCredentialsFailsFast(t *testing.T) {
	cases := map[string]*fakeSessions{
		"no session": newFakeSessions(),
		"no token":   newFakeSessions(domain.Session{ID: sessionID, Credentials: domain.Credentials{UserID: "u-1"}}),
		"no user id": newFakeSessions(domain.Session{ID: sessionID, Credentials: domain.Credentials{Token: "tok"}}),
	}
	for name, sessions := range cases {
		t.Run(name, func(t *testing.T) {
			fetcher := newGatedFetcher()
			c, metrics := newCoordinator(t, sessions, fetcher)

			_, err := c.Trigger(context.Background(), service.TriggerMount)
			if !errors.Is(err, domain.ErrMissingCredentials) {
				t.Fatalf("expected ErrMissingCredentials, got %v", err)
			}
			fetcher.expectNone(t)
			if c.Status().State != service.StateIdle {
				t.Errorf("expected idle, got %s", c.Status().State)
			}
			if metrics.GetEngineSnapshot().TriggersRejected != 1 {
				t.Error("expected rejected trigger to be counted")
			}
		})
	}
}

func TestCoordinator_RefreshPublishesSnapshot(t *testing.T) {
	fetcher := newGatedFetcher()
	c, _ := newCoordinator(t, newFakeSessions(liveSession()), fetcher)

	if c.Snapshot() != nil {
		t.Fatal("expected no snapshot before the first fetch")
	}

	cyc, err := c.Trigger(context.Background(), service.TriggerMount)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	call := fetcher.next(t)
	if call.creds.UserID != "u-1" || call.creds.Token != "tok" {
		t.Errorf("unexpected credentials: %+v", call.creds)
	}
	if st := c.Status(); st.State != service.StateLoading || st.InFlight != 1 {
		t.Errorf("expected loading seq 1, got %+v", st)
	}

	call.reply(result(
		rec("1", "income", "5000", "2024-01-01"),
		rec("2", "expense", "2000", "2024-01-02"),
		rec("3", "expense", "10", "bad-date"),
	), nil)
	if err := waitCycle(t, cyc); err != nil {
		t.Fatalf("wait: %v", err)
	}

	snap := c.Snapshot()
	if snap == nil || snap.Seq() != 1 {
		t.Fatalf("expected snapshot seq 1, got %+v", snap)
	}
	if snap.Summary().BudgetUtilization != 40 {
		t.Errorf("expected utilization 40, got %v", snap.Summary().BudgetUtilization)
	}
	st := c.Status()
	if st.State != service.StateReady || !st.HasSnapshot || st.Dropped != 1 || st.Seq != 1 {
		t.Errorf("unexpected status: %+v", st)
	}
}

func TestCoordinator_EmptyLedgerIsNotAFailure(t *testing.T) {
	fetcher := newGatedFetcher()
	c, _ := newCoordinator(t, newFakeSessions(liveSession()), fetcher)

	cyc, _ := c.Trigger(context.Background(), service.TriggerMount)
	fetcher.next(t).reply(result(), nil)
	if err := waitCycle(t, cyc); err != nil {
		t.Fatalf("wait: %v", err)
	}

	st := c.Status()
	if st.State != service.StateReady || !st.HasSnapshot || st.LastError != "" {
		t.Errorf("expected ready with empty snapshot, got %+v", st)
	}
	if c.Snapshot().Len() != 0 {
		t.Errorf("expected empty snapshot")
	}
}

func TestCoordinator_QueuesOneFollowUpAndCoalesces(t *testing.T) {
	fetcher := newGatedFetcher()
	c, metrics := newCoordinator(t, newFakeSessions(liveSession()), fetcher)
	ctx := context.Background()

	first, _ := c.Trigger(ctx, service.TriggerMount)
	firstCall := fetcher.next(t)

	queued, _ := c.Trigger(ctx, service.TriggerPullToRefresh)
	joined, _ := c.Trigger(ctx, service.TriggerFocus)
	if queued != joined {
		t.Fatal("expected the third trigger to join the queued cycle")
	}
	if queued == first {
		t.Fatal("expected a separate follow-up cycle")
	}
	if !c.Status().Queued {
		t.Error("expected a queued follow-up")
	}
	fetcher.expectNone(t)

	firstCall.reply(result(rec("a", "income", "1", "2024-01-01")), nil)
	if err := waitCycle(t, first); err != nil {
		t.Fatalf("first: %v", err)
	}

	secondCall := fetcher.next(t)
	if queued.Seq() != 2 {
		t.Errorf("expected follow-up seq 2, got %d", queued.Seq())
	}
	secondCall.reply(result(rec("a", "income", "1", "2024-01-01"), rec("b", "income", "2", "2024-01-02")), nil)
	if err := waitCycle(t, queued); err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	fetcher.expectNone(t)

	if got := c.Snapshot(); got.Seq() != 2 || got.Len() != 2 {
		t.Errorf("expected seq 2 with 2 records, got seq %d len %d", got.Seq(), got.Len())
	}

	m := metrics.GetEngineSnapshot()
	if m.TriggersStarted != 1 || m.TriggersQueued != 1 || m.TriggersCoalesced != 1 {
		t.Errorf("unexpected trigger metrics: %+v", m)
	}
}

func TestCoordinator_SubscribersSeeEventsInSequenceOrder(t *testing.T) {
	fetcher := newSlowFirstFetcher()
	c := service.NewCoordinator(sessionID, newFakeSessions(liveSession()), fetcher, service.CoordinatorConfig{
		FetchTimeout: 5 * time.Second,
	}, observability.NewMetrics(), zap.NewNop())
	t.Cleanup(c.Close)

	var (
		mu   sync.Mutex
		seen []domain.SnapshotEvent
	)
	c.Subscribe(func(ev domain.SnapshotEvent) {
		// A slow consumer of the first outcome gives the follow-up fetch
		// time to complete on its own goroutine.
		if ev.Type == domain.EventPublished && ev.Seq == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	})

	ctx := context.Background()
	first, _ := c.Trigger(ctx, service.TriggerMount)
	select {
	case <-fetcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the first fetch to start")
	}
	queued, _ := c.Trigger(ctx, service.TriggerFocus)
	close(fetcher.release)

	if err := waitCycle(t, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	if err := waitCycle(t, queued); err != nil {
		t.Fatalf("follow-up: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	var lastSeq, lastPublished uint64
	for i, ev := range seen {
		if ev.Seq < lastSeq {
			t.Fatalf("event %d (%s seq %d) delivered after seq %d: %+v", i, ev.Type, ev.Seq, lastSeq, seen)
		}
		lastSeq = ev.Seq
		if ev.Type == domain.EventPublished {
			lastPublished = ev.Seq
		}
	}
	if want := c.Snapshot().Seq(); lastPublished != want || want != 2 {
		t.Errorf("expected the last published event to be seq %d, got %d", want, lastPublished)
	}
}

func TestCoordinator_FailureKeepsPreviousSnapshot(t *testing.T) {
	fetcher := newGatedFetcher()
	c, _ := newCoordinator(t, newFakeSessions(liveSession()), fetcher)
	ctx := context.Background()

	events := make(chan domain.SnapshotEvent, 16)
	c.Subscribe(func(ev domain.SnapshotEvent) { events <- ev })

	cyc, _ := c.Trigger(ctx, service.TriggerMount)
	fetcher.next(t).reply(result(rec("a", "income", "100", "2024-01-01")), nil)
	if err := waitCycle(t, cyc); err != nil {
		t.Fatalf("wait: %v", err)
	}
	before := c.Snapshot()

	upstream := &domain.ErrExternalService{Service: "finance-api", Err: errors.New("connection reset")}
	cyc, _ = c.Trigger(ctx, service.TriggerPullToRefresh)
	fetcher.next(t).reply(domain.FetchResult{}, upstream)
	err := waitCycle(t, cyc)

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected the fetch error, got %v", err)
	}
	if c.Snapshot() != before {
		t.Error("failed fetch must not replace the snapshot")
	}
	st := c.Status()
	if st.State != service.StateIdle || st.LastError == "" || !st.HasSnapshot {
		t.Errorf("expected idle with last error and snapshot, got %+v", st)
	}

	want := []domain.EventType{domain.EventLoading, domain.EventPublished, domain.EventLoading, domain.EventFailed}
	for i, typ := range want {
		select {
		case ev := <-events:
			if ev.Type != typ {
				t.Errorf("event %d: expected %s, got %s", i, typ, ev.Type)
			}
			if ev.Type == domain.EventFailed && ev.Error == "" {
				t.Error("failed event should carry the error")
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d (%s)", i, typ)
		}
	}

	cyc, _ = c.Trigger(ctx, service.TriggerPullToRefresh)
	fetcher.next(t).reply(result(rec("a", "income", "100", "2024-01-01"), rec("b", "expense", "10", "2024-01-02")), nil)
	if err := waitCycle(t, cyc); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if st := c.Status(); st.State != service.StateReady || st.LastError != "" {
		t.Errorf("expected recovery to ready, got %+v", st)
	}
}

func TestCoordinator_StaleResultIsDiscarded(t *testing.T) {
	fetcher := newGatedFetcher()
	c, metrics := newCoordinator(t, newFakeSessions(liveSession()), fetcher)
	ctx := context.Background()

	cycA, _ := c.Trigger(ctx, service.TriggerMount)
	callA := fetcher.next(t)

	cycB, err := c.Supersede(ctx)
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}
	callB := fetcher.next(t)
	if cycA.Seq() != 1 || cycB.Seq() != 2 {
		t.Fatalf("expected seq 1 and 2, got %d and %d", cycA.Seq(), cycB.Seq())
	}

	callB.reply(result(rec("b", "income", "20", "2024-01-02")), nil)
	if err := waitCycle(t, cycB); err != nil {
		t.Fatalf("B: %v", err)
	}

	callA.reply(result(rec("a", "income", "10", "2024-01-01")), nil)
	// waiting on A follows it to B
	if err := waitCycle(t, cycA); err != nil {
		t.Fatalf("A: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for metrics.GetEngineSnapshot().StaleDiscarded < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if metrics.GetEngineSnapshot().StaleDiscarded != 1 {
		t.Fatal("expected A's result to be discarded")
	}

	snap := c.Snapshot()
	if snap.Seq() != 2 {
		t.Errorf("expected B's snapshot (seq 2), got seq %d", snap.Seq())
	}
	if recent := snap.All(""); len(recent) != 1 || recent[0].ID != "b" {
		t.Errorf("expected only B's data, got %+v", recent)
	}
}

func TestCoordinator_SupersededFetchNeverPublishesEvenIfFirst(t *testing.T) {
	fetcher := newGatedFetcher()
	c, _ := newCoordinator(t, newFakeSessions(liveSession()), fetcher)
	ctx := context.Background()

	c.Trigger(ctx, service.TriggerMount)
	callA := fetcher.next(t)
	queued, _ := c.Trigger(ctx, service.TriggerFocus)

	cycB, _ := c.Supersede(ctx)
	callB := fetcher.next(t)

	callA.reply(result(rec("a", "income", "10", "2024-01-01")), nil)
	time.Sleep(20 * time.Millisecond)
	if c.Snapshot() != nil {
		t.Fatal("a superseded fetch must never publish")
	}

	callB.reply(result(rec("b", "income", "20", "2024-01-02")), nil)
	if err := waitCycle(t, queued); err != nil {
		t.Fatalf("queued cycle should follow the superseding one: %v", err)
	}
	if c.Snapshot().Seq() != cycB.Seq() {
		t.Errorf("expected seq %d, got %d", cycB.Seq(), c.Snapshot().Seq())
	}
	fetcher.expectNone(t)
}

func TestCoordinator_Unsubscribe(t *testing.T) {
	fetcher := newGatedFetcher()
	c, _ := newCoordinator(t, newFakeSessions(liveSession()), fetcher)

	count := make(chan struct{}, 16)
	unsubscribe := c.Subscribe(func(domain.SnapshotEvent) { count <- struct{}{} })
	unsubscribe()
	unsubscribe()

	cyc, _ := c.Trigger(context.Background(), service.TriggerMount)
	fetcher.next(t).reply(result(), nil)
	_ = waitCycle(t, cyc)

	if len(count) != 0 {
		t.Errorf("expected no events after unsubscribe, got %d", len(count))
	}
}

func TestCoordinator_CloseCancelsInFlight(t *testing.T) {
	fetcher := newGatedFetcher()
	c, _ := newCoordinator(t, newFakeSessions(liveSession()), fetcher)
	ctx := context.Background()

	cyc, _ := c.Trigger(ctx, service.TriggerMount)
	fetcher.next(t)
	queued, _ := c.Trigger(ctx, service.TriggerFocus)

	c.Close()

	if err := waitCycle(t, cyc); !errors.Is(err, service.ErrEngineClosed) {
		t.Errorf("expected in-flight cycle closed, got %v", err)
	}
	if err := waitCycle(t, queued); !errors.Is(err, service.ErrEngineClosed) {
		t.Errorf("expected queued cycle closed, got %v", err)
	}
	if _, err := c.Trigger(ctx, service.TriggerFocus); !errors.Is(err, service.ErrEngineClosed) {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
}

func TestCoordinator_WaitRespectsContext(t *testing.T) {
	fetcher := newGatedFetcher()
	c, _ := newCoordinator(t, newFakeSessions(liveSession()), fetcher)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Refresh(ctx, service.TriggerMount)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	fetcher.next(t).reply(result(), nil)
}

func TestParseTrigger(t *testing.T) {
	cases := map[string]service.Trigger{
		"":      service.TriggerPullToRefresh,
		"pull":  service.TriggerPullToRefresh,
		"focus": service.TriggerFocus,
		"mount": service.TriggerMount,
	}
	for in, want := range cases {
		got, ok := service.ParseTrigger(in)
		if !ok || got != want {
			t.Errorf("ParseTrigger(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := service.ParseTrigger("mutation"); ok {
		t.Error("mutation must not be accepted from clients")
	}
}

func TestEngines_OneCoordinatorPerSession(t *testing.T) {
	sessions := newFakeSessions(liveSession())
	fetcher := &staticFetcher{}
	metrics := observability.NewMetrics()
	engines := service.NewEngines(sessions, fetcher, service.CoordinatorConfig{}, metrics, zap.NewNop())
	defer engines.Close()

	events := make(chan domain.SnapshotEvent, 16)
	engines.OnEvent(func(ev domain.SnapshotEvent) { events <- ev })

	a, _ := engines.Get(sessionID)
	b, _ := engines.Get(sessionID)
	if a != b {
		t.Fatal("expected the same coordinator for the same session")
	}
	if engines.Len() != 1 || metrics.GetEngineSnapshot().ActiveEngines != 1 {
		t.Errorf("expected 1 engine")
	}

	if err := a.Refresh(context.Background(), service.TriggerMount); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	seen := map[domain.EventType]bool{}
	for len(events) > 0 {
		ev := <-events
		seen[ev.Type] = true
		if ev.SessionID != sessionID {
			t.Errorf("unexpected session id %q", ev.SessionID)
		}
	}
	if !seen[domain.EventLoading] || !seen[domain.EventPublished] {
		t.Errorf("expected loading and published events via hook, got %v", seen)
	}

	engines.Drop(sessionID)
	if _, ok := engines.Lookup(sessionID); ok {
		t.Error("expected coordinator to be dropped")
	}
	if _, err := a.Trigger(context.Background(), service.TriggerFocus); !errors.Is(err, service.ErrEngineClosed) {
		t.Errorf("dropped coordinator should be closed, got %v", err)
	}
}

func TestEngines_NoCoordinatorForEndedSession(t *testing.T) {
	sessions := newFakeSessions(liveSession())
	metrics := observability.NewMetrics()
	engines := service.NewEngines(sessions, &staticFetcher{}, service.CoordinatorConfig{}, metrics, zap.NewNop())
	defer engines.Close()

	sessions.Delete(sessionID)

	if _, err := engines.Get(sessionID); !errors.Is(err, domain.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
	if engines.Len() != 0 || metrics.GetEngineSnapshot().ActiveEngines != 0 {
		t.Errorf("expected no engine for an ended session, got %d", engines.Len())
	}
}
