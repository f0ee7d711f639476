package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// --- Mocks ---

type fetchReply struct {
	res domain.FetchResult
	err error
}

type fetchCall struct {
	creds   domain.Credentials
	release chan fetchReply
}

func (c *fetchCall) reply(res domain.FetchResult, err error) {
	c.release <- fetchReply{res: res, err: err}
}

// gatedFetcher blocks every fetch until the test releases it.
type gatedFetcher struct {
	arrived chan *fetchCall
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{arrived: make(chan *fetchCall, 16)}
}

func (f *gatedFetcher) FetchTransactions(ctx context.Context, creds domain.Credentials, _ domain.FetchFilter) (domain.FetchResult, error) {
	call := &fetchCall{creds: creds, release: make(chan fetchReply, 1)}
	f.arrived <- call
	select {
	case r := <-call.release:
		return r.res, r.err
	case <-ctx.Done():
		return domain.FetchResult{}, ctx.Err()
	}
}

func (f *gatedFetcher) next(t *testing.T) *fetchCall {
	t.Helper()
	select {
	case c := <-f.arrived:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fetch to start")
		return nil
	}
}

func (f *gatedFetcher) expectNone(t *testing.T) {
	t.Helper()
	select {
	case <-f.arrived:
		t.Fatal("unexpected fetch")
	case <-time.After(30 * time.Millisecond):
	}
}

// staticFetcher answers every fetch at once.
type staticFetcher struct {
	mu    sync.Mutex
	res   domain.FetchResult
	err   error
	calls int
}

func (f *staticFetcher) FetchTransactions(_ context.Context, _ domain.Credentials, _ domain.FetchFilter) (domain.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

func (f *staticFetcher) set(res domain.FetchResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.res, f.err = res, err
}

// slowFirstFetcher holds the first fetch until release is closed and
// answers every later fetch at once.
type slowFirstFetcher struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newSlowFirstFetcher() *slowFirstFetcher {
	return &slowFirstFetcher{started: make(chan struct{}), release: make(chan struct{})}
}

func (f *slowFirstFetcher) FetchTransactions(ctx context.Context, _ domain.Credentials, _ domain.FetchFilter) (domain.FetchResult, error) {
	n := f.calls.Add(1)
	if n == 1 {
		close(f.started)
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.FetchResult{}, ctx.Err()
		}
	}
	return result(rec(fmt.Sprintf("r%d", n), "income", "1", "2024-01-01")), nil
}

type fakeSessions struct {
	mu    sync.Mutex
	items map[string]domain.Session
}

func newFakeSessions(sessions ...domain.Session) *fakeSessions {
	s := &fakeSessions{items: make(map[string]domain.Session)}
	for _, sess := range sessions {
		s.items[sess.ID] = sess
	}
	return s
}

func (s *fakeSessions) Get(id string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[id]
	return sess, ok
}

func (s *fakeSessions) Put(sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[sess.ID] = sess
}

func (s *fakeSessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
}

type fakeWriter struct {
	mu      sync.Mutex
	added   []domain.NewTransaction
	edited  map[string]domain.TransactionUpdate
	deleted []string
	err     error
	onWrite func()
}

func (w *fakeWriter) AddTransaction(_ context.Context, _ domain.Credentials, tx domain.NewTransaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.added = append(w.added, tx)
	if w.onWrite != nil {
		w.onWrite()
	}
	return nil
}

func (w *fakeWriter) EditTransaction(_ context.Context, _ domain.Credentials, id string, upd domain.TransactionUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.edited == nil {
		w.edited = make(map[string]domain.TransactionUpdate)
	}
	w.edited[id] = upd
	return nil
}

func (w *fakeWriter) DeleteTransaction(_ context.Context, _ domain.Credentials, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.deleted = append(w.deleted, id)
	return nil
}

type fakeGateway struct {
	login     domain.UpstreamLogin
	loginErr  error
	signupErr error
	signups   []domain.SignupRequest
}

func (g *fakeGateway) Login(_ context.Context, _ domain.LoginRequest) (domain.UpstreamLogin, error) {
	return g.login, g.loginErr
}

func (g *fakeGateway) Signup(_ context.Context, req domain.SignupRequest) error {
	if g.signupErr != nil {
		return g.signupErr
	}
	g.signups = append(g.signups, req)
	return nil
}

// --- Fixtures ---

const sessionID = "sess-1"

func liveSession() domain.Session {
	return domain.Session{
		ID:          sessionID,
		Credentials: domain.Credentials{UserID: "u-1", Token: "tok"},
	}
}

func rec(id, typ, amount, date string) domain.RawTransactionRecord {
	return domain.RawTransactionRecord{
		ID:     id,
		Type:   typ,
		Title:  id,
		Amount: decimal.NewNullDecimal(decimal.RequireFromString(amount)),
		Date:   date,
	}
}

func result(records ...domain.RawTransactionRecord) domain.FetchResult {
	return domain.FetchResult{Records: records}
}
