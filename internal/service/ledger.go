package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/ledger"
	"github.com/boddenberg/ledger-bfa/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var ledgerTracer = otel.Tracer("service/ledger")

// ScreenLimits sets how many rows and chart buckets each screen shows.
type ScreenLimits struct {
	DashboardRecent int
	IncomeRecent    int
	IncomeBuckets   int
	ExpenseRecent   int
	ExpenseBuckets  int
}

// DefaultScreenLimits matches the client's screens.
func DefaultScreenLimits() ScreenLimits {
	return ScreenLimits{
		DashboardRecent: 5,
		IncomeRecent:    10,
		IncomeBuckets:   5,
		ExpenseRecent:   6,
		ExpenseBuckets:  12,
	}
}

// LedgerService serves screen views from the session's coordinator and
// forwards writes upstream.
type LedgerService struct {
	engines  *Engines
	sessions port.SessionStore
	writer   port.TransactionsWriter
	limits   ScreenLimits
	logger   *zap.Logger
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(engines *Engines, sessions port.SessionStore, writer port.TransactionsWriter, limits ScreenLimits, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		engines:  engines,
		sessions: sessions,
		writer:   writer,
		limits:   limits,
		logger:   logger,
	}
}

// Engine returns the session's coordinator.
func (s *LedgerService) Engine(sessionID string) (*Coordinator, error) {
	return s.engines.Get(sessionID)
}

// Snapshot returns the session's current snapshot. The first access mounts
// the ledger and waits for it. When a refresh fails but an older snapshot
// exists, the older snapshot is served.
func (s *LedgerService) Snapshot(ctx context.Context, sessionID string) (*ledger.Snapshot, *Coordinator, error) {
	c, err := s.engines.Get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	if snap := c.Snapshot(); snap != nil {
		return snap, c, nil
	}

	err = c.Refresh(ctx, TriggerMount)
	if snap := c.Snapshot(); snap != nil {
		return snap, c, nil
	}
	if err == nil {
		err = errors.New("refresh completed without a snapshot")
	}
	return nil, c, err
}

// Dashboard builds the dashboard view.
func (s *LedgerService) Dashboard(ctx context.Context, sessionID string) (*domain.DashboardView, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Dashboard")
	defer span.End()

	snap, c, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	summary := snap.Summary()
	return &domain.DashboardView{
		Summary: summary.Rounded(),
		Exact:   summary,
		Recent:  snap.Recent(s.limits.DashboardRecent, ""),
		Meta:    meta(snap, c.Status()),
	}, nil
}

// Kind builds the income or expense screen view.
func (s *LedgerService) Kind(ctx context.Context, sessionID string, kind domain.Kind) (*domain.KindView, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Kind")
	defer span.End()
	span.SetAttributes(attribute.String("ledger.kind", string(kind)))

	snap, c, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	summary := snap.Summary()
	rounded := summary.Rounded()
	view := &domain.KindView{Kind: kind, Meta: meta(snap, c.Status())}
	switch kind {
	case domain.KindIncome:
		view.Total, view.Exact, view.Count = rounded.TotalIncome, summary.TotalIncome, summary.IncomeCount
		view.Recent = snap.Recent(s.limits.IncomeRecent, kind)
		view.Chart = snap.ChartBuckets(kind, s.limits.IncomeBuckets)
	case domain.KindExpense:
		view.Total, view.Exact, view.Count = rounded.TotalExpense, summary.TotalExpense, summary.ExpenseCount
		view.Recent = snap.Recent(s.limits.ExpenseRecent, kind)
		view.Chart = snap.ChartBuckets(kind, s.limits.ExpenseBuckets)
	default:
		return nil, &domain.ErrValidation{Field: "kind", Message: "must be income or expense"}
	}
	return view, nil
}

// Transactions lists every transaction of the given kind ("" for all),
// most recent first.
func (s *LedgerService) Transactions(ctx context.Context, sessionID string, kind domain.Kind) ([]domain.CanonicalTransaction, error) {
	snap, _, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.All(kind), nil
}

// Report returns the export rows.
func (s *LedgerService) Report(ctx context.Context, sessionID string) ([]domain.ReportRow, error) {
	snap, _, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return snap.ReportRows(), nil
}

// Refresh runs an explicit trigger and waits for it.
func (s *LedgerService) Refresh(ctx context.Context, sessionID string, t Trigger) (Status, error) {
	c, err := s.engines.Get(sessionID)
	if err != nil {
		return Status{}, err
	}
	err = c.Refresh(ctx, t)
	return c.Status(), err
}

// ActiveEngines reports how many sessions currently hold a coordinator.
func (s *LedgerService) ActiveEngines() int {
	return s.engines.Len()
}

// Status reports the session's coordinator state without triggering or
// creating a coordinator.
func (s *LedgerService) Status(sessionID string) (Status, error) {
	if c, ok := s.engines.Lookup(sessionID); ok {
		return c.Status(), nil
	}
	if _, ok := s.sessions.Get(sessionID); !ok {
		return Status{}, domain.ErrMissingCredentials
	}
	return Status{State: StateIdle}, nil
}

// ============================================================
// Write-through mutations
// ============================================================

// AddTransaction validates and forwards a new transaction, then refreshes.
func (s *LedgerService) AddTransaction(ctx context.Context, sessionID string, tx domain.NewTransaction) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.AddTransaction")
	defer span.End()

	tx.Title = strings.TrimSpace(tx.Title)
	if err := validateNew(tx); err != nil {
		return err
	}
	tx.Type, _ = domain.ParseKind(string(tx.Type))
	if tx.Icon != "" {
		if _, ok := ledger.LookupIcon(tx.Icon); !ok {
			return &domain.ErrValidation{Field: "icon", Message: "unknown icon"}
		}
	}

	return s.write(ctx, sessionID, func(creds domain.Credentials) error {
		return s.writer.AddTransaction(ctx, creds, tx)
	})
}

// EditTransaction updates title and amount, then refreshes.
func (s *LedgerService) EditTransaction(ctx context.Context, sessionID, id string, upd domain.TransactionUpdate) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.EditTransaction")
	defer span.End()

	upd.Title = strings.TrimSpace(upd.Title)
	if strings.TrimSpace(id) == "" {
		return &domain.ErrValidation{Field: "id", Message: "is required"}
	}
	if upd.Title == "" {
		return &domain.ErrValidation{Field: "title", Message: "is required"}
	}
	if !upd.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}

	return s.write(ctx, sessionID, func(creds domain.Credentials) error {
		return s.writer.EditTransaction(ctx, creds, id, upd)
	})
}

// DeleteTransaction removes a transaction, then refreshes.
func (s *LedgerService) DeleteTransaction(ctx context.Context, sessionID, id string) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteTransaction")
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return &domain.ErrValidation{Field: "id", Message: "is required"}
	}
	return s.write(ctx, sessionID, func(creds domain.Credentials) error {
		return s.writer.DeleteTransaction(ctx, creds, id)
	})
}

// write runs fn with the session's credentials and, once it succeeded,
// supersedes any in-flight read and waits for the fresh snapshot. A failing
// refresh after a successful write is logged, not returned; it shows in Status.
func (s *LedgerService) write(ctx context.Context, sessionID string, fn func(domain.Credentials) error) error {
	sess, ok := s.sessions.Get(sessionID)
	if !ok || !sess.Credentials.Valid() {
		return domain.ErrMissingCredentials
	}
	if err := fn(sess.Credentials); err != nil {
		return err
	}

	c, err := s.engines.Get(sessionID)
	if err != nil {
		return nil
	}
	cyc, err := c.Supersede(ctx)
	if err != nil {
		s.logger.Warn("post-write refresh not started", zap.String("session_id", sessionID), zap.Error(err))
		return nil
	}
	if err := Wait(ctx, cyc); err != nil {
		s.logger.Warn("post-write refresh failed", zap.String("session_id", sessionID), zap.Error(err))
	}
	return nil
}

func validateNew(tx domain.NewTransaction) error {
	if tx.Title == "" {
		return &domain.ErrValidation{Field: "title", Message: "is required"}
	}
	if !tx.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	if _, ok := domain.ParseKind(string(tx.Type)); !ok {
		return &domain.ErrValidation{Field: "type", Message: "must be income or expense"}
	}
	if tx.Date.IsZero() {
		return &domain.ErrValidation{Field: "date", Message: "is required"}
	}
	return nil
}

func meta(snap *ledger.Snapshot, st Status) domain.ViewMeta {
	return domain.ViewMeta{
		Seq:       snap.Seq(),
		FetchedAt: snap.FetchedAt(),
		Dropped:   snap.Dropped(),
		State:     string(st.State),
		LastError: st.LastError,
	}
}
