package ledger

import (
	"strings"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
)

// DropReason names why a raw record was excluded from a snapshot.
type DropReason string

const (
	DropUndecodable    DropReason = "undecodable"
	DropMissingID      DropReason = "missing_id"
	DropDuplicateID    DropReason = "duplicate_id"
	DropUnknownKind    DropReason = "unknown_kind"
	DropBadDate        DropReason = "bad_date"
	DropMissingAmount  DropReason = "missing_amount"
	DropNegativeAmount DropReason = "negative_amount"
)

// Placeholder labels used when a record arrives with a blank title.
const (
	IncomePlaceholder  = "Income"
	ExpensePlaceholder = "Expense"
)

// dateLayouts are tried in order. Values without a zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizeResult is the outcome of one normalization pass.
type NormalizeResult struct {
	Transactions []domain.CanonicalTransaction
	Dropped      int
	Reasons      map[DropReason]int
}

func (r *NormalizeResult) drop(reason DropReason, n int) {
	if n <= 0 {
		return
	}
	if r.Reasons == nil {
		r.Reasons = make(map[DropReason]int)
	}
	r.Reasons[reason] += n
	r.Dropped += n
}

// Normalize converts raw records into canonical transactions in input order.
// A faulty record is dropped and counted; it never aborts the batch.
func Normalize(raw []domain.RawTransactionRecord) NormalizeResult {
	res := NormalizeResult{
		Transactions: make([]domain.CanonicalTransaction, 0, len(raw)),
	}
	seen := make(map[string]struct{}, len(raw))

	for i, rec := range raw {
		tx, reason, ok := normalizeRecord(rec, i)
		if !ok {
			res.drop(reason, 1)
			continue
		}
		if _, dup := seen[tx.ID]; dup {
			res.drop(DropDuplicateID, 1)
			continue
		}
		seen[tx.ID] = struct{}{}
		res.Transactions = append(res.Transactions, tx)
	}
	return res
}

// NormalizeFetch normalizes a fetch result and folds the transport's
// undecodable elements into the dropped count.
func NormalizeFetch(fr domain.FetchResult) NormalizeResult {
	res := Normalize(fr.Records)
	res.drop(DropUndecodable, fr.Undecodable)
	return res
}

func normalizeRecord(rec domain.RawTransactionRecord, position int) (domain.CanonicalTransaction, DropReason, bool) {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		return domain.CanonicalTransaction{}, DropMissingID, false
	}

	kind, ok := domain.ParseKind(rec.Type)
	if !ok {
		return domain.CanonicalTransaction{}, DropUnknownKind, false
	}

	occurredAt, ok := ParseDate(rec.Date)
	if !ok {
		return domain.CanonicalTransaction{}, DropBadDate, false
	}

	if !rec.Amount.Valid {
		return domain.CanonicalTransaction{}, DropMissingAmount, false
	}
	if rec.Amount.Decimal.IsNegative() {
		return domain.CanonicalTransaction{}, DropNegativeAmount, false
	}

	label := strings.TrimSpace(rec.Title)
	if label == "" {
		label = placeholderFor(kind)
	}

	return domain.CanonicalTransaction{
		ID:         id,
		Kind:       kind,
		Label:      label,
		OccurredAt: occurredAt,
		Amount:     rec.Amount.Decimal,
		Icon:       ResolveIcon(rec.Icon, position),
	}, "", true
}

// ParseDate parses an ISO-8601 timestamp or calendar date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func placeholderFor(k domain.Kind) string {
	if k == domain.KindIncome {
		return IncomePlaceholder
	}
	return ExpensePlaceholder
}
