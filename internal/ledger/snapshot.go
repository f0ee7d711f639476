package ledger

import (
	"sort"
	"time"
	"unicode/utf8"

	"github.com/boddenberg/ledger-bfa/internal/domain"
)

// Chart labels longer than chartLabelMax runes are cut to chartLabelKeep
// runes plus an ellipsis.
const (
	chartLabelMax  = 8
	chartLabelKeep = 7
	ellipsis       = "…"
)

// Snapshot is an immutable set of canonical transactions plus everything
// derived from them. It is replaced wholesale on every successful refresh.
// All projections read from the same snapshot and return fresh slices.
type Snapshot struct {
	seq       uint64
	fetchedAt time.Time
	ordered   []domain.CanonicalTransaction // date desc, id asc
	summary   domain.AggregateSummary
	dropped   int
	reasons   map[DropReason]int
}

// NewSnapshot builds a snapshot from a normalization result. The input
// slice is copied before it is ordered, so the caller keeps ownership.
func NewSnapshot(seq uint64, fetchedAt time.Time, res NormalizeResult, opts AggregateOptions) *Snapshot {
	ordered := make([]domain.CanonicalTransaction, len(res.Transactions))
	copy(ordered, res.Transactions)
	sort.SliceStable(ordered, func(i, j int) bool {
		return recentBefore(ordered[i], ordered[j])
	})

	reasons := make(map[DropReason]int, len(res.Reasons))
	for k, v := range res.Reasons {
		reasons[k] = v
	}

	return &Snapshot{
		seq:       seq,
		fetchedAt: fetchedAt,
		ordered:   ordered,
		summary:   AggregateWith(ordered, opts),
		dropped:   res.Dropped,
		reasons:   reasons,
	}
}

// recentBefore orders by occurrence descending, then id ascending.
func recentBefore(a, b domain.CanonicalTransaction) bool {
	if !a.OccurredAt.Equal(b.OccurredAt) {
		return a.OccurredAt.After(b.OccurredAt)
	}
	return a.ID < b.ID
}

// Seq is the sequence number of the fetch that produced the snapshot.
func (s *Snapshot) Seq() uint64 { return s.seq }

// FetchedAt is when the producing fetch completed.
func (s *Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// Summary returns the aggregate summary.
func (s *Snapshot) Summary() domain.AggregateSummary { return s.summary }

// Dropped is the number of raw records excluded from the snapshot.
func (s *Snapshot) Dropped() int { return s.dropped }

// DropReasons returns a copy of the per-reason dropped counts.
func (s *Snapshot) DropReasons() map[DropReason]int {
	out := make(map[DropReason]int, len(s.reasons))
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

// Len is the number of canonical transactions in the snapshot.
func (s *Snapshot) Len() int { return len(s.ordered) }

// Recent returns up to n transactions of the given kind, most recent first,
// ties broken by id ascending. An empty kind matches both kinds; n <= 0
// yields an empty slice.
func (s *Snapshot) Recent(n int, kind domain.Kind) []domain.CanonicalTransaction {
	if n <= 0 {
		return []domain.CanonicalTransaction{}
	}
	return s.filter(n, kind)
}

// All returns every transaction of the given kind in Recent order.
func (s *Snapshot) All(kind domain.Kind) []domain.CanonicalTransaction {
	return s.filter(len(s.ordered), kind)
}

func (s *Snapshot) filter(n int, kind domain.Kind) []domain.CanonicalTransaction {
	out := make([]domain.CanonicalTransaction, 0, min(n, len(s.ordered)))
	for _, tx := range s.ordered {
		if len(out) == n {
			break
		}
		if tx.Kind.Matches(kind) {
			out = append(out, tx)
		}
	}
	return out
}

// ChartBuckets returns one bucket per transaction for the first maxBuckets
// entries of Recent(maxBuckets, kind).
func (s *Snapshot) ChartBuckets(kind domain.Kind, maxBuckets int) []domain.ChartBucket {
	if maxBuckets <= 0 {
		return []domain.ChartBucket{}
	}
	recent := s.Recent(maxBuckets, kind)
	out := make([]domain.ChartBucket, len(recent))
	for i, tx := range recent {
		value, _ := tx.Amount.Float64()
		out[i] = domain.ChartBucket{
			Label: ChartLabel(tx.Label),
			Value: value,
			Color: tx.Icon.Color,
		}
	}
	return out
}

// ReportRows returns every transaction as a flat export row, in Recent order.
func (s *Snapshot) ReportRows() []domain.ReportRow {
	out := make([]domain.ReportRow, len(s.ordered))
	for i, tx := range s.ordered {
		out[i] = domain.ReportRow{
			Type:   tx.Kind,
			Label:  tx.Label,
			Date:   tx.OccurredAt,
			Amount: tx.Amount,
		}
	}
	return out
}

// ChartLabel shortens a label to the chart's display width.
func ChartLabel(label string) string {
	if utf8.RuneCountInString(label) <= chartLabelMax {
		return label
	}
	runes := []rune(label)
	return string(runes[:chartLabelKeep]) + ellipsis
}
