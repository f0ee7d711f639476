// Package domain defines the core entities of the ledger BFA.
// These models are independent of the transport and of the remote finance
// API, and represent the canonical data structures used throughout.
package domain

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Kinds
// ============================================================

// Kind is the direction of a transaction. It is always carried explicitly
// and never derived from the sign of an amount.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// ParseKind accepts the wire spelling of a kind, case-insensitively.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindIncome:
		return KindIncome, true
	case KindExpense:
		return KindExpense, true
	}
	return "", false
}

// Matches reports whether k passes the filter f. An empty filter matches all kinds.
func (k Kind) Matches(f Kind) bool {
	return f == "" || k == f
}

// ============================================================
// Raw records (remote finance API)
// ============================================================

// RawTransactionRecord is one element of the remote API's transaction list,
// as received. Nothing in it is trusted until it passes the normalizer.
type RawTransactionRecord struct {
	ID     string              `json:"_id"`
	Type   string              `json:"type"`
	Title  string              `json:"title"`
	Amount decimal.NullDecimal `json:"amount"`
	Date   string              `json:"date"`
	Icon   string              `json:"icon,omitempty"`
}

// UnmarshalJSON accepts both "_id" and "id" for the identifier.
func (r *RawTransactionRecord) UnmarshalJSON(b []byte) error {
	type plain RawTransactionRecord
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = RawTransactionRecord(aux.plain)
	if r.ID == "" {
		r.ID = aux.AltID
	}
	return nil
}

// FetchResult is what a TransactionsFetcher hands back for one fetch.
// Undecodable counts list elements that could not even be decoded into a
// RawTransactionRecord; they are reported, never returned.
type FetchResult struct {
	Records     []RawTransactionRecord
	Undecodable int
}

// FetchFilter narrows a fetch on the remote side.
type FetchFilter struct {
	Kind Kind
}

// ============================================================
// Canonical transactions
// ============================================================

// Icon is the resolved icon descriptor of a transaction.
type Icon struct {
	Key      string `json:"key"`
	Color    string `json:"color"`
	Category string `json:"category"`
}

// CanonicalTransaction is a validated, normalized income or expense event.
// Values of this type are never mutated once they are part of a snapshot.
type CanonicalTransaction struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	Label      string          `json:"label"`
	OccurredAt time.Time       `json:"occurredAt"`
	Amount     decimal.Decimal `json:"amount"`
	Icon       Icon            `json:"icon"`
}

// SignedAmount returns the amount with the direction applied, for presentation.
func (t CanonicalTransaction) SignedAmount() decimal.Decimal {
	if t.Kind == KindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// ============================================================
// Derived views
// ============================================================

// AggregateSummary is recomputed from scratch on every refresh.
// Sums keep full precision; rounding happens only in Rounded.
type AggregateSummary struct {
	TotalIncome       decimal.Decimal `json:"totalIncome"`
	TotalExpense      decimal.Decimal `json:"totalExpense"`
	TotalBalance      decimal.Decimal `json:"totalBalance"`
	BudgetUtilization float64         `json:"budgetUtilization"`
	TransactionCount  int             `json:"transactionCount"`
	IncomeCount       int             `json:"incomeCount"`
	ExpenseCount      int             `json:"expenseCount"`
}

// RoundedSummary is the whole-currency-unit rendition of an AggregateSummary.
type RoundedSummary struct {
	TotalIncome       int64 `json:"totalIncome"`
	TotalExpense      int64 `json:"totalExpense"`
	TotalBalance      int64 `json:"totalBalance"`
	BudgetUtilization int   `json:"budgetUtilization"`
}

// Rounded rounds every total to the nearest whole currency unit.
// The balance is rounded on its own, not recomputed from rounded parts.
func (s AggregateSummary) Rounded() RoundedSummary {
	return RoundedSummary{
		TotalIncome:       s.TotalIncome.Round(0).IntPart(),
		TotalExpense:      s.TotalExpense.Round(0).IntPart(),
		TotalBalance:      s.TotalBalance.Round(0).IntPart(),
		BudgetUtilization: int(math.Round(s.BudgetUtilization)),
	}
}

// ChartBucket is one bar or slice of a per-screen chart.
type ChartBucket struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// ReportRow is the flat row handed to CSV and print exporters.
type ReportRow struct {
	Type   Kind            `json:"type"`
	Label  string          `json:"label"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// ============================================================
// Write-through requests
// ============================================================

// NewTransaction is the body of an add request.
type NewTransaction struct {
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
	Type   Kind            `json:"type"`
	Date   time.Time       `json:"date"`
	Icon   string          `json:"icon,omitempty"`
}

// TransactionUpdate is the body of an edit request. Only title and amount
// are editable, matching the remote API.
type TransactionUpdate struct {
	Title  string          `json:"title"`
	Amount decimal.Decimal `json:"amount"`
}
