package ledger

import (
	"math"

	"github.com/boddenberg/ledger-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultVisibilityFloor is the utilization shown when there is some expense
// but the real percentage would round to zero. It is a presentation
// heuristic carried over from the dashboard's progress bar, not a
// financial rule.
const DefaultVisibilityFloor = 3.0

var hundred = decimal.NewFromInt(100)

// AggregateOptions tunes the presentation side of aggregation.
type AggregateOptions struct {
	// VisibilityFloor replaces a nonzero expense percentage that would round
	// to 0. Zero disables it.
	VisibilityFloor float64
}

// Aggregate reduces transactions to their summary with the default floor.
func Aggregate(txs []domain.CanonicalTransaction) domain.AggregateSummary {
	return AggregateWith(txs, AggregateOptions{VisibilityFloor: DefaultVisibilityFloor})
}

// AggregateWith reduces transactions to their summary. The reduction is a
// sum over exact decimals, so any permutation of txs gives the same result.
func AggregateWith(txs []domain.CanonicalTransaction, opts AggregateOptions) domain.AggregateSummary {
	var s domain.AggregateSummary
	for _, tx := range txs {
		switch tx.Kind {
		case domain.KindIncome:
			s.TotalIncome = s.TotalIncome.Add(tx.Amount)
			s.IncomeCount++
		case domain.KindExpense:
			s.TotalExpense = s.TotalExpense.Add(tx.Amount)
			s.ExpenseCount++
		}
	}
	s.TransactionCount = s.IncomeCount + s.ExpenseCount
	s.TotalBalance = s.TotalIncome.Sub(s.TotalExpense)
	s.BudgetUtilization = Utilization(s.TotalIncome, s.TotalExpense, opts.VisibilityFloor)
	return s
}

// Utilization is the share of income spent, in percent, clamped to [0, 100].
// Zero income is treated as a denominator of 1. The floor applies only when
// the percentage rounds to 0; the mobile dashboard also lifts values from
// 0.5 up to 3, which this leaves unchanged.
func Utilization(income, expense decimal.Decimal, floor float64) float64 {
	denominator := income
	if !denominator.IsPositive() {
		denominator = decimal.NewFromInt(1)
	}

	pct, _ := expense.Mul(hundred).DivRound(denominator, 8).Float64()
	pct = math.Max(0, math.Min(100, pct))

	if expense.IsPositive() && floor > 0 && math.Round(pct) == 0 {
		pct = math.Min(floor, 100)
	}
	return pct
}
