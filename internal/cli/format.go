// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"strconv"
	"strings"

	"github.com/boddenberg/ledger-bfa/internal/domain"

	"github.com/shopspring/decimal"
)

// Currency is the symbol shown in front of amounts.
const Currency = "₹"

// FormatNumber adds thousands separators, e.g. 1234567 -> "1,234,567".
func FormatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// FormatMoney formats a whole-unit amount, e.g. -300 -> "-₹300".
func FormatMoney(n int64) string {
	if n < 0 {
		return "-" + Currency + FormatNumber(-n)
	}
	return Currency + FormatNumber(n)
}

// FormatSigned formats a transaction amount with its direction,
// "+ ₹5,000" for income and "- ₹1,200" for expenses.
func FormatSigned(kind domain.Kind, amount decimal.Decimal) string {
	sign := "+ "
	if kind == domain.KindExpense {
		sign = "- "
	}
	return sign + Currency + FormatNumber(amount.Round(0).IntPart())
}

// FormatPercent formats a whole percentage.
func FormatPercent(p int) string {
	return strconv.Itoa(p) + "%"
}
