package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Screen views
// ============================================================

// ViewMeta tells a client which snapshot a view came from and whether the
// last refresh failed.
type ViewMeta struct {
	Seq       uint64    `json:"seq"`
	FetchedAt time.Time `json:"fetchedAt"`
	Dropped   int       `json:"dropped"`
	State     string    `json:"state"`
	LastError string    `json:"lastError,omitempty"`
}

// DashboardView is returned by GET /v1/dashboard.
type DashboardView struct {
	Summary RoundedSummary         `json:"summary"`
	Exact   AggregateSummary       `json:"exact"`
	Recent  []CanonicalTransaction `json:"recent"`
	Meta    ViewMeta               `json:"meta"`
}

// KindView is returned by GET /v1/income and GET /v1/expense.
type KindView struct {
	Kind   Kind                   `json:"kind"`
	Total  int64                  `json:"total"`
	Exact  decimal.Decimal        `json:"exact"`
	Count  int                    `json:"count"`
	Recent []CanonicalTransaction `json:"recent"`
	Chart  []ChartBucket          `json:"chart"`
	Meta   ViewMeta               `json:"meta"`
}
