package export_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/boddenberg/ledger-bfa/internal/export"

	"github.com/shopspring/decimal"
)

func TestWriteCSV(t *testing.T) {
	rows := []domain.ReportRow{
		{Type: domain.KindExpense, Label: "Rent, March", Date: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Amount: decimal.RequireFromString("1200.50")},
		{Type: domain.KindIncome, Label: "Salary", Date: time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), Amount: decimal.NewFromInt(5000)},
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := "Type,Title,Date,Amount\n" +
		"expense,\"Rent, March\",5/3/2024,1200.5\n" +
		"income,Salary,28/2/2024,5000\n"
	if got := buf.String(); got != want {
		t.Errorf("unexpected csv:\n%s\nwant:\n%s", got, want)
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "Type,Title,Date,Amount\n" {
		t.Errorf("expected header only, got %q", buf.String())
	}
}
