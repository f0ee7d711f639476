// Package export renders report rows for download.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/boddenberg/ledger-bfa/internal/domain"
)

// DateLayout is the day/month/year layout the client shows in its lists.
const DateLayout = "2/1/2006"

// Header is the first CSV line.
var Header = []string{"Type", "Title", "Date", "Amount"}

// WriteCSV writes rows as CSV with a header line. Titles containing commas
// or quotes are quoted.
func WriteCSV(w io.Writer, rows []domain.ReportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, row := range rows {
		rec := []string{
			string(row.Type),
			row.Label,
			row.Date.Format(DateLayout),
			row.Amount.String(),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
