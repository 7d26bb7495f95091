// Package export shapes derived statistics into tabular rows.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/utafrali/siterank/internal/domain"
)

// DateLayout is the layout of date columns.
const DateLayout = "2006-01-02"

// AuthorHeader is the header row of the high-rating authors export.
var AuthorHeader = []string{"name", "email", "registration date"}

// AuthorRows returns the header followed by one row per author, in input order.
func AuthorRows(authors []domain.HighRatingAuthor) [][]string {
	rows := make([][]string, 0, len(authors)+1)
	rows = append(rows, AuthorHeader)
	for _, a := range authors {
		rows = append(rows, []string{a.Username, a.Email, a.RegisteredAt.UTC().Format(DateLayout)})
	}
	return rows
}

// WriteCSV writes rows as RFC 4180 CSV.
func WriteCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
