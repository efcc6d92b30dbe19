package revenue

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/mbd888/balances/internal/money"
	"github.com/shopspring/decimal"
)

// Row is one service's revenue in a report.
type Row struct {
	Service string          `json:"service"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Report is the consolidated revenue of one calendar month.
type Report struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Rows  []Row      `json:"rows"`
}

// MonthlyReport aggregates revenue from the first to the last day of the
// month. The year must come after the configured founding year and must
// not be past the current year; anything else is ErrInvalidPeriod.
func (a *Aggregator) MonthlyReport(ctx context.Context, year int, month time.Month) (*Report, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month %d", ErrInvalidPeriod, month)
	}
	if year <= a.reportsFromYear {
		return nil, fmt.Errorf("%w: reports are available for years after %d", ErrInvalidPeriod, a.reportsFromYear)
	}
	if current := a.now().UTC().Year(); year > current {
		return nil, fmt.Errorf("%w: year %d is in the future", ErrInvalidPeriod, year)
	}

	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)

	totals, err := a.RevenueByService(ctx, start, end)
	if err != nil {
		return nil, err
	}

	report := &Report{Year: year, Month: month, Rows: make([]Row, 0, len(totals))}
	for name, revenue := range totals {
		report.Rows = append(report.Rows, Row{Service: name, Revenue: revenue})
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].Service < report.Rows[j].Service
	})
	return report, nil
}

// Filename is the suggested attachment name for the report's CSV.
func (r *Report) Filename() string {
	return fmt.Sprintf("report_%d-%d.csv", r.Year, r.Month)
}

// WriteCSV renders the report as a two-column CSV with a header row.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	header := []string{
		"Service Name",
		fmt.Sprintf("Total Revenue in the period (YYYY-MM) %d-%d", r.Year, r.Month),
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range r.Rows {
		if err := cw.Write([]string{row.Service, money.Format(row.Revenue)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
