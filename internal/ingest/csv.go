// Package ingest parses bank-statement exports into transaction rows.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

// RowError reports one rejected input row. Rejection is per-row: the rest
// of the file still parses.
type RowError struct {
	Err  error
	Line int
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	// DefaultCurrency fills rows whose currency column is missing or
	// empty. Bank exports often omit the currency entirely.
	DefaultCurrency string
	// Separator defaults to ';', the common bank-export convention.
	Separator rune
}

// CSVParser reads semicolon-separated bank exports with a header row.
// Recognized columns (case-insensitive): date, amount, currency,
// text/description, account, reference. Amounts may use European decimal
// commas ("1.234,56") or plain decimal points.
type CSVParser struct {
	opts CSVOptions
}

// NewCSVParser creates a parser with the given options.
func NewCSVParser(opts CSVOptions) *CSVParser {
	if opts.Separator == 0 {
		opts.Separator = ';'
	}
	return &CSVParser{opts: opts}
}

var dateLayouts = []string{"2006-01-02", "02-01-2006", "02.01.2006", "02/01/2006"}

// Parse reads all rows from r. Malformed rows are collected as RowErrors
// and skipped; only structural failures (unreadable input, missing header
// columns) abort the parse.
func (p *CSVParser) Parse(r io.Reader) ([]model.TransactionRow, []RowError, error) {
	reader := csv.NewReader(r)
	reader.Comma = p.opts.Separator
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	cols, err := mapColumns(header)
	if err != nil {
		return nil, nil, err
	}

	var (
		rows    []model.TransactionRow
		rowErrs []RowError
		line    = 1
	)
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}

		row, err := p.parseRecord(record, cols)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Err: err})
			continue
		}
		rows = append(rows, row)
	}

	slog.Info("Parsed CSV file", "rows", len(rows), "rejected", len(rowErrs))
	return rows, rowErrs, nil
}

// columns maps logical fields to header positions. -1 means absent.
type columns struct {
	date      int
	amount    int
	currency  int
	text      int
	account   int
	reference int
}

func mapColumns(header []string) (columns, error) {
	cols := columns{date: -1, amount: -1, currency: -1, text: -1, account: -1, reference: -1}

	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "dato", "booking date":
			cols.date = i
		case "amount", "beløb":
			cols.amount = i
		case "currency", "valuta":
			cols.currency = i
		case "text", "description", "tekst":
			cols.text = i
		case "account", "konto":
			cols.account = i
		case "reference", "ref":
			cols.reference = i
		}
	}

	if cols.date == -1 || cols.amount == -1 || cols.text == -1 || cols.account == -1 {
		return cols, fmt.Errorf("%w: header must name date, amount, text and account columns",
			common.ErrInvalidConfig)
	}
	return cols, nil
}

func (p *CSVParser) parseRecord(record []string, cols columns) (model.TransactionRow, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	date, err := parseDate(field(cols.date))
	if err != nil {
		return model.TransactionRow{}, err
	}

	amount, err := ParseAmount(field(cols.amount))
	if err != nil {
		return model.TransactionRow{}, err
	}

	currency := strings.ToUpper(field(cols.currency))
	if currency == "" {
		currency = p.opts.DefaultCurrency
	}

	return model.TransactionRow{
		Date:        date,
		Description: field(cols.text),
		Currency:    currency,
		AccountID:   field(cols.account),
		ExternalRef: field(cols.reference),
		Amount:      amount,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, common.NewValidationError("date", "empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, common.NewValidationError("date", fmt.Sprintf("unparseable date %q", s))
}

// ParseAmount parses either European decimal-comma amounts ("1.234,56",
// "-120,00") or plain decimal-point amounts ("1234.56"). A comma marks the
// European form, in which dots are thousand separators.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, common.NewValidationError("amount", "empty")
	}

	normalized := strings.ReplaceAll(s, " ", "")
	if strings.Contains(normalized, ",") {
		normalized = strings.ReplaceAll(normalized, ".", "")
		normalized = strings.Replace(normalized, ",", ".", 1)
	}

	amount, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, common.NewValidationError("amount", fmt.Sprintf("unparseable amount %q", s))
	}
	return amount, nil
}
