package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVParser_EuropeanAmounts(t *testing.T) {
	input := strings.Join([]string{
		"Date;Amount;Currency;Text;Account",
		"2024-01-15;-1.234,56;DKK;NETFLIX.COM 4521;acct-1",
		"2024-01-31;35.000,00;DKK;SALARY JAN;acct-1",
	}, "\n")

	rows, rowErrs, err := NewCSVParser(CSVOptions{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 2)

	assert.InDelta(t, -1234.56, rows[0].Amount, 1e-9)
	assert.Equal(t, "NETFLIX.COM 4521", rows[0].Description)
	assert.Equal(t, "DKK", rows[0].Currency)
	assert.Equal(t, "acct-1", rows[0].AccountID)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.InDelta(t, 35000.00, rows[1].Amount, 1e-9)
}

func TestCSVParser_DanishHeaderAndDates(t *testing.T) {
	input := strings.Join([]string{
		"Dato;Beløb;Valuta;Tekst;Konto",
		"15-01-2024;-120,00;DKK;NETFLIX.COM;acct-1",
	}, "\n")

	rows, rowErrs, err := NewCSVParser(CSVOptions{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), rows[0].Date)
	assert.InDelta(t, -120.00, rows[0].Amount, 1e-9)
}

func TestCSVParser_RejectsBadRowsKeepsRest(t *testing.T) {
	input := strings.Join([]string{
		"Date;Amount;Currency;Text;Account",
		"2024-01-15;-120,00;DKK;NETFLIX.COM;acct-1",
		"not-a-date;-10,00;DKK;BAD DATE;acct-1",
		"2024-01-16;garbage;DKK;BAD AMOUNT;acct-1",
		"2024-01-17;-25,00;DKK;CARD FEE;acct-1",
	}, "\n")

	rows, rowErrs, err := NewCSVParser(CSVOptions{}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Len(t, rowErrs, 2)
	assert.Equal(t, 3, rowErrs[0].Line)
	assert.Equal(t, 4, rowErrs[1].Line)
}

func TestCSVParser_DefaultCurrency(t *testing.T) {
	input := strings.Join([]string{
		"Date;Amount;Text;Account",
		"2024-01-15;-120,00;NETFLIX.COM;acct-1",
	}, "\n")

	rows, _, err := NewCSVParser(CSVOptions{DefaultCurrency: "DKK"}).Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "DKK", rows[0].Currency)
}

func TestCSVParser_MissingRequiredColumns(t *testing.T) {
	input := "Date;Amount\n2024-01-15;-120,00\n"

	_, _, err := NewCSVParser(CSVOptions{}).Parse(strings.NewReader(input))
	require.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{input: "1.234,56", want: 1234.56},
		{input: "-120,00", want: -120.00},
		{input: "35.000,00", want: 35000.00},
		{input: "1234.56", want: 1234.56},
		{input: "-120", want: -120},
		{input: "1 234,56", want: 1234.56},
		{input: "", wantErr: true},
		{input: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseAmount(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
