package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>DKK
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-120.00
<FITID>2024011501
<NAME>NETFLIX.COM 4521 COPENHAGEN
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240131120000[0:GMT]
<TRNAMT>35000.00
<FITID>2024013101
<NAME>SALARY JAN ACME APS
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>34880.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestOFXParser_BankStatement(t *testing.T) {
	rows, rowErrs, err := NewOFXParser().Parse(strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, rows, 2)

	assert.Equal(t, "NETFLIX.COM 4521 COPENHAGEN", rows[0].Description)
	assert.InDelta(t, -120.00, rows[0].Amount, 1e-9)
	assert.Equal(t, "DKK", rows[0].Currency)
	assert.Equal(t, "1234567890", rows[0].AccountID)
	assert.Equal(t, "2024011501", rows[0].ExternalRef)
	assert.Equal(t, 2024, rows[0].Date.Year())

	assert.Equal(t, "SALARY JAN ACME APS", rows[1].Description)
	assert.InDelta(t, 35000.00, rows[1].Amount, 1e-9)
}

func TestOFXParser_ToleratesSGMLQuirks(t *testing.T) {
	// Mixed-case severity and leading blank lines appear in real bank
	// exports and must not break parsing.
	quirky := "\n\n" + strings.Replace(sampleBankOFX, "<SEVERITY>INFO", "<SEVERITY>Info</SEVERITY>", 2)

	rows, _, err := NewOFXParser().Parse(strings.NewReader(quirky))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestOFXParser_RejectsGarbage(t *testing.T) {
	_, _, err := NewOFXParser().Parse(strings.NewReader("definitely not an ofx file"))
	require.Error(t, err)
}
