package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/ledgerhound/ledgerhound/internal/model"
)

// OFXParser reads OFX/QFX statement exports.
type OFXParser struct{}

// NewOFXParser creates an OFX parser.
func NewOFXParser() *OFXParser {
	return &OFXParser{}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocessOFX fixes common formatting issues in bank-produced OFX files:
// leading whitespace, mixed-case SEVERITY values, and SGML tags missing
// their closing bracket.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = tagFixRegex.ReplaceAllString(content, "$1>")
	return content
}

// Parse reads all bank and credit-card statements from r. Statements that
// fail to convert are skipped with a warning; rows never fail individually
// here since OFX is machine-produced.
func (p *OFXParser) Parse(r io.Reader) ([]model.TransactionRow, []RowError, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var rows []model.TransactionRow

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		account := string(stmt.BankAcctFrom.AcctID)
		currency := stmt.CurDef.String()
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, convertOFXTransaction(tx, account, currency))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		account := string(stmt.CCAcctFrom.AcctID)
		currency := stmt.CurDef.String()
		for _, tx := range stmt.BankTranList.Transactions {
			rows = append(rows, convertOFXTransaction(tx, account, currency))
		}
	}

	slog.Info("Parsed OFX file", "rows", len(rows))
	return rows, nil, nil
}

func convertOFXTransaction(tx ofxgo.Transaction, account, currency string) model.TransactionRow {
	amount, _ := tx.TrnAmt.Float64()

	description := string(tx.Name)
	// PAYEE carries a cleaner name when present; MEMO sometimes carries the
	// only useful text.
	if tx.Payee != nil && tx.Payee.Name != "" {
		description = string(tx.Payee.Name)
	} else if description == "" && tx.Memo != "" {
		description = string(tx.Memo)
	}

	return model.TransactionRow{
		Date:        tx.DtPosted.Time,
		Description: strings.TrimSpace(description),
		Currency:    currency,
		AccountID:   account,
		ExternalRef: string(tx.FiTID),
		Amount:      amount,
	}
}
