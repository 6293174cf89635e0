package fingerprint

import (
	"errors"
	"testing"
	"time"

	"github.com/ledgerhound/ledgerhound/internal/common"
	"github.com/ledgerhound/ledgerhound/internal/model"
)

func baseRow() model.TransactionRow {
	return model.TransactionRow{
		Date:        time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC),
		Description: "NETFLIX.COM",
		Currency:    "DKK",
		AccountID:   "acc1",
		Amount:      1200.00,
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	fp1, err := New(baseRow())
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	fp2, err := New(baseRow())
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	if fp1 != fp2 {
		t.Errorf("identical rows produced different fingerprints: %s vs %s", fp1, fp2)
	}
}

func TestFingerprint_IncidentalFormatting(t *testing.T) {
	canonical, err := New(baseRow())
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}

	variants := []model.TransactionRow{
		func() model.TransactionRow { r := baseRow(); r.Description = "netflix.com "; return r }(),
		func() model.TransactionRow { r := baseRow(); r.Description = "  Netflix.Com"; return r }(),
		func() model.TransactionRow { r := baseRow(); r.Currency = "dkk"; return r }(),
		func() model.TransactionRow { r := baseRow(); r.Amount = 1200.001; return r }(),
		// Same calendar day, different time of day.
		func() model.TransactionRow {
			r := baseRow()
			r.Date = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
			return r
		}(),
	}

	for i, row := range variants {
		fp, err := New(row)
		if err != nil {
			t.Fatalf("variant %d failed: %v", i, err)
		}
		if fp != canonical {
			t.Errorf("variant %d produced a different fingerprint", i)
		}
	}
}

func TestFingerprint_DistinguishesFields(t *testing.T) {
	canonical, _ := New(baseRow())

	variants := map[string]model.TransactionRow{
		"amount":      func() model.TransactionRow { r := baseRow(); r.Amount = 1200.01; return r }(),
		"date":        func() model.TransactionRow { r := baseRow(); r.Date = r.Date.AddDate(0, 0, 1); return r }(),
		"account":     func() model.TransactionRow { r := baseRow(); r.AccountID = "acc2"; return r }(),
		"description": func() model.TransactionRow { r := baseRow(); r.Description = "SPOTIFY"; return r }(),
		"currency":    func() model.TransactionRow { r := baseRow(); r.Currency = "EUR"; return r }(),
	}

	for field, row := range variants {
		fp, err := New(row)
		if err != nil {
			t.Fatalf("%s variant failed: %v", field, err)
		}
		if fp == canonical {
			t.Errorf("changing %s did not change the fingerprint", field)
		}
	}
}

func TestFingerprint_MinorUnits(t *testing.T) {
	jpy := baseRow()
	jpy.Currency = "JPY"
	jpy.Amount = 1200.4

	jpyRounded := jpy
	jpyRounded.Amount = 1200.0

	fp1, err := New(jpy)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	fp2, err := New(jpyRounded)
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	if fp1 != fp2 {
		t.Error("JPY amounts should round to whole units")
	}
}

func TestFingerprint_Validation(t *testing.T) {
	cases := []struct {
		mutate func(*model.TransactionRow)
		field  string
	}{
		{func(r *model.TransactionRow) { r.Date = time.Time{} }, "date"},
		{func(r *model.TransactionRow) { r.Description = "   " }, "description"},
		{func(r *model.TransactionRow) { r.Currency = "KRONER" }, "currency"},
		{func(r *model.TransactionRow) { r.AccountID = "" }, "account"},
	}

	for _, tc := range cases {
		row := baseRow()
		tc.mutate(&row)

		_, err := New(row)
		if err == nil {
			t.Errorf("expected validation error for %s", tc.field)
			continue
		}
		var vErr *common.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("expected ValidationError, got %T", err)
			continue
		}
		if vErr.Field != tc.field {
			t.Errorf("expected error on field %q, got %q", tc.field, vErr.Field)
		}
	}
}
