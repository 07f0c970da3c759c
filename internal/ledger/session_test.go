package ledger

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func sampleLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Merge([]Fragment{{
		Chunk:          1,
		Account:        AccountInfo{AccountName: "Test Co", BankName: "ACB"},
		OpeningBalance: dec("1000000"),
		EndingBalance:  dec("1300000"),
		Transactions: []Transaction{
			{Chunk: 1, Code: "FT1", Date: "03/01/2024", Description: "Salary", Debit: dec("500000")},
			{Chunk: 1, Code: "FT2", Date: "04/01/2024", Description: "Rent, office", Credit: dec("200000"), Fee: dec("1100")},
		},
	}}, MergeOptions{Tolerance: decimal.NewFromInt(1), Convention: ConventionGross})
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestSessionEditAndUndo(t *testing.T) {
	s := NewSession(sampleLedger(t))

	if err := s.EditCell(0, FieldDebit, "505,000"); err != nil {
		t.Fatalf("EditCell: %v", err)
	}
	if !s.Ledger.Totals.CalculatedEnding.Equal(dec("1305000")) {
		t.Errorf("calculated ending got=%s want=1305000", s.Ledger.Totals.CalculatedEnding)
	}
	if s.Ledger.Mismatch == nil || s.Ledger.Warning == "" {
		t.Error("edit should raise a mismatch warning")
	}

	if err := s.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if !s.Ledger.Transactions[0].Debit.Equal(dec("500000")) || s.Ledger.Mismatch != nil {
		t.Errorf("undo got debit=%s mismatch=%v", s.Ledger.Transactions[0].Debit, s.Ledger.Mismatch)
	}
	if !errors.Is(s.Undo(), ErrNothingToUndo) {
		t.Error("second undo should report nothing to undo")
	}
}

func TestSessionTextEdits(t *testing.T) {
	s := NewSession(sampleLedger(t))
	if err := s.EditCell(1, "Description", "  Rent January "); err != nil {
		t.Fatal(err)
	}
	if err := s.EditCell(1, FieldCode, "ft-9"); err != nil {
		t.Fatal(err)
	}
	tx := s.Ledger.Transactions[1]
	if tx.Description != "Rent January" || tx.Code != "ft-9" {
		t.Errorf("row got %+v", tx)
	}
	if len(s.History) != 2 {
		t.Errorf("history got=%d want=2", len(s.History))
	}
}

func TestSessionRejectsBadEdits(t *testing.T) {
	s := NewSession(sampleLedger(t))
	var inErr *InputError
	if err := s.EditCell(5, FieldDebit, "1"); !errors.As(err, &inErr) {
		t.Errorf("out of range row err got %v", err)
	}
	if err := s.EditCell(0, "balance", "1"); !errors.As(err, &inErr) {
		t.Errorf("unknown field err got %v", err)
	}
	if err := s.EditCell(0, FieldCredit, "abc"); !errors.As(err, &inErr) {
		t.Errorf("bad amount err got %v", err)
	}
	if err := s.EditCell(0, FieldFee, "N/A"); !errors.As(err, &inErr) {
		t.Errorf("placeholder amount err got %v", err)
	}
	if err := s.DeleteRow(-1); !errors.As(err, &inErr) {
		t.Errorf("negative row err got %v", err)
	}
	if s.CanUndo() {
		t.Errorf("failed edits must not leave history, got %d entries", len(s.History))
	}
}

func TestSessionDeleteRowAndOpening(t *testing.T) {
	s := NewSession(sampleLedger(t))
	if err := s.DeleteRow(1); err != nil {
		t.Fatal(err)
	}
	if len(s.Ledger.Transactions) != 1 || !s.Ledger.Totals.Credit.IsZero() {
		t.Errorf("after delete got %d rows credit=%s", len(s.Ledger.Transactions), s.Ledger.Totals.Credit)
	}
	if err := s.SetOpeningBalance("800,000"); err != nil {
		t.Fatal(err)
	}
	if !s.Ledger.Totals.CalculatedEnding.Equal(dec("1300000")) || s.Ledger.Mismatch != nil {
		t.Errorf("after opening got ending=%s warning=%q", s.Ledger.Totals.CalculatedEnding, s.Ledger.Warning)
	}
	if err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	if err := s.Undo(); err != nil {
		t.Fatal(err)
	}
	if len(s.Ledger.Transactions) != 2 {
		t.Errorf("undo should restore deleted row, got %d rows", len(s.Ledger.Transactions))
	}
}

func TestSessionDismissWarning(t *testing.T) {
	s := NewSession(sampleLedger(t))
	if err := s.EditCell(0, FieldDebit, "600000"); err != nil {
		t.Fatal(err)
	}
	if err := s.DismissWarning(); err != nil {
		t.Fatal(err)
	}
	if s.Ledger.Warning != "" || s.Ledger.Mismatch == nil {
		t.Errorf("dismiss should hide the text but keep the mismatch: %q %v", s.Ledger.Warning, s.Ledger.Mismatch)
	}
	if err := s.EditCell(0, FieldDebit, "700000"); err != nil {
		t.Fatal(err)
	}
	if s.Ledger.Warning == "" {
		t.Error("a new edit should show the warning again")
	}
}

func TestSessionHistoryBounded(t *testing.T) {
	s := NewSession(sampleLedger(t))
	for i := 0; i < maxUndo+10; i++ {
		if err := s.EditCell(0, FieldDescription, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if len(s.History) != maxUndo {
		t.Errorf("history got=%d want=%d", len(s.History), maxUndo)
	}
}

func TestWriteCSVAndTSV(t *testing.T) {
	l := sampleLedger(t)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, l); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows got=%d want=3", len(rows))
	}
	if strings.Join(rows[0], "|") != "Chunk|Code|Date|Description|Debit|Credit|Fee|VAT" {
		t.Errorf("header got %v", rows[0])
	}
	if rows[2][3] != "Rent, office" || rows[2][5] != "200000.00" || rows[2][6] != "1100.00" || rows[2][4] != "" {
		t.Errorf("row got %v", rows[2])
	}

	buf.Reset()
	if err := WriteTSV(&buf, l); err != nil {
		t.Fatal(err)
	}
	if first := strings.SplitN(buf.String(), "\n", 2)[0]; first != "Chunk\tCode\tDate\tDescription\tDebit\tCredit\tFee\tVAT" {
		t.Errorf("tsv header got %q", first)
	}
}

func TestWriteXLSX(t *testing.T) {
	l := sampleLedger(t)
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, l); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Ledger")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[1][2] != "03/01/2024" {
		t.Errorf("ledger sheet rows got %v", rows)
	}
	summary, err := f.GetRows("Summary")
	if err != nil {
		t.Fatal(err)
	}
	if len(summary) < 10 || summary[0][1] != "Test Co" {
		t.Errorf("summary rows got %v", summary)
	}
}

func TestSheetWriterKeepsFirstError(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	w := &sheetWriter{f: f}
	w.value("Sheet1", 1, 1, "ok")
	if w.err != nil {
		t.Fatalf("write to existing sheet: %v", w.err)
	}

	w.value("Missing", 1, 1, "lost")
	first := w.err
	if first == nil || !strings.Contains(first.Error(), "Missing!A1") {
		t.Fatalf("write to missing sheet err got %v", first)
	}
	w.value("Sheet1", 0, 1, "bad column")
	w.style("Missing", "A1", "B1", 0)
	w.width("Missing", "A", "A", 10)
	if w.err != first {
		t.Errorf("err got %v, want first error %v kept", w.err, first)
	}
	if v, _ := f.GetCellValue("Sheet1", "A1"); v != "ok" {
		t.Errorf("A1 got %q", v)
	}

	w = &sheetWriter{f: f}
	w.value("Sheet1", 0, 1, "bad column")
	if w.err == nil {
		t.Error("column 0 expected error")
	}
}
