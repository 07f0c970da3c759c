package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{"Chunk", "Code", "Date", "Description", "Debit", "Credit", "Fee", "VAT"}

// WriteCSV writes the ledger rows as comma-separated values.
func WriteCSV(out io.Writer, l *Ledger) error {
	return writeDelimited(out, l, ',')
}

// WriteTSV writes the ledger rows as tab-separated values.
func WriteTSV(out io.Writer, l *Ledger) error {
	return writeDelimited(out, l, '\t')
}

func writeDelimited(out io.Writer, l *Ledger, comma rune) error {
	writer := csv.NewWriter(out)
	writer.Comma = comma

	if err := writer.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, tx := range l.Transactions {
		row := []string{
			strconv.Itoa(tx.Chunk),
			tx.Code,
			tx.Date,
			tx.Description,
			formatCell(tx.Debit),
			formatCell(tx.Credit),
			formatCell(tx.Fee),
			formatCell(tx.VAT),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatCell(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.StringFixed(2)
}

// WriteXLSX writes a workbook with a Ledger sheet (the exported rows) and a
// Summary sheet (balances and totals).
func WriteXLSX(out io.Writer, l *Ledger) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Ledger"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	w := &sheetWriter{f: f}
	for i, h := range exportHeader {
		w.value(sheet, i+1, 1, h)
	}
	w.style(sheet, "A1", "H1", headerStyle)

	for i, tx := range l.Transactions {
		row := i + 2
		values := []interface{}{tx.Chunk, tx.Code, tx.Date, tx.Description,
			tx.Debit.InexactFloat64(), tx.Credit.InexactFloat64(), tx.Fee.InexactFloat64(), tx.VAT.InexactFloat64()}
		for col, v := range values {
			w.value(sheet, col+1, row, v)
		}
	}
	if n := len(l.Transactions); n > 0 {
		w.style(sheet, "E2", fmt.Sprintf("H%d", n+1), amountStyle)
	}

	w.width(sheet, "A", "A", 8)  // chunk
	w.width(sheet, "B", "B", 18) // code
	w.width(sheet, "C", "C", 12) // date
	w.width(sheet, "D", "D", 60) // description
	w.width(sheet, "E", "H", 16) // amounts

	const summary = "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	rows := [][2]interface{}{
		{"Account name", l.Account.AccountName},
		{"Account number", l.Account.AccountNumber},
		{"Bank", l.Account.BankName},
		{"Opening balance", l.OpeningBalance.InexactFloat64()},
		{"Total debit", l.Totals.Debit.InexactFloat64()},
		{"Total credit", l.Totals.Credit.InexactFloat64()},
		{"Total fee", l.Totals.Fee.InexactFloat64()},
		{"Total VAT", l.Totals.VAT.InexactFloat64()},
		{"Calculated ending balance", l.Totals.CalculatedEnding.InexactFloat64()},
		{"Statement ending balance", l.StatedEnding.InexactFloat64()},
		{"Amount convention", string(l.Convention)},
	}
	for i, r := range rows {
		w.value(summary, 1, i+1, r[0])
		w.value(summary, 2, i+1, r[1])
	}
	w.style(summary, "B4", "B10", amountStyle)
	w.width(summary, "A", "A", 28)
	w.width(summary, "B", "B", 24)
	if w.err != nil {
		return w.err
	}

	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first excelize error so a run of cell writes is
// checked once. Calls after a failure do nothing.
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) value(sheet string, col, row int, v interface{}) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = fmt.Errorf("cell %d,%d: %w", col, row, err)
		return
	}
	if err := w.f.SetCellValue(sheet, cell, v); err != nil {
		w.err = fmt.Errorf("set %s!%s: %w", sheet, cell, err)
	}
}

func (w *sheetWriter) style(sheet, from, to string, style int) {
	if w.err != nil {
		return
	}
	if err := w.f.SetCellStyle(sheet, from, to, style); err != nil {
		w.err = fmt.Errorf("style %s!%s:%s: %w", sheet, from, to, err)
	}
}

func (w *sheetWriter) width(sheet, from, to string, width float64) {
	if w.err != nil {
		return
	}
	if err := w.f.SetColWidth(sheet, from, to, width); err != nil {
		w.err = fmt.Errorf("width %s!%s:%s: %w", sheet, from, to, err)
	}
}
