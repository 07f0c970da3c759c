package ledger

import (
	"fmt"
	"strings"
)

const maxUndo = 50

// Editable ledger columns.
const (
	FieldCode        = "code"
	FieldDate        = "date"
	FieldDescription = "description"
	FieldDebit       = "debit"
	FieldCredit      = "credit"
	FieldFee         = "fee"
	FieldVAT         = "vat"
)

// Session owns a merged ledger and the undo stack of full snapshots taken
// before each edit. It is not safe for concurrent use; callers serialize.
type Session struct {
	Ledger  *Ledger   `json:"ledger" bson:"ledger"`
	History []*Ledger `json:"-" bson:"history"`
}

// NewSession starts editing a freshly merged ledger.
func NewSession(l *Ledger) *Session {
	return &Session{Ledger: l}
}

// CanUndo reports whether Undo has something to restore.
func (s *Session) CanUndo() bool {
	return s != nil && len(s.History) > 0
}

func (s *Session) checkpoint() error {
	if s == nil || s.Ledger == nil {
		return errNoLedger
	}
	s.History = append(s.History, s.Ledger.Clone())
	if len(s.History) > maxUndo {
		s.History = s.History[len(s.History)-maxUndo:]
	}
	return nil
}

// discard drops the checkpoint of an edit that failed validation.
func (s *Session) discard() {
	s.History = s.History[:len(s.History)-1]
}

func (s *Session) afterEdit() {
	s.Ledger.WarningDismissed = false
	s.Ledger.Recalculate()
}

func (s *Session) row(row int) error {
	if row < 0 || row >= len(s.Ledger.Transactions) {
		return &InputError{Field: "row", Err: fmt.Errorf("row %d out of range [0,%d)", row, len(s.Ledger.Transactions))}
	}
	return nil
}

// EditCell sets one field of one row. Amount fields accept the same forms as
// model output and are stored non-negative.
func (s *Session) EditCell(row int, field, value string) error {
	if err := s.checkpoint(); err != nil {
		return err
	}
	if err := s.row(row); err != nil {
		s.discard()
		return err
	}
	tx := &s.Ledger.Transactions[row]

	switch strings.ToLower(field) {
	case FieldCode:
		tx.Code = strings.TrimSpace(value)
	case FieldDate:
		tx.Date = strings.TrimSpace(value)
	case FieldDescription:
		tx.Description = strings.TrimSpace(value)
	case FieldDebit, FieldCredit, FieldFee, FieldVAT:
		d, err := parseCellAmount(value)
		if err != nil {
			s.discard()
			return &InputError{Field: field, Err: err}
		}
		d = d.Abs()
		switch strings.ToLower(field) {
		case FieldDebit:
			tx.Debit = d
		case FieldCredit:
			tx.Credit = d
		case FieldFee:
			tx.Fee = d
		case FieldVAT:
			tx.VAT = d
		}
	default:
		s.discard()
		return &InputError{Field: "field", Err: fmt.Errorf("unknown column %q", field)}
	}

	s.afterEdit()
	return nil
}

// DeleteRow removes one row.
func (s *Session) DeleteRow(row int) error {
	if err := s.checkpoint(); err != nil {
		return err
	}
	if err := s.row(row); err != nil {
		s.discard()
		return err
	}
	txs := s.Ledger.Transactions
	s.Ledger.Transactions = append(txs[:row:row], txs[row+1:]...)
	s.afterEdit()
	return nil
}

// SetOpeningBalance overrides the opening balance with a user value.
func (s *Session) SetOpeningBalance(value string) error {
	if err := s.checkpoint(); err != nil {
		return err
	}
	d, err := ParseUserAmount(value)
	if err != nil {
		s.discard()
		return err
	}
	s.Ledger.OpeningBalance = d
	s.Ledger.OpeningFromUser = true
	s.afterEdit()
	return nil
}

// Undo restores the ledger as it was before the last edit.
func (s *Session) Undo() error {
	if !s.CanUndo() {
		return ErrNothingToUndo
	}
	last := len(s.History) - 1
	s.Ledger = s.History[last]
	s.History = s.History[:last]
	return nil
}

// DismissWarning hides the mismatch warning until the next edit.
func (s *Session) DismissWarning() error {
	if s == nil || s.Ledger == nil {
		return errNoLedger
	}
	s.Ledger.WarningDismissed = true
	s.Ledger.Warning = ""
	return nil
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := &Session{Ledger: s.Ledger.Clone()}
	for _, h := range s.History {
		c.History = append(c.History, h.Clone())
	}
	return c
}
