// Package ledger holds the statement ledger model: per-chunk fragments,
// the merged ledger with totals and reconciliation, edits with undo, and
// export.
package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AmountConvention decides whether fee and VAT are already inside the
// transaction amounts (gross) or charged on top of them (net).
type AmountConvention string

const (
	ConventionGross AmountConvention = "gross"
	ConventionNet   AmountConvention = "net"
)

// ParseConvention maps a config value to a convention, defaulting to gross.
func ParseConvention(s string) AmountConvention {
	if strings.EqualFold(strings.TrimSpace(s), string(ConventionNet)) {
		return ConventionNet
	}
	return ConventionGross
}

// AccountInfo describes the statement's account. Every field is optional.
type AccountInfo struct {
	AccountName   string `json:"account_name,omitempty" bson:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty" bson:"account_number,omitempty"`
	BankName      string `json:"bank_name,omitempty" bson:"bank_name,omitempty"`
	Branch        string `json:"branch,omitempty" bson:"branch,omitempty"`
	Currency      string `json:"currency,omitempty" bson:"currency,omitempty"`
	Period        string `json:"period,omitempty" bson:"period,omitempty"`
}

// IsEmpty reports whether no field carries a value.
func (a AccountInfo) IsEmpty() bool {
	return a == AccountInfo{}
}

// Transaction is one ledger row. Debit and Credit are already in ledger
// orientation (see FromStatementColumns); all amounts are non-negative.
type Transaction struct {
	Chunk       int             `json:"chunk" bson:"chunk"`
	Code        string          `json:"code,omitempty" bson:"code,omitempty"`
	Date        string          `json:"date" bson:"date"`
	Description string          `json:"description" bson:"description"`
	Debit       decimal.Decimal `json:"debit" bson:"debit"`
	Credit      decimal.Decimal `json:"credit" bson:"credit"`
	Fee         decimal.Decimal `json:"fee" bson:"fee"`
	VAT         decimal.Decimal `json:"vat" bson:"vat"`
}

// Fragment is the structured result of one chunk.
type Fragment struct {
	Chunk          int             `json:"chunk" bson:"chunk"`
	Account        AccountInfo     `json:"account_info" bson:"account_info"`
	OpeningBalance decimal.Decimal `json:"opening_balance" bson:"opening_balance"`
	EndingBalance  decimal.Decimal `json:"ending_balance" bson:"ending_balance"`
	Transactions   []Transaction   `json:"transactions" bson:"transactions"`
}

// Totals are recomputed from the rows after every change.
type Totals struct {
	Debit            decimal.Decimal `json:"debit" bson:"debit"`
	Credit           decimal.Decimal `json:"credit" bson:"credit"`
	Fee              decimal.Decimal `json:"fee" bson:"fee"`
	VAT              decimal.Decimal `json:"vat" bson:"vat"`
	CalculatedEnding decimal.Decimal `json:"calculated_ending" bson:"calculated_ending"`
}

// Mismatch records a calculated ending balance that disagrees with the
// statement's stated one by more than the tolerance.
type Mismatch struct {
	Calculated decimal.Decimal `json:"calculated" bson:"calculated"`
	Stated     decimal.Decimal `json:"stated" bson:"stated"`
	Delta      decimal.Decimal `json:"delta" bson:"delta"` // stated - calculated
}

// Ledger is the merged, deduplicated and ordered result of a batch.
type Ledger struct {
	Account          AccountInfo      `json:"account_info" bson:"account_info"`
	OpeningBalance   decimal.Decimal  `json:"opening_balance" bson:"opening_balance"`
	OpeningFromUser  bool             `json:"opening_from_user" bson:"opening_from_user"`
	StatedEnding     decimal.Decimal  `json:"stated_ending" bson:"stated_ending"`
	Transactions     []Transaction    `json:"transactions" bson:"transactions"`
	Totals           Totals           `json:"totals" bson:"totals"`
	Mismatch         *Mismatch        `json:"mismatch,omitempty" bson:"mismatch,omitempty"`
	Warning          string           `json:"warning,omitempty" bson:"warning,omitempty"`
	WarningDismissed bool             `json:"warning_dismissed" bson:"warning_dismissed"`
	Convention       AmountConvention `json:"convention" bson:"convention"`
	Tolerance        decimal.Decimal  `json:"tolerance" bson:"tolerance"`
	DuplicatesFound  int              `json:"duplicates_removed" bson:"duplicates_removed"`
	NoiseRemoved     int              `json:"noise_removed" bson:"noise_removed"`
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	if l == nil {
		return nil
	}
	c := *l
	c.Transactions = append([]Transaction(nil), l.Transactions...)
	if l.Mismatch != nil {
		m := *l.Mismatch
		c.Mismatch = &m
	}
	return &c
}

// Recalculate refreshes totals, the calculated ending balance and the
// mismatch warning.
func (l *Ledger) Recalculate() {
	var t Totals
	for _, tx := range l.Transactions {
		t.Debit = t.Debit.Add(tx.Debit)
		t.Credit = t.Credit.Add(tx.Credit)
		t.Fee = t.Fee.Add(tx.Fee)
		t.VAT = t.VAT.Add(tx.VAT)
	}
	t.CalculatedEnding = l.OpeningBalance.Add(t.Debit).Sub(t.Credit)
	if l.Convention == ConventionNet {
		t.CalculatedEnding = t.CalculatedEnding.Sub(t.Fee).Sub(t.VAT)
	}
	l.Totals = t

	l.Mismatch = nil
	l.Warning = ""
	if l.StatedEnding.IsZero() {
		return
	}
	delta := l.StatedEnding.Sub(t.CalculatedEnding)
	if delta.Abs().GreaterThan(l.Tolerance) {
		l.Mismatch = &Mismatch{Calculated: t.CalculatedEnding, Stated: l.StatedEnding, Delta: delta}
		if !l.WarningDismissed {
			l.Warning = "Calculated ending balance " + FormatAmount(t.CalculatedEnding) +
				" does not match the statement ending balance " + FormatAmount(l.StatedEnding) +
				" (difference " + FormatAmount(delta.Abs()) + ")"
		}
	}
}
