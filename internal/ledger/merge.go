package ledger

import (
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// descriptions that mark balance or summary lines rather than movements
var noisePhrases = []string{
	"opening balance",
	"beginning balance",
	"balance brought forward",
	"brought forward",
	"carried forward",
	"closing balance",
	"ending balance",
	"subtotal",
	"sub total",
	"sub-total",
	"grand total",
	"total debit",
	"total credit",
	"số dư đầu kỳ",
	"số dư cuối kỳ",
	"cộng phát sinh",
	"tổng cộng",
	"chuyển sang trang",
}

const fingerprintDescRunes = 24

// MergeOptions control reconciliation of a merge.
type MergeOptions struct {
	// OpeningOverride is the user-entered opening balance; empty means
	// take it from the fragments.
	OpeningOverride string
	Tolerance       decimal.Decimal
	Convention      AmountConvention
}

// IsNoise reports whether a transaction is a balance/summary line or carries
// no amount at all.
func IsNoise(tx Transaction) bool {
	desc := strings.ToLower(tx.Description)
	for _, p := range noisePhrases {
		if strings.Contains(desc, p) {
			return true
		}
	}
	return tx.Debit.IsZero() && tx.Credit.IsZero() && tx.Fee.IsZero() && tx.VAT.IsZero()
}

// Fingerprint identifies a transaction for deduplication across chunks:
// normalized date, debit, credit and code (or a description prefix when
// the statement prints no code).
func Fingerprint(tx Transaction) string {
	return NormalizeDate(tx.Date) + "|" + tx.Debit.StringFixed(2) + "|" + tx.Credit.StringFixed(2) + "|" + normalizedCode(tx)
}

func normalizedCode(tx Transaction) string {
	var b strings.Builder
	for _, r := range tx.Code {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() > 0 {
		return "code:" + b.String()
	}

	n := 0
	for _, r := range strings.ToLower(tx.Description) {
		if n == fingerprintDescRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			n++
		}
	}
	return "desc:" + b.String()
}

// Merge combines chunk fragments into one ledger. Fragments must be in
// chunk order; the caller passes only completed chunks selected for merge.
func Merge(fragments []Fragment, opts MergeOptions) (*Ledger, error) {
	if len(fragments) == 0 {
		return nil, ErrNothingToMerge
	}

	l := &Ledger{
		Convention: opts.Convention,
		Tolerance:  opts.Tolerance,
	}
	if l.Convention == "" {
		l.Convention = ConventionGross
	}

	seen := make(map[string]bool)
	for _, frag := range fragments {
		if l.Account.IsEmpty() && !frag.Account.IsEmpty() {
			l.Account = frag.Account
		}
		if l.OpeningBalance.IsZero() && !frag.OpeningBalance.IsZero() {
			l.OpeningBalance = frag.OpeningBalance
		}
		if !frag.EndingBalance.IsZero() {
			l.StatedEnding = frag.EndingBalance
		}

		for _, tx := range frag.Transactions {
			if IsNoise(tx) {
				l.NoiseRemoved++
				continue
			}
			fp := Fingerprint(tx)
			if seen[fp] {
				l.DuplicatesFound++
				continue
			}
			seen[fp] = true
			l.Transactions = append(l.Transactions, tx)
		}
	}

	if strings.TrimSpace(opts.OpeningOverride) != "" {
		opening, err := ParseUserAmount(opts.OpeningOverride)
		if err != nil {
			return nil, err
		}
		l.OpeningBalance = opening
		l.OpeningFromUser = true
	}

	SortByDate(l.Transactions)
	l.Recalculate()
	return l, nil
}

// SortByDate orders rows by parsed date, oldest first. Rows whose date
// cannot be parsed sort first; ties keep their original order.
func SortByDate(txs []Transaction) {
	keys := make([]time.Time, len(txs))
	for i, tx := range txs {
		keys[i], _ = ParseDate(tx.Date)
	}
	idx := make([]int, len(txs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return keys[idx[a]].Before(keys[idx[b]])
	})
	sorted := make([]Transaction, len(txs))
	for i, j := range idx {
		sorted[i] = txs[j]
	}
	copy(txs, sorted)
}
