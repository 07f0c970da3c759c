package ledger_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func opts() ledger.MergeOptions {
	return ledger.MergeOptions{Tolerance: d("1"), Convention: ledger.ConventionGross}
}

func balanceFragment(ending string) ledger.Fragment {
	return ledger.Fragment{
		Chunk:          1,
		OpeningBalance: d("1000000"),
		EndingBalance:  d(ending),
		Transactions: []ledger.Transaction{
			{Chunk: 1, Code: "FT1", Date: "03/01/2024", Description: "Salary", Debit: d("500000")},
			{Chunk: 1, Code: "FT2", Date: "04/01/2024", Description: "Rent", Credit: d("200000")},
		},
	}
}

func TestMergeBalanceWithinTolerance(t *testing.T) {
	l, err := ledger.Merge([]ledger.Fragment{balanceFragment("1300000")}, opts())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !l.Totals.CalculatedEnding.Equal(d("1300000")) {
		t.Errorf("calculated ending got=%s want=1300000", l.Totals.CalculatedEnding)
	}
	if l.Warning != "" || l.Mismatch != nil {
		t.Errorf("unexpected warning %q", l.Warning)
	}
}

func TestMergeBalanceMismatch(t *testing.T) {
	l, err := ledger.Merge([]ledger.Fragment{balanceFragment("1305000")}, opts())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if l.Mismatch == nil {
		t.Fatal("expected mismatch")
	}
	if !l.Mismatch.Delta.Equal(d("5000")) {
		t.Errorf("delta got=%s want=5000", l.Mismatch.Delta)
	}
	for _, want := range []string{"1,300,000", "1,305,000", "5,000"} {
		if !strings.Contains(l.Warning, want) {
			t.Errorf("warning %q does not mention %s", l.Warning, want)
		}
	}
}

func TestMergeToleranceBoundary(t *testing.T) {
	l, err := ledger.Merge([]ledger.Fragment{balanceFragment("1300001")}, opts())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if l.Mismatch != nil {
		t.Errorf("difference equal to tolerance must not warn, got %q", l.Warning)
	}
}

func TestMergeDuplicateFragmentsIdempotent(t *testing.T) {
	f := balanceFragment("1300000")
	once, err := ledger.Merge([]ledger.Fragment{f}, opts())
	if err != nil {
		t.Fatal(err)
	}
	twice, err := ledger.Merge([]ledger.Fragment{f, f}, opts())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(once.Transactions, twice.Transactions) {
		t.Errorf("transactions differ:\n once %+v\ntwice %+v", once.Transactions, twice.Transactions)
	}
	if !once.Totals.CalculatedEnding.Equal(twice.Totals.CalculatedEnding) {
		t.Errorf("totals differ: %s vs %s", once.Totals.CalculatedEnding, twice.Totals.CalculatedEnding)
	}
	if twice.DuplicatesFound != 2 {
		t.Errorf("duplicates got=%d want=2", twice.DuplicatesFound)
	}
}

func TestMergeOverlapAcrossChunks(t *testing.T) {
	first := ledger.Fragment{Chunk: 1, Transactions: []ledger.Transaction{
		{Chunk: 1, Date: "01/01/2024", Description: "Coffee shop", Credit: d("45000")},
		{Chunk: 1, Date: "02/01/2024", Description: "Transfer in", Debit: d("100000")},
	}}
	second := ledger.Fragment{Chunk: 2, Transactions: []ledger.Transaction{
		// overlap row printed again on the next page
		{Chunk: 2, Date: "2024-01-02", Description: "TRANSFER IN", Debit: d("100000.00")},
		{Chunk: 2, Date: "03/01/2024", Description: "Grocery", Credit: d("80000")},
	}}
	l, err := ledger.Merge([]ledger.Fragment{first, second}, opts())
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Transactions) != 3 {
		t.Fatalf("transactions got=%d want=3", len(l.Transactions))
	}
	if l.Transactions[1].Chunk != 1 {
		t.Errorf("first occurrence should win, got chunk %d", l.Transactions[1].Chunk)
	}
}

func TestMergeOrdering(t *testing.T) {
	frag := ledger.Fragment{Chunk: 1, Transactions: []ledger.Transaction{
		{Date: "05/01/2024", Description: "late", Debit: d("1")},
		{Date: "??", Description: "unknown date", Debit: d("2")},
		{Date: "01/01/2024", Description: "early a", Debit: d("3")},
		{Date: "2024-01-01", Description: "early b", Debit: d("4")},
	}}
	l, err := ledger.Merge([]ledger.Fragment{frag}, opts())
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, tx := range l.Transactions {
		got = append(got, tx.Description)
	}
	want := []string{"unknown date", "early a", "early b", "late"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("order got %v, want %v", got, want)
	}
}

func TestMergeFiltersNoise(t *testing.T) {
	frag := ledger.Fragment{Chunk: 1, Transactions: []ledger.Transaction{
		{Date: "01/01/2024", Description: "Opening balance", Debit: d("1000000")},
		{Date: "01/01/2024", Description: "Salary", Debit: d("5")},
		{Date: "31/01/2024", Description: "Subtotal", Debit: d("5")},
		{Date: "31/01/2024", Description: "Memo line"},
	}}
	l, err := ledger.Merge([]ledger.Fragment{frag}, opts())
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Transactions) != 1 || l.Transactions[0].Description != "Salary" {
		t.Errorf("transactions got %+v", l.Transactions)
	}
	if l.NoiseRemoved != 3 {
		t.Errorf("noise removed got=%d want=3", l.NoiseRemoved)
	}
}

func TestMergeBalancesAndAccount(t *testing.T) {
	frags := []ledger.Fragment{
		{Chunk: 1, OpeningBalance: d("0")},
		{Chunk: 2, Account: ledger.AccountInfo{BankName: "ACB"}, OpeningBalance: d("700"), EndingBalance: d("900")},
		{Chunk: 3, Account: ledger.AccountInfo{BankName: "Other"}, OpeningBalance: d("800"), EndingBalance: d("1000")},
		{Chunk: 4},
	}
	l, err := ledger.Merge(frags, opts())
	if err != nil {
		t.Fatal(err)
	}
	if l.Account.BankName != "ACB" {
		t.Errorf("account got %q, want first non-empty", l.Account.BankName)
	}
	if !l.OpeningBalance.Equal(d("700")) {
		t.Errorf("opening got=%s want=700", l.OpeningBalance)
	}
	if !l.StatedEnding.Equal(d("1000")) {
		t.Errorf("ending got=%s want=1000", l.StatedEnding)
	}
}

func TestMergeOpeningOverride(t *testing.T) {
	o := opts()
	o.OpeningOverride = "1,005,000"
	l, err := ledger.Merge([]ledger.Fragment{balanceFragment("1305000")}, o)
	if err != nil {
		t.Fatal(err)
	}
	if !l.OpeningFromUser || !l.OpeningBalance.Equal(d("1005000")) {
		t.Errorf("opening got=%s fromUser=%v", l.OpeningBalance, l.OpeningFromUser)
	}
	if l.Mismatch != nil {
		t.Errorf("override should reconcile, got %q", l.Warning)
	}

	o.OpeningOverride = "one million"
	if _, err := ledger.Merge([]ledger.Fragment{balanceFragment("0")}, o); err == nil {
		t.Error("expected error for invalid override")
	}
}

func TestMergeNetConvention(t *testing.T) {
	frag := ledger.Fragment{Chunk: 1, OpeningBalance: d("1000"), EndingBalance: d("880"), Transactions: []ledger.Transaction{
		{Date: "01/01/2024", Description: "Transfer out", Credit: d("100"), Fee: d("10"), VAT: d("1")},
	}}
	gross, _ := ledger.Merge([]ledger.Fragment{frag}, opts())
	if !gross.Totals.CalculatedEnding.Equal(d("900")) {
		t.Errorf("gross ending got=%s want=900", gross.Totals.CalculatedEnding)
	}

	o := opts()
	o.Convention = ledger.ConventionNet
	net, _ := ledger.Merge([]ledger.Fragment{frag}, o)
	if !net.Totals.CalculatedEnding.Equal(d("889")) {
		t.Errorf("net ending got=%s want=889", net.Totals.CalculatedEnding)
	}
}

func TestMergeNothing(t *testing.T) {
	_, err := ledger.Merge(nil, opts())
	if !errors.Is(err, ledger.ErrNothingToMerge) {
		t.Errorf("err got %v, want ErrNothingToMerge", err)
	}
}
