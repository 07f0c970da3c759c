package storage

import (
	"testing"

	"github.com/bosocmputer/statement_ledger/internal/ledger"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
)

func TestDecimalCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	in := ledger.Transaction{
		Chunk:       2,
		Date:        "05/01/2024",
		Description: "Transfer",
		Debit:       decimal.RequireFromString("1234567.89"),
		Credit:      decimal.Zero,
	}

	raw, err := bson.MarshalWithRegistry(reg, in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got := bson.Raw(raw).Lookup("debit").StringValue(); got != "1234567.89" {
		t.Errorf("debit stored as %q, want exact string", got)
	}

	var out ledger.Transaction
	if err := bson.UnmarshalWithRegistry(reg, raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.Debit.Equal(in.Debit) || !out.Credit.IsZero() || out.Description != "Transfer" {
		t.Errorf("round trip = %+v", out)
	}
}

func TestDecimalCodecAcceptsNumbers(t *testing.T) {
	reg := NewRegistry()
	raw, err := bson.Marshal(bson.M{"debit": 12.5, "credit": int32(7), "fee": int64(3), "vat": nil})
	if err != nil {
		t.Fatal(err)
	}
	var out ledger.Transaction
	if err := bson.UnmarshalWithRegistry(reg, raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Debit.String() != "12.5" || out.Credit.String() != "7" || out.Fee.String() != "3" || !out.VAT.IsZero() {
		t.Errorf("decoded %s %s %s %s", out.Debit, out.Credit, out.Fee, out.VAT)
	}

	bad, _ := bson.Marshal(bson.M{"debit": "twelve"})
	if err := bson.UnmarshalWithRegistry(reg, bad, &out); err == nil {
		t.Error("non-numeric string should fail")
	}
}
