package ledger

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
)

const fragmentSchemaURL = "statement_fragment.json"

// fragmentSchema is deliberately loose: models write amounts as numbers or
// strings and leave fields null. It rejects the shapes no repair can use.
const fragmentSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "account_info": {"type": ["object", "null"]},
    "opening_balance": {"type": ["number", "string", "null"]},
    "ending_balance": {"type": ["number", "string", "null"]},
    "transactions": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "properties": {
          "transaction_code": {"type": ["string", "number", "null"]},
          "date": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]},
          "debit": {"type": ["number", "string", "null"]},
          "credit": {"type": ["number", "string", "null"]},
          "fee": {"type": ["number", "string", "null"]},
          "vat": {"type": ["number", "string", "null"]}
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledFragmentSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(fragmentSchemaURL, strings.NewReader(fragmentSchema)); err != nil {
			schemaErr = fmt.Errorf("add fragment schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(fragmentSchemaURL)
	})
	return schema, schemaErr
}

// FragmentFromObject validates a repaired model object and converts it to a
// Fragment for the given chunk. Statement Debit/Credit columns are mapped
// through FromStatementColumns here.
func FragmentFromObject(obj map[string]any, chunk int) (*Fragment, error) {
	sch, err := compiledFragmentSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(obj); err != nil {
		return nil, &ShapeError{Err: err}
	}

	frag := &Fragment{Chunk: chunk}

	if info, ok := obj["account_info"].(map[string]any); ok {
		frag.Account = AccountInfo{
			AccountName:   stringField(info, "account_name", "account_holder"),
			AccountNumber: stringField(info, "account_number", "account_no"),
			BankName:      stringField(info, "bank_name", "bank"),
			Branch:        stringField(info, "branch"),
			Currency:      stringField(info, "currency"),
			Period:        stringField(info, "period", "statement_period"),
		}
	}

	if frag.OpeningBalance, err = ParseAmount(obj["opening_balance"]); err != nil {
		return nil, &ShapeError{Err: fmt.Errorf("opening_balance: %w", err)}
	}
	if frag.EndingBalance, err = ParseAmount(obj["ending_balance"]); err != nil {
		return nil, &ShapeError{Err: fmt.Errorf("ending_balance: %w", err)}
	}

	rows, _ := obj["transactions"].([]any)
	for i, item := range rows {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		tx, err := transactionFromRow(row, chunk)
		if err != nil {
			return nil, &ShapeError{Err: fmt.Errorf("transaction %d: %w", i+1, err)}
		}
		frag.Transactions = append(frag.Transactions, tx)
	}
	return frag, nil
}

func transactionFromRow(row map[string]any, chunk int) (Transaction, error) {
	var amounts [4]decimal.Decimal
	for i, key := range []string{"debit", "credit", "fee", "vat"} {
		d, err := ParseAmount(row[key])
		if err != nil {
			return Transaction{}, fmt.Errorf("%s: %w", key, err)
		}
		amounts[i] = d
	}
	debit, credit := FromStatementColumns(amounts[0], amounts[1])
	return Transaction{
		Chunk:       chunk,
		Code:        stringField(row, "transaction_code", "code", "reference"),
		Date:        stringField(row, "date"),
		Description: stringField(row, "description"),
		Debit:       debit,
		Credit:      credit,
		Fee:         amounts[2].Abs(),
		VAT:         amounts[3].Abs(),
	}, nil
}

// stringField returns the first non-empty value among keys, formatting
// numbers (a transaction code printed as digits) as text.
func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case nil:
		default:
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
