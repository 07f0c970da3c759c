// prompt_amount_rules.go - Amount recording rules
package ai

import "github.com/bosocmputer/statement_ledger/internal/ledger"

// GetAmountRecordingRules returns strict rules for transcribing amounts. The
// fee/VAT paragraph follows the configured amount convention so the prompt
// and the reconciliation formula always agree.
func GetAmountRecordingRules(convention ledger.AmountConvention) string {
	return `
⚡ AMOUNT RECORDING RULES

🚨 ABSOLUTE RULE - USE ONLY VISIBLE NUMBERS:
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
❌ NEVER CALCULATE a running balance, a total or a missing amount
❌ NEVER MOVE an amount between columns
❌ NEVER SWAP Debit and Credit, even if the labels look "backwards" to you

✅ Transcribe each amount AS PRINTED in the column it is printed in:
  → Statement column "Debit" / "Withdrawal" / "Rút" / "Nợ"   → field "debit"
  → Statement column "Credit" / "Deposit" / "Gửi" / "Có"     → field "credit"
  → If a line shows "1,250,000.00" in the Withdrawal column → "debit": 1250000, "credit": 0
  → If a single signed Amount column is used: negative → "debit" (drop the sign), positive → "credit"

❌ The running "Balance" column is NOT a transaction amount. Never put it in debit or credit.
` + feeVATRules(convention)
}

func feeVATRules(convention ledger.AmountConvention) string {
	if convention == ledger.ConventionNet {
		return `
💰 FEES AND VAT (NET):
- "debit" / "credit" hold the transaction amount WITHOUT fees and VAT
- Report the fee and the VAT of a line in "fee" and "vat"
- A fee or VAT printed as its own statement line goes in "fee" / "vat" of that line with debit and credit 0
`
	}
	return `
💰 FEES AND VAT (GROSS):
- "debit" / "credit" hold the full amount that moved, fees and VAT INCLUDED
- "fee" and "vat" are informational only: copy them if the line prints them, otherwise 0
- A fee or VAT printed as its own statement line is a normal transaction: put its amount in debit or credit
`
}
