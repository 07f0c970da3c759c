// prompt_output_format.go - JSON output format for statement extraction
//
// The shape returned here is what ledger.FragmentFromObject validates.

package ai

// GetOutputFormatJSON returns the JSON shape the model must return for one
// chunk of a statement.
func GetOutputFormatJSON() string {
	return `🎨 OUTPUT FORMAT (JSON):

{
  "account_info": {
    "account_name": "[account holder name or null]",
    "account_number": "[account number as printed or null]",
    "bank_name": "[bank name or null]",
    "branch": "[branch or null]",
    "currency": "[ISO currency code if printed, else null]",
    "period": "[statement period as printed, else null]"
  },
  "opening_balance": "[opening / brought forward balance as a number, 0 if not visible in THIS part]",
  "ending_balance": "[closing balance as a number, 0 if not visible in THIS part]",
  "transactions": [
    {
      "transaction_code": "[reference / transaction code or null]",
      "date": "[DD/MM/YYYY]",
      "description": "[description exactly as printed]",
      "debit": "[amount in the statement's Debit / Withdrawal column, 0 if empty]",
      "credit": "[amount in the statement's Credit / Deposit column, 0 if empty]",
      "fee": "[fee charged on this line, 0 if none]",
      "vat": "[VAT charged on this line, 0 if none]"
    }
  ]
}

✅ VALIDATION RULES:
- Return ONE JSON object and nothing else: no markdown fences, no prose, no comments
- Amounts are plain numbers: no currency symbols, no thousands separators, never negative
- Dates are DD/MM/YYYY; if the year is Buddhist Era keep it as printed
- Keep transactions in the order they appear
- If this part has no transactions return "transactions": []`
}
