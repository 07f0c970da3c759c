package ledger

import "github.com/shopspring/decimal"

// FromStatementColumns maps the amounts printed in a bank statement's Debit
// (withdrawal) and Credit (deposit) columns onto the ledger. The bank's
// debit is money leaving the account, which the ledger records as credit,
// and the bank's credit is recorded as ledger debit. Amounts are made
// non-negative. This is the only place the inversion happens.
func FromStatementColumns(statementDebit, statementCredit decimal.Decimal) (debit, credit decimal.Decimal) {
	return statementCredit.Abs(), statementDebit.Abs()
}

// ToStatementColumns is the inverse of FromStatementColumns.
func ToStatementColumns(debit, credit decimal.Decimal) (statementDebit, statementCredit decimal.Decimal) {
	return credit, debit
}
