package domain

import "github.com/shopspring/decimal"

// Credit is outstanding unapplied money held against a PaymentAccount,
// discovered from a CFS on-account receipt or credit memo.
type Credit struct {
	ID              int32
	AccountID       int32
	CfsIdentifier   string
	IsCreditMemo    bool
	Amount          decimal.Decimal
	RemainingAmount decimal.Decimal
	CfsSite         string
}

// ApplyCFSBalance sets the remaining amount as discovered from CFS during the
// sync-credits pass (spec §4.4 third pass). Enforces 0 <= remaining <= amount.
func (c *Credit) ApplyCFSBalance(remaining decimal.Decimal) error {
	if remaining.LessThan(decimal.Zero) {
		remaining = decimal.Zero
	}
	if remaining.GreaterThan(c.Amount) {
		return ErrCreditAmountExceeded
	}
	c.RemainingAmount = remaining
	return nil
}

// CfsCreditInvoices is an audit row capturing one CFS application of a
// credit memo to a CFS invoice.
type CfsCreditInvoices struct {
	ID            int32
	CreditID      int32
	InvoiceID     int32
	ApplicationID string
	AmountApplied decimal.Decimal
}
