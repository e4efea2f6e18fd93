// Package util holds small deterministic helpers shared across task and
// reconciler packages.
package util

import "strconv"

// txnNumberPrefix distinguishes a probe-derived transaction number from any
// other identifier CFS might echo back.
const txnNumberPrefix = "TXN"

// DeriveTransactionNumber computes the deterministic transaction number a
// dispatch retry probes CFS with, as a function of the newest invoice id in
// the batch (spec §4.3 step 5). It must match exactly what the original
// CreateAccountInvoice call would have sent, since CFS is keyed on it for
// idempotency.
func DeriveTransactionNumber(newestInvoiceID int32) string {
	return txnNumberPrefix + strconv.FormatInt(int64(newestInvoiceID), 10)
}
