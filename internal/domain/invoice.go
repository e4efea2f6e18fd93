package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is the lifecycle state of an Invoice.
type InvoiceStatus string

const (
	InvoiceCreated             InvoiceStatus = "CREATED"
	InvoiceApproved            InvoiceStatus = "APPROVED"
	InvoiceSettlementScheduled InvoiceStatus = "SETTLEMENT_SCHEDULED"
	InvoicePartial             InvoiceStatus = "PARTIAL"
	InvoicePaid                InvoiceStatus = "PAID"
	InvoiceOverdue             InvoiceStatus = "OVERDUE"
	InvoiceRefundRequested     InvoiceStatus = "REFUND_REQUESTED"
	InvoiceRefunded            InvoiceStatus = "REFUNDED"
	InvoiceCancelled           InvoiceStatus = "CANCELLED"
	InvoiceCredited            InvoiceStatus = "CREDITED"
	InvoicePartiallyRefunded   InvoiceStatus = "PARTIALLY_REFUNDED"
	InvoicePartiallyCredited   InvoiceStatus = "PARTIALLY_CREDITED"
	InvoiceChargeback          InvoiceStatus = "CHARGEBACK"
)

// DisbursementStatus tracks the upload -> ack -> feedback lifecycle of a JV
// disbursement for an Invoice. The zero value (empty string) means "not yet
// part of a disbursement batch".
type DisbursementStatus string

const (
	DisbursementNone         DisbursementStatus = ""
	DisbursementWaitingJob   DisbursementStatus = "WAITING_FOR_JOB"
	DisbursementUploaded     DisbursementStatus = "UPLOADED"
	DisbursementAcknowledged DisbursementStatus = "ACKNOWLEDGED"
	DisbursementCompleted    DisbursementStatus = "COMPLETED"
	DisbursementReversed     DisbursementStatus = "REVERSED"
	DisbursementErrored      DisbursementStatus = "ERRORED"
)

// Invoice is a billable unit in internal currency, two-decimal precision.
type Invoice struct {
	ID                   int32
	PaymentAccountID     int32
	CfsAccountID         *int32
	Total                decimal.Decimal
	Paid                 decimal.Decimal
	Refund               decimal.Decimal
	ServiceFees          decimal.Decimal
	CorpTypeCode         string
	BusinessIdentifier   string
	PaymentMethodCode    PaymentMethod
	InvoiceStatusCode    InvoiceStatus
	DisbursementStatus   DisbursementStatus
	DisbursementReversal *time.Time
	PaymentDate          *time.Time
	RefundDate           *time.Time
	DisbursementDate     *time.Time
	RoutingSlipNumber    *string
	Details              json.RawMessage
	CreatedOn            time.Time
}

// checkAmountInvariants enforces the §3 invariants: 0 <= paid <= total and
// refund <= paid + total.
func (inv *Invoice) checkAmountInvariants() error {
	if inv.Paid.LessThan(decimal.Zero) || inv.Paid.GreaterThan(inv.Total) {
		return ErrInvalidInvoiceTransition
	}
	if inv.Refund.GreaterThan(inv.Paid.Add(inv.Total)) {
		return ErrInvalidInvoiceTransition
	}
	return nil
}

// MarkApprovedWithReference stamps the CfsAccount used to dispatch a PAD/EFT
// invoice. Invoice status stays APPROVED; the caller creates the ACTIVE
// InvoiceReference separately.
func (inv *Invoice) MarkApprovedWithReference(cfsAccountID int32) error {
	if inv.InvoiceStatusCode != InvoiceApproved {
		return ErrInvalidInvoiceTransition
	}
	inv.CfsAccountID = &cfsAccountID
	return nil
}

// MarkSettlementScheduled transitions an Online Banking invoice from CREATED.
func (inv *Invoice) MarkSettlementScheduled(cfsAccountID int32) error {
	if inv.InvoiceStatusCode != InvoiceCreated {
		return ErrInvalidInvoiceTransition
	}
	inv.CfsAccountID = &cfsAccountID
	inv.InvoiceStatusCode = InvoiceSettlementScheduled
	return nil
}

// MarkPaid transitions to PAID, recording the paid amount and payment date.
// Valid from APPROVED, SETTLEMENT_SCHEDULED, or PARTIAL.
func (inv *Invoice) MarkPaid(paid decimal.Decimal, paymentDate time.Time) error {
	switch inv.InvoiceStatusCode {
	case InvoiceApproved, InvoiceSettlementScheduled, InvoicePartial:
	default:
		return ErrInvalidInvoiceTransition
	}
	inv.Paid = paid
	inv.PaymentDate = &paymentDate
	inv.InvoiceStatusCode = InvoicePaid
	return inv.checkAmountInvariants()
}

// MarkPartial records a partial payment: paid = total - outstanding.
func (inv *Invoice) MarkPartial(outstanding decimal.Decimal) error {
	switch inv.InvoiceStatusCode {
	case InvoiceApproved, InvoiceSettlementScheduled, InvoicePartial:
	default:
		return ErrInvalidInvoiceTransition
	}
	inv.Paid = inv.Total.Sub(outstanding)
	inv.InvoiceStatusCode = InvoicePartial
	return inv.checkAmountInvariants()
}

// MarkRefunded transitions an INTERNAL invoice out of REFUND_REQUESTED.
func (inv *Invoice) MarkRefunded(refundDate time.Time) error {
	if inv.InvoiceStatusCode != InvoiceRefundRequested {
		return ErrInvalidInvoiceTransition
	}
	inv.RefundDate = &refundDate
	inv.InvoiceStatusCode = InvoiceRefunded
	return nil
}

// RevertToSettlementScheduled is used by the NSF flow to undo a PAID mark
// after CFS reports the original settlement failed.
func (inv *Invoice) RevertToSettlementScheduled() error {
	if inv.InvoiceStatusCode != InvoicePaid {
		return ErrInvalidInvoiceTransition
	}
	inv.Paid = decimal.Zero
	inv.PaymentDate = nil
	inv.InvoiceStatusCode = InvoiceSettlementScheduled
	return nil
}

// LineItem is a component of an invoice, used when building CFS invoice
// payloads and when synthesizing the NSF fee invoice.
type LineItem struct {
	Description string
	FilingType  string
	Total       decimal.Decimal
}
