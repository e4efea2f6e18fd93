package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceReferenceStatus is the lifecycle state of an InvoiceReference.
type InvoiceReferenceStatus string

const (
	InvoiceReferenceActive    InvoiceReferenceStatus = "ACTIVE"
	InvoiceReferenceCompleted InvoiceReferenceStatus = "COMPLETED"
	InvoiceReferenceCancelled InvoiceReferenceStatus = "CANCELLED"
)

// InvoiceReference links an Invoice to a CFS invoice number. For a given
// invoice_id, at most one row is ACTIVE; COMPLETED rows are terminal but
// multiple may coexist after consolidation.
type InvoiceReference struct {
	ID             int32
	InvoiceID      int32
	InvoiceNumber  string
	ReferenceNum   string
	StatusCode     InvoiceReferenceStatus
}

// Complete transitions ACTIVE -> COMPLETED. Asserts the precondition;
// violations are integrity errors per the explicit-transition design note.
func (r *InvoiceReference) Complete() error {
	if r.StatusCode != InvoiceReferenceActive {
		return ErrInvalidInvoiceTransition
	}
	r.StatusCode = InvoiceReferenceCompleted
	return nil
}

// Cancel transitions ACTIVE or COMPLETED -> CANCELLED (routing-slip cancel
// path operates on a COMPLETED reference).
func (r *InvoiceReference) Cancel() error {
	if r.StatusCode == InvoiceReferenceCancelled {
		return ErrInvalidInvoiceTransition
	}
	r.StatusCode = InvoiceReferenceCancelled
	return nil
}

// Reactivate reverts a COMPLETED reference back to ACTIVE, as the NSF flow
// does when it rolls back a settled PAD invoice.
func (r *InvoiceReference) Reactivate() error {
	if r.StatusCode != InvoiceReferenceCompleted {
		return ErrInvalidInvoiceTransition
	}
	r.StatusCode = InvoiceReferenceActive
	return nil
}

// Payment is a financial event against a CFS invoice_number.
type PaymentStatus string

const (
	PaymentCreated   PaymentStatus = "CREATED"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

type PaymentSystem string

const (
	PaymentSystemPAYBC PaymentSystem = "PAYBC"
	PaymentSystemCFS   PaymentSystem = "CFS"
	PaymentSystemEFT   PaymentSystem = "EFT"
	PaymentSystemInternal PaymentSystem = "INTERNAL"
)

// Payment records one financial event (settlement, failure, or reversal)
// against a CFS invoice number.
type Payment struct {
	ID                int32
	PaymentAccountID  int32
	InvoiceNumber     string
	InvoiceAmount     decimal.Decimal
	PaidAmount        decimal.Decimal
	PaymentMethodCode PaymentMethod
	PaymentSystemCode PaymentSystem
	PaymentStatusCode PaymentStatus
	ReceiptNumber     *string
	PaymentDate       time.Time
	ConsInvoiceNumber *string
}

// Receipt is a proof-of-settlement fragment: one row per
// (invoice_id, receipt_number); on re-apply the amount accumulates.
type Receipt struct {
	ID            int32
	InvoiceID     int32
	ReceiptNumber string
	ReceiptAmount decimal.Decimal
	ReceiptDate   time.Time
}
