package domain

import "github.com/shopspring/decimal"

// RoutingSlipStatus is the lifecycle state of a RoutingSlip.
type RoutingSlipStatus string

const (
	RoutingSlipActive               RoutingSlipStatus = "ACTIVE"
	RoutingSlipLinked               RoutingSlipStatus = "LINKED"
	RoutingSlipNSF                  RoutingSlipStatus = "NSF"
	RoutingSlipComplete             RoutingSlipStatus = "COMPLETE"
	RoutingSlipVoid                 RoutingSlipStatus = "VOID"
	RoutingSlipCorrection           RoutingSlipStatus = "CORRECTION"
	RoutingSlipRefundRequested      RoutingSlipStatus = "REFUND_REQUESTED"
	RoutingSlipRefundAuthorized     RoutingSlipStatus = "REFUND_AUTHORIZED"
	RoutingSlipRefundProcessed      RoutingSlipStatus = "REFUND_PROCESSED"
	RoutingSlipRefundRejected       RoutingSlipStatus = "REFUND_REJECTED"
	RoutingSlipWriteOffAuthorized   RoutingSlipStatus = "WRITE_OFF_AUTHORIZED"
	RoutingSlipWriteOffCompleted    RoutingSlipStatus = "WRITE_OFF_COMPLETED"
)

// RoutingSlip is a cash/cheque receipt bundle handled in person.
type RoutingSlip struct {
	ID              int32
	Number          string
	Total           decimal.Decimal
	RemainingAmount decimal.Decimal
	Status          RoutingSlipStatus
	ParentNumber    *string
	PaymentAccountID int32
	HasTransactions bool
}

// ReceiptNumberForApply returns the receipt number to present to CFS's
// apply_receipt call: a linked child applies under its parent's number with
// an "L" suffix; an unlinked slip applies its own bare number (spec §4.5).
func (r *RoutingSlip) ReceiptNumberForApply() string {
	if r.ParentNumber != nil {
		return *r.ParentNumber + "L"
	}
	return r.Number
}

// LinkTo transfers r's remaining balance to parent and marks r LINKED.
// Preconditions: r must be ACTIVE, have no transactions, and not be NSF;
// parent must not itself be a linked child.
func (r *RoutingSlip) LinkTo(parent *RoutingSlip) error {
	if r.Status != RoutingSlipActive {
		return ErrRoutingSlipNSF
	}
	if r.HasTransactions {
		return ErrRoutingSlipHasTxns
	}
	if parent.ParentNumber != nil {
		return ErrRoutingSlipAlreadyLinked
	}
	parent.RemainingAmount = parent.RemainingAmount.Add(r.RemainingAmount)
	r.RemainingAmount = decimal.Zero
	r.Status = RoutingSlipLinked
	r.ParentNumber = &parent.Number
	return nil
}
