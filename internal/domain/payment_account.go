package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod identifies one of the payment channels this engine dispatches
// invoices through or reconciles settlement for.
type PaymentMethod string

const (
	PaymentMethodPAD         PaymentMethod = "PAD"
	PaymentMethodEFT         PaymentMethod = "EFT"
	PaymentMethodOnlineBank  PaymentMethod = "ONLINE_BANKING"
	PaymentMethodRoutingSlip PaymentMethod = "INTERNAL"
	PaymentMethodCC          PaymentMethod = "CC"
)

// PaymentAccount is an internal payer, mirrored from the account-management
// API. This engine only mutates its credit rollups and NSF/overdue flags.
type PaymentAccount struct {
	ID                int32
	ExternalAuthID    string
	PaymentMethod     PaymentMethod
	PADCredit         decimal.Decimal
	OBCredit          decimal.Decimal
	EFTCredit         decimal.Decimal
	HasNSFInvoices    *time.Time
	HasOverdueInvoice *time.Time
	PADActivationDate *time.Time
	CreatedOn         time.Time
}

// IsFrozenForNSF reports whether the account currently carries an open NSF flag.
func (a *PaymentAccount) IsFrozenForNSF() bool {
	return a.HasNSFInvoices != nil
}

// CfsAccountStatus is the lifecycle state of a CfsAccount mapping.
type CfsAccountStatus string

const (
	CfsAccountPending  CfsAccountStatus = "PENDING"
	CfsAccountActive   CfsAccountStatus = "ACTIVE"
	CfsAccountInactive CfsAccountStatus = "INACTIVE"
	CfsAccountFreeze   CfsAccountStatus = "FREEZE"
)

// CfsAccount maps a PaymentAccount to one CFS customer site for one payment
// method. At most one row per (account, method) is "effective"
// (ACTIVE ∪ FREEZE) at any time; INACTIVE rows are historical.
type CfsAccount struct {
	ID            int32
	AccountID     int32
	CfsParty      string
	CfsAccountNum string
	CfsSite       string
	PaymentMethod PaymentMethod
	Status        CfsAccountStatus
}

// IsEffective reports whether this row is the live mapping for its
// (account, method) pair.
func (c *CfsAccount) IsEffective() bool {
	return c.Status == CfsAccountActive || c.Status == CfsAccountFreeze
}

// Freeze transitions an effective CfsAccount to FREEZE, as the NSF flow
// requires. Asserts the precondition per the explicit-transition-method
// design note; a violation is an integrity error.
func (c *CfsAccount) Freeze() error {
	if !c.IsEffective() {
		return ErrInvalidInvoiceTransition
	}
	c.Status = CfsAccountFreeze
	return nil
}
