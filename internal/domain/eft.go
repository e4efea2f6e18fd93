package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EFTShortName is the textual handle by which a bank deposit identifies its
// payer; it must be linked to a PaymentAccount to be applied to invoices.
type EFTShortName struct {
	ID            int32
	ShortName     string
	CreditBalance decimal.Decimal
}

// EFTShortNameLinkStatus is the lifecycle state of a short-name-to-account link.
type EFTShortNameLinkStatus string

const (
	ShortNameLinkPending  EFTShortNameLinkStatus = "PENDING"
	ShortNameLinkLinked   EFTShortNameLinkStatus = "LINKED"
	ShortNameLinkInactive EFTShortNameLinkStatus = "INACTIVE"
)

// EFTShortNameLink maps a short name to a PaymentAccount.
type EFTShortNameLink struct {
	ID         int32
	ShortNameID int32
	AccountID  int32
	Status     EFTShortNameLinkStatus
}

// EFTCredit is money deposited against a short name, not yet applied.
type EFTCredit struct {
	ID              int32
	ShortNameID     int32
	EftFileID       int32
	TransactionID   string
	Amount          decimal.Decimal
	RemainingAmount decimal.Decimal
}

// EFTCreditInvoiceLinkStatus is the lifecycle state of an EFTCreditInvoiceLink.
type EFTCreditInvoiceLinkStatus string

const (
	EFTLinkPending        EFTCreditInvoiceLinkStatus = "PENDING"
	EFTLinkCompleted      EFTCreditInvoiceLinkStatus = "COMPLETED"
	EFTLinkPendingRefund  EFTCreditInvoiceLinkStatus = "PENDING_REFUND"
	EFTLinkRefunded       EFTCreditInvoiceLinkStatus = "REFUNDED"
	EFTLinkCancelled      EFTCreditInvoiceLinkStatus = "CANCELLED"
)

// EFTCreditInvoiceLink is a pending/applied mapping from one or more
// EFTCredit rows to an Invoice.
type EFTCreditInvoiceLink struct {
	ID            int32
	EftCreditID   int32
	InvoiceID     int32
	Amount        decimal.Decimal
	StatusCode    EFTCreditInvoiceLinkStatus
	ReceiptNumber *string
	LinkGroupID   int32
}

// EFTLinkRollup is the result of grouping PENDING links by
// (invoice_id, status, receipt_number) as spec §4.8 requires before applying
// a single CFS receipt for the group.
type EFTLinkRollup struct {
	LinkGroupID   int32
	InvoiceID     int32
	ReceiptNumber *string
	Amount        decimal.Decimal
	LinkIDs       []int32
}

// ShortNameHistoryEntry is an audit trail row for an EFTShortName.
type ShortNameHistoryEntry struct {
	ID            int32
	ShortNameID   int32
	Description   string
	CreditBalance decimal.Decimal
	LinkGroupID   *int32
	Hidden        bool
	IsProcessing  bool
}

// EftFileStatus is the lifecycle state of an ingested TDI17 file.
type EftFileStatus string

const (
	EftFileInProgress EftFileStatus = "IN_PROGRESS"
	EftFileCompleted  EftFileStatus = "COMPLETED"
	EftFileFailed     EftFileStatus = "FAILED"
)

// EftFile records one TDI17 ingestion for idempotency (spec §4.7, §5).
type EftFile struct {
	ID         int32
	FileName   string
	Status     EftFileStatus
	ProcessedOn *time.Time
}

// CasSettlement records one CAS CSV ingestion for idempotency (spec §4.4, §5).
type CasSettlement struct {
	ID          int32
	FileName    string
	ProcessedOn *time.Time
}

// NonSufficientFunds is an NSF audit row keyed by the original invoice_number.
type NonSufficientFunds struct {
	ID            int32
	InvoiceID     int32
	InvoiceNumber string
}

// EFTRefund is a short-name credit refund routed back out to the payer
// through CAS as an AP/EFT_REFUND journal voucher (spec §4.9 AP sub-flow).
type EFTRefund struct {
	ID                 int32
	ShortNameID         int32
	Amount              decimal.Decimal
	Status              DisbursementStatus
	DisbursementDate    *time.Time
}
