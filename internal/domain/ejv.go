package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EjvFileType selects which sub-flow an AP (IH) header drives (spec §4.9).
type EjvFileType string

const (
	EjvFilePayment           EjvFileType = "PAYMENT"
	EjvFileDisbursement      EjvFileType = "DISBURSEMENT"
	EjvFileRefund            EjvFileType = "REFUND"
	EjvFileEFTRefund         EjvFileType = "EFT_REFUND"
	EjvFileNonGovDisbursement EjvFileType = "NON_GOV_DISBURSEMENT"
)

// EjvFile is one journal-voucher batch file, government-side.
type EjvFile struct {
	ID                   int32
	FileType             EjvFileType
	FeedbackFileRef      *string
	DisbursementStatus   DisbursementStatus
}

// EjvHeaderStatus mirrors the BH/JH return-code-driven status.
type EjvHeaderStatus string

const (
	EjvHeaderUploaded   EjvHeaderStatus = "UPLOADED"
	EjvHeaderCompleted  EjvHeaderStatus = "COMPLETED"
	EjvHeaderErrored    EjvHeaderStatus = "ERRORED"
)

// EjvHeader is one journal header (JH) within an EjvFile.
type EjvHeader struct {
	ID         int32
	EjvFileID  int32
	BatchNumber string
	Status     EjvHeaderStatus
	ReceiptNumber string
	Amount     decimal.Decimal
}

// EjvLinkType distinguishes a full-invoice disbursement link from a
// partial-refund link.
type EjvLinkType string

const (
	EjvLinkInvoice        EjvLinkType = "INVOICE"
	EjvLinkPartialRefund  EjvLinkType = "PARTIAL_REFUND"
)

// EjvLink ties an EjvHeader to an invoice or partial refund target. AP (IH)
// batches carry no JH journal header, so NON_GOV_DISBURSEMENT links are
// filed against the EjvFile directly; EjvFileID is set in that case and
// HeaderID is zero (spec §4.9 AP sub-flow).
type EjvLink struct {
	ID          int32
	HeaderID    int32
	EjvFileID   *int32
	InvoiceID   int32
	LinkType    EjvLinkType
	TargetID    *int32 // partner_disbursement_id when LinkType == PartialRefund
	Status      DisbursementStatus
}

// PartnerDisbursementTargetType is the kind of entity a PartnerDisbursement
// targets.
type PartnerDisbursementTargetType string

const (
	PartnerDisbursementInvoice       PartnerDisbursementTargetType = "INVOICE"
	PartnerDisbursementPartialRefund PartnerDisbursementTargetType = "PARTIAL_REFUND"
)

// PartnerDisbursement is pending money-movement from the receiving ministry
// to the partner ministry.
type PartnerDisbursement struct {
	ID          int32
	TargetID    int32
	TargetType  PartnerDisbursementTargetType
	StatusCode  DisbursementStatus
	IsReversal  bool
	Amount      decimal.Decimal
	ProcessedOn *time.Time
}
