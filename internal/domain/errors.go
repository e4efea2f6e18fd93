package domain

import "errors"

// Domain errors
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrInternalError = errors.New("internal error")

	ErrPaymentAccountNotFound = errors.New("payment account not found")
	ErrCfsAccountNotFound     = errors.New("cfs account not found")
	ErrCfsAccountFrozen       = errors.New("cfs account is frozen")
	ErrNoEffectiveCfsAccount  = errors.New("no effective cfs account for payment method")

	ErrInvoiceNotFound          = errors.New("invoice not found")
	ErrInvoiceReferenceNotFound = errors.New("active invoice reference not found")
	ErrInvalidInvoiceTransition = errors.New("invalid invoice state transition")
	ErrInvoiceAmountMismatch    = errors.New("invoice amount does not match rollup amount")

	ErrPaymentNotFound = errors.New("payment not found")
	ErrReceiptNotFound = errors.New("receipt not found")

	ErrCreditNotFound       = errors.New("credit not found")
	ErrUnknownCreditSite    = errors.New("credit cfs_site matches no known payment method")
	ErrCreditAmountExceeded = errors.New("credit remaining_amount exceeds amount")

	ErrRoutingSlipNotFound      = errors.New("routing slip not found")
	ErrRoutingSlipAlreadyLinked = errors.New("routing slip already linked")
	ErrRoutingSlipHasTxns       = errors.New("routing slip has transactions and cannot be linked")
	ErrRoutingSlipNSF           = errors.New("routing slip is in NSF status")

	ErrShortNameNotFound     = errors.New("eft short name not found")
	ErrShortNameLinkNotFound = errors.New("eft short name link not found")
	ErrEFTCreditNotFound     = errors.New("eft credit not found")
	ErrEFTLinkNotFound       = errors.New("eft credit invoice link not found")

	ErrEjvFileNotFound   = errors.New("ejv file not found")
	ErrEjvHeaderNotFound = errors.New("ejv header not found")
	ErrEjvLinkNotFound   = errors.New("ejv link not found")

	ErrFileAlreadyProcessed = errors.New("settlement file already processed")
	ErrDuplicateNSFEvent    = errors.New("nsf already applied for this invoice number")
)
