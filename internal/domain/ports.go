package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Clock abstracts time.Now so tests can pin "today". Grounded on the design
// note that the ambient "current application" is replaced by an explicit
// context struct; Clock is one of its fields.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Store is the storage gateway: typed access to the relational store plus
// the transactional unit of work described in spec §4.1. Every write in a
// task or reconciler goes through one Tx, committed once per logical record.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// WithRetry runs fn inside a fresh transaction, retrying on serialization
	// conflicts (optimistic concurrency) up to a bounded number of attempts.
	WithRetry(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work: every repository bound to the same underlying
// database transaction, plus Commit/Rollback.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	PaymentAccounts() PaymentAccountRepository
	CfsAccounts() CfsAccountRepository
	Invoices() InvoiceRepository
	InvoiceReferences() InvoiceReferenceRepository
	Payments() PaymentRepository
	Receipts() ReceiptRepository
	Credits() CreditRepository
	RoutingSlips() RoutingSlipRepository
	EFT() EFTRepository
	Ejv() EjvRepository
	SettlementFiles() SettlementFileRepository
}

type PaymentAccountRepository interface {
	GetByID(ctx context.Context, id int32) (*PaymentAccount, error)
	// LockForUpdate selects the account row FOR UPDATE, serializing credit
	// rollups by account_id (spec §5).
	LockForUpdate(ctx context.Context, id int32) (*PaymentAccount, error)
	Update(ctx context.Context, a *PaymentAccount) error
	ListWithApprovedInvoices(ctx context.Context, method PaymentMethod) ([]*PaymentAccount, error)
}

type CfsAccountRepository interface {
	GetByID(ctx context.Context, id int32) (*CfsAccount, error)
	// Effective returns the effective row for (accountID, method), preferring
	// ACTIVE over FREEZE over most-recent, per spec §4.1.
	Effective(ctx context.Context, accountID int32, method PaymentMethod) (*CfsAccount, error)
	// GetByAccountNumber looks up the CfsAccount CAS settlement rows key off
	// (the "Customer Account" column, spec §4.4).
	GetByAccountNumber(ctx context.Context, cfsAccountNumber string) (*CfsAccount, error)
	Update(ctx context.Context, c *CfsAccount) error
}

type InvoiceRepository interface {
	GetByID(ctx context.Context, id int32) (*Invoice, error)
	// LockForUpdate serializes InvoiceReference status flips by invoice_id
	// via SELECT FOR UPDATE on the parent invoice (spec §5).
	LockForUpdate(ctx context.Context, id int32) (*Invoice, error)
	Update(ctx context.Context, inv *Invoice) error
	Create(ctx context.Context, inv *Invoice) (*Invoice, error)
	// ApprovedWithoutActiveReference lists an account's APPROVED invoices of
	// the given method that lack an ACTIVE InvoiceReference, oldest first.
	ApprovedWithoutActiveReference(ctx context.Context, accountID int32, method PaymentMethod) ([]*Invoice, error)
	ListByStatus(ctx context.Context, method PaymentMethod, status InvoiceStatus) ([]*Invoice, error)
}

type InvoiceReferenceRepository interface {
	GetByID(ctx context.Context, id int32) (*InvoiceReference, error)
	// Active returns the ACTIVE reference for invoiceID, if any.
	Active(ctx context.Context, invoiceID int32) (*InvoiceReference, error)
	// Completed returns COMPLETED references for invoiceID.
	Completed(ctx context.Context, invoiceID int32) ([]*InvoiceReference, error)
	// ByInvoiceNumber finds the reference carrying the given CFS invoice
	// number, preferring an ACTIVE row over a COMPLETED one, since CAS and
	// JV feedback rows only ever carry the CFS-side number (spec §4.4, §4.9).
	ByInvoiceNumber(ctx context.Context, invoiceNumber string) (*InvoiceReference, error)
	// ListActiveByInvoiceNumber returns every ACTIVE reference carrying the
	// given CFS invoice number. A rolled-up PAD/PADR/PAYR dispatch fans one
	// CFS invoice_number out across every invoice in the rollup (spec §5),
	// so a CAS settlement or NSF row targeting that number must settle or
	// revert all of them, not just one.
	ListActiveByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]*InvoiceReference, error)
	Create(ctx context.Context, r *InvoiceReference) (*InvoiceReference, error)
	Update(ctx context.Context, r *InvoiceReference) error
}

type PaymentRepository interface {
	GetByInvoiceNumber(ctx context.Context, invoiceNumber string, status PaymentStatus) (*Payment, error)
	GetByReceiptNumber(ctx context.Context, receiptNumber string) (*Payment, error)
	Create(ctx context.Context, p *Payment) (*Payment, error)
	Update(ctx context.Context, p *Payment) error
}

type ReceiptRepository interface {
	GetByInvoiceAndNumber(ctx context.Context, invoiceID int32, receiptNumber string) (*Receipt, error)
	Create(ctx context.Context, r *Receipt) (*Receipt, error)
	// Update persists an amount bump on re-delivery of a JV payment feedback
	// line carrying a receipt number already on file (spec §4.9).
	Update(ctx context.Context, r *Receipt) error
	Delete(ctx context.Context, id int32) error
	ListByInvoice(ctx context.Context, invoiceID int32) ([]*Receipt, error)
}

type CreditRepository interface {
	GetByCfsIdentifier(ctx context.Context, accountID int32, cfsIdentifier string) (*Credit, error)
	Create(ctx context.Context, c *Credit) (*Credit, error)
	Update(ctx context.Context, c *Credit) error
	ListOutstandingByAccount(ctx context.Context, accountID int32) ([]*Credit, error)
	CreateCfsCreditInvoice(ctx context.Context, row *CfsCreditInvoices) error
	HasCfsCreditInvoice(ctx context.Context, applicationID string) (bool, error)
}

type RoutingSlipRepository interface {
	GetByNumber(ctx context.Context, number string) (*RoutingSlip, error)
	Update(ctx context.Context, rs *RoutingSlip) error
}

// EFTRepository groups the short-name / credit / link tables.
type EFTRepository interface {
	GetShortNameByName(ctx context.Context, name string) (*EFTShortName, error)
	GetShortNameByID(ctx context.Context, id int32) (*EFTShortName, error)
	CreateShortName(ctx context.Context, s *EFTShortName) (*EFTShortName, error)
	UpdateShortName(ctx context.Context, s *EFTShortName) error

	GetCreditByTxn(ctx context.Context, fileID int32, shortNameID int32, transactionID string) (*EFTCredit, error)
	CreateCredit(ctx context.Context, c *EFTCredit) (*EFTCredit, error)
	UpdateCredit(ctx context.Context, c *EFTCredit) error
	// ListCreditsWithRemaining lists a short name's EFTCredit rows with
	// remaining_amount > 0, oldest first, the draw-down order spec §4.7's
	// apply-pending pass consumes them in.
	ListCreditsWithRemaining(ctx context.Context, shortNameID int32) ([]*EFTCredit, error)

	ListActiveLinksForShortName(ctx context.Context, shortNameID int32) ([]*EFTShortNameLink, error)

	ListPendingLinkRollups(ctx context.Context, status EFTCreditInvoiceLinkStatus) ([]*EFTLinkRollup, error)
	GetLink(ctx context.Context, id int32) (*EFTCreditInvoiceLink, error)
	CreateLink(ctx context.Context, l *EFTCreditInvoiceLink) (*EFTCreditInvoiceLink, error)
	UpdateLink(ctx context.Context, l *EFTCreditInvoiceLink) error
	// NextLinkGroupID allocates a fresh link_group_id shared by every
	// EFTCreditInvoiceLink row created for one apply-pending decision (spec
	// §4.7, §4.8).
	NextLinkGroupID(ctx context.Context) (int32, error)

	AddHistory(ctx context.Context, h *ShortNameHistoryEntry) error
	FinalizeHistoryForGroup(ctx context.Context, linkGroupID int32) error

	GetEftFile(ctx context.Context, fileName string) (*EftFile, error)
	CreateEftFile(ctx context.Context, f *EftFile) (*EftFile, error)
	UpdateEftFile(ctx context.Context, f *EftFile) error

	// GetRefundByID and UpdateRefund back the AP/EFT_REFUND JV feedback
	// sub-flow (spec §4.9): each IH line carries the EFTRefund's id and this
	// engine only ever reads/writes its status in response.
	GetRefundByID(ctx context.Context, id int32) (*EFTRefund, error)
	UpdateRefund(ctx context.Context, r *EFTRefund) error
}

type EjvRepository interface {
	GetFileByBatchNumber(ctx context.Context, batchNumber string) (*EjvFile, error)
	UpdateFile(ctx context.Context, f *EjvFile) error

	GetHeader(ctx context.Context, id int32) (*EjvHeader, error)
	UpdateHeader(ctx context.Context, h *EjvHeader) error

	GetLink(ctx context.Context, headerID, invoiceID int32) (*EjvLink, error)
	// GetLinkByFile looks up an EjvLink filed directly against an EjvFile
	// rather than a JH header, the shape AP/NON_GOV_DISBURSEMENT IH batches
	// use since they carry no journal header (spec §4.9).
	GetLinkByFile(ctx context.Context, ejvFileID, invoiceID int32) (*EjvLink, error)
	UpdateLink(ctx context.Context, l *EjvLink) error

	GetPartnerDisbursement(ctx context.Context, targetType PartnerDisbursementTargetType, targetID int32) (*PartnerDisbursement, error)
	UpdatePartnerDisbursement(ctx context.Context, p *PartnerDisbursement) error

	CreateGovernmentPayment(ctx context.Context, p *Payment) error
}

type SettlementFileRepository interface {
	GetCasSettlement(ctx context.Context, fileName string) (*CasSettlement, error)
	CreateCasSettlement(ctx context.Context, s *CasSettlement) (*CasSettlement, error)
	MarkCasProcessed(ctx context.Context, fileName string, when time.Time) error

	GetNSFByInvoiceNumber(ctx context.Context, invoiceNumber string) (*NonSufficientFunds, error)
	CreateNSF(ctx context.Context, n *NonSufficientFunds) error
}

// CFSOperations is the CFS client facade of spec §4.2. Every operation is
// idempotent when keyed by its caller-supplied transaction number.
type CFSOperations interface {
	CreateAccountInvoice(ctx context.Context, acct *CfsAccount, transactionNumber string, lines []LineItem) (DispatchOutcome, error)
	GetInvoice(ctx context.Context, acct *CfsAccount, invoiceNumber string) (*CFSInvoice, error)
	CreateReceipt(ctx context.Context, acct *CfsAccount, receiptNumber string, receiptDate time.Time, amount decimal.Decimal, method PaymentMethod) error
	ApplyReceipt(ctx context.Context, acct *CfsAccount, receiptNumber, invoiceNumber string) error
	UnapplyReceipt(ctx context.Context, acct *CfsAccount, receiptNumber, invoiceNumber string) error
	ReverseInvoice(ctx context.Context, acct *CfsAccount, invoiceNumber string) error
	AdjustInvoice(ctx context.Context, acct *CfsAccount, invoiceNumber string, amount decimal.Decimal, reason string) error
	CreateCreditMemo(ctx context.Context, acct *CfsAccount, amount decimal.Decimal) (string, error)
	GetCreditMemo(ctx context.Context, acct *CfsAccount, cmsNumber string) (*CFSCreditMemo, error)
	UpdateSiteReceiptMethod(ctx context.Context, acct *CfsAccount, method string) error
	AddNSFAdjustment(ctx context.Context, acct *CfsAccount, invoiceNumber string, fee decimal.Decimal) error
	GetOnAccountReceipt(ctx context.Context, acct *CfsAccount, receiptNumber string) (*CFSReceiptBalance, error)
}

// CFSInvoice is the subset of a CFS invoice record this engine reads.
type CFSInvoice struct {
	InvoiceNumber string
	Total         decimal.Decimal
	PbcRefNumber  string
}

// CFSCreditMemo is the subset of a CFS credit memo this engine reads.
type CFSCreditMemo struct {
	CmsNumber  string
	AmountDue  decimal.Decimal
	Found      bool
}

// CFSReceiptBalance is the subset of a CFS on-account receipt this engine reads.
type CFSReceiptBalance struct {
	ReceiptAmount decimal.Decimal
	AmountApplied decimal.Decimal
}

// ObjectStore fetches and puts settlement/feedback files by (location, filename).
type ObjectStore interface {
	Fetch(ctx context.Context, location, filename string) ([]byte, error)
	Put(ctx context.Context, location, filename string, data []byte) error
}

// EventPublisher is the message bus gateway: publish-only, typed events to
// named topics (spec §6).
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Event is one bus message. Field names follow the CloudEvents shape spec §6
// calls for.
type Event struct {
	SpecVersion string
	Type        string
	Source      string
	ID          string
	Time        time.Time
	Data        any
}
