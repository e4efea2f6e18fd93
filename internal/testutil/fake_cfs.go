package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// FakeCFS is an in-memory domain.CFSOperations, grounded on the teacher's
// MockXRepository style: map storage plus optional *Fn hooks so a test can
// override one call's behaviour (e.g. to force a CFS error) without
// reimplementing the whole interface.
type FakeCFS struct {
	mu sync.Mutex

	Invoices     map[string]*domain.CFSInvoice
	CreditMemos  map[string]*domain.CFSCreditMemo
	OnAccount    map[string]*domain.CFSReceiptBalance
	AppliedPairs map[string]bool // receiptNumber+"|"+invoiceNumber
	nextCmsID    int

	CreateAccountInvoiceFn func(ctx context.Context, acct *domain.CfsAccount, txnNumber string, lines []domain.LineItem) (domain.DispatchOutcome, error)
	CreateReceiptFn        func(ctx context.Context, acct *domain.CfsAccount, receiptNumber string, receiptDate time.Time, amount decimal.Decimal, method domain.PaymentMethod) error
	ApplyReceiptFn         func(ctx context.Context, acct *domain.CfsAccount, receiptNumber, invoiceNumber string) error
}

// NewFakeCFS builds an empty FakeCFS.
func NewFakeCFS() *FakeCFS {
	return &FakeCFS{
		Invoices:     make(map[string]*domain.CFSInvoice),
		CreditMemos:  make(map[string]*domain.CFSCreditMemo),
		OnAccount:    make(map[string]*domain.CFSReceiptBalance),
		AppliedPairs: make(map[string]bool),
	}
}

// AddInvoice seeds a CFS invoice record for GetInvoice to return.
func (f *FakeCFS) AddInvoice(inv *domain.CFSInvoice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Invoices[inv.InvoiceNumber] = inv
}

func (f *FakeCFS) CreateAccountInvoice(ctx context.Context, acct *domain.CfsAccount, transactionNumber string, lines []domain.LineItem) (domain.DispatchOutcome, error) {
	if f.CreateAccountInvoiceFn != nil {
		return f.CreateAccountInvoiceFn(ctx, acct, transactionNumber, lines)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var total decimal.Decimal
	for _, l := range lines {
		total = total.Add(l.Total)
	}
	invoiceNumber := "REG" + transactionNumber
	cfsInv := &domain.CFSInvoice{InvoiceNumber: invoiceNumber, Total: total}
	f.Invoices[invoiceNumber] = cfsInv
	return domain.DispatchOutcome{Kind: domain.DispatchCreated, CfsInvoice: cfsInv}, nil
}

func (f *FakeCFS) GetInvoice(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string) (*domain.CFSInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.Invoices[invoiceNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (f *FakeCFS) CreateReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber string, receiptDate time.Time, amount decimal.Decimal, method domain.PaymentMethod) error {
	if f.CreateReceiptFn != nil {
		return f.CreateReceiptFn(ctx, acct, receiptNumber, receiptDate, amount, method)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OnAccount[receiptNumber] = &domain.CFSReceiptBalance{ReceiptAmount: amount}
	return nil
}

func (f *FakeCFS) ApplyReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber, invoiceNumber string) error {
	if f.ApplyReceiptFn != nil {
		return f.ApplyReceiptFn(ctx, acct, receiptNumber, invoiceNumber)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AppliedPairs[receiptNumber+"|"+invoiceNumber] = true
	if bal, ok := f.OnAccount[receiptNumber]; ok {
		if inv, ok := f.Invoices[invoiceNumber]; ok {
			applied := decimal.Min(bal.ReceiptAmount.Sub(bal.AmountApplied), inv.Total)
			bal.AmountApplied = bal.AmountApplied.Add(applied)
		}
	}
	return nil
}

func (f *FakeCFS) UnapplyReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber, invoiceNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.AppliedPairs, receiptNumber+"|"+invoiceNumber)
	return nil
}

func (f *FakeCFS) ReverseInvoice(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.Invoices, invoiceNumber)
	return nil
}

func (f *FakeCFS) AdjustInvoice(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string, amount decimal.Decimal, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.Invoices[invoiceNumber]
	if !ok {
		return domain.ErrNotFound
	}
	inv.Total = inv.Total.Add(amount)
	return nil
}

func (f *FakeCFS) CreateCreditMemo(ctx context.Context, acct *domain.CfsAccount, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCmsID++
	cms := fmt.Sprintf("CMS%06d", f.nextCmsID)
	f.CreditMemos[cms] = &domain.CFSCreditMemo{CmsNumber: cms, AmountDue: amount, Found: true}
	return cms, nil
}

func (f *FakeCFS) GetCreditMemo(ctx context.Context, acct *domain.CfsAccount, cmsNumber string) (*domain.CFSCreditMemo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cm, ok := f.CreditMemos[cmsNumber]
	if !ok {
		return &domain.CFSCreditMemo{CmsNumber: cmsNumber, Found: false}, nil
	}
	cp := *cm
	return &cp, nil
}

func (f *FakeCFS) UpdateSiteReceiptMethod(ctx context.Context, acct *domain.CfsAccount, method string) error {
	return nil
}

func (f *FakeCFS) AddNSFAdjustment(ctx context.Context, acct *domain.CfsAccount, invoiceNumber string, fee decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.Invoices[invoiceNumber]; ok {
		inv.Total = inv.Total.Add(fee)
	}
	return nil
}

func (f *FakeCFS) GetOnAccountReceipt(ctx context.Context, acct *domain.CfsAccount, receiptNumber string) (*domain.CFSReceiptBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bal, ok := f.OnAccount[receiptNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *bal
	return &cp, nil
}
