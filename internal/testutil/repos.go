package testutil

import (
	"context"
	"time"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// --- PaymentAccountRepository ---

type fakePaymentAccountRepo struct{ s *FakeStore }

func (r *fakePaymentAccountRepo) GetByID(ctx context.Context, id int32) (*domain.PaymentAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.PaymentAccounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakePaymentAccountRepo) LockForUpdate(ctx context.Context, id int32) (*domain.PaymentAccount, error) {
	return r.GetByID(ctx, id)
}

func (r *fakePaymentAccountRepo) Update(ctx context.Context, a *domain.PaymentAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.PaymentAccounts[a.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *a
	r.s.PaymentAccounts[a.ID] = &cp
	return nil
}

func (r *fakePaymentAccountRepo) ListWithApprovedInvoices(ctx context.Context, method domain.PaymentMethod) ([]*domain.PaymentAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[int32]bool)
	var out []*domain.PaymentAccount
	for _, inv := range r.s.Invoices {
		if inv.InvoiceStatusCode != domain.InvoiceApproved || inv.PaymentMethodCode != method {
			continue
		}
		if seen[inv.PaymentAccountID] {
			continue
		}
		acct, ok := r.s.PaymentAccounts[inv.PaymentAccountID]
		if !ok {
			continue
		}
		seen[inv.PaymentAccountID] = true
		cp := *acct
		out = append(out, &cp)
	}
	return out, nil
}

// --- CfsAccountRepository ---

type fakeCfsAccountRepo struct{ s *FakeStore }

func (r *fakeCfsAccountRepo) GetByID(ctx context.Context, id int32) (*domain.CfsAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.CfsAccounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCfsAccountRepo) Effective(ctx context.Context, accountID int32, method domain.PaymentMethod) (*domain.CfsAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var active, freeze *domain.CfsAccount
	for _, c := range r.s.CfsAccounts {
		if c.AccountID != accountID || c.PaymentMethod != method {
			continue
		}
		switch c.Status {
		case domain.CfsAccountActive:
			active = c
		case domain.CfsAccountFreeze:
			freeze = c
		}
	}
	if active != nil {
		cp := *active
		return &cp, nil
	}
	if freeze != nil {
		cp := *freeze
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeCfsAccountRepo) GetByAccountNumber(ctx context.Context, cfsAccountNumber string) (*domain.CfsAccount, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.CfsAccounts {
		if c.CfsAccountNum == cfsAccountNumber {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeCfsAccountRepo) Update(ctx context.Context, c *domain.CfsAccount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.CfsAccounts[c.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *c
	r.s.CfsAccounts[c.ID] = &cp
	return nil
}

// --- InvoiceRepository ---

type fakeInvoiceRepo struct{ s *FakeStore }

func (r *fakeInvoiceRepo) GetByID(ctx context.Context, id int32) (*domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.Invoices[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (r *fakeInvoiceRepo) LockForUpdate(ctx context.Context, id int32) (*domain.Invoice, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeInvoiceRepo) Update(ctx context.Context, inv *domain.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.Invoices[inv.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *inv
	r.s.Invoices[inv.ID] = &cp
	return nil
}

func (r *fakeInvoiceRepo) Create(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = r.s.nextID()
	}
	cp := *inv
	r.s.Invoices[inv.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeInvoiceRepo) ApprovedWithoutActiveReference(ctx context.Context, accountID int32, method domain.PaymentMethod) ([]*domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Invoice
	for _, inv := range r.s.Invoices {
		if inv.PaymentAccountID != accountID || inv.PaymentMethodCode != method || inv.InvoiceStatusCode != domain.InvoiceApproved {
			continue
		}
		hasActive := false
		for _, ref := range r.s.InvoiceRefs {
			if ref.InvoiceID == inv.ID && ref.StatusCode == domain.InvoiceReferenceActive {
				hasActive = true
				break
			}
		}
		if !hasActive {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sortInvoicesByCreatedOn(out)
	return out, nil
}

func (r *fakeInvoiceRepo) ListByStatus(ctx context.Context, method domain.PaymentMethod, status domain.InvoiceStatus) ([]*domain.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Invoice
	for _, inv := range r.s.Invoices {
		if inv.PaymentMethodCode == method && inv.InvoiceStatusCode == status {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sortInvoicesByCreatedOn(out)
	return out, nil
}

func sortInvoicesByCreatedOn(invs []*domain.Invoice) {
	for i := 1; i < len(invs); i++ {
		for j := i; j > 0 && invs[j].CreatedOn.Before(invs[j-1].CreatedOn); j-- {
			invs[j], invs[j-1] = invs[j-1], invs[j]
		}
	}
}

// --- InvoiceReferenceRepository ---

type fakeInvoiceReferenceRepo struct{ s *FakeStore }

func (r *fakeInvoiceReferenceRepo) GetByID(ctx context.Context, id int32) (*domain.InvoiceReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ref, ok := r.s.InvoiceRefs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *ref
	return &cp, nil
}

func (r *fakeInvoiceReferenceRepo) Active(ctx context.Context, invoiceID int32) (*domain.InvoiceReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ref := range r.s.InvoiceRefs {
		if ref.InvoiceID == invoiceID && ref.StatusCode == domain.InvoiceReferenceActive {
			cp := *ref
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeInvoiceReferenceRepo) Completed(ctx context.Context, invoiceID int32) ([]*domain.InvoiceReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.InvoiceReference
	for _, ref := range r.s.InvoiceRefs {
		if ref.InvoiceID == invoiceID && ref.StatusCode == domain.InvoiceReferenceCompleted {
			cp := *ref
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeInvoiceReferenceRepo) ByInvoiceNumber(ctx context.Context, invoiceNumber string) (*domain.InvoiceReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var completed *domain.InvoiceReference
	for _, ref := range r.s.InvoiceRefs {
		if ref.InvoiceNumber != invoiceNumber {
			continue
		}
		if ref.StatusCode == domain.InvoiceReferenceActive {
			cp := *ref
			return &cp, nil
		}
		if ref.StatusCode == domain.InvoiceReferenceCompleted {
			completed = ref
		}
	}
	if completed != nil {
		cp := *completed
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeInvoiceReferenceRepo) ListActiveByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]*domain.InvoiceReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.InvoiceReference
	for _, ref := range r.s.InvoiceRefs {
		if ref.InvoiceNumber == invoiceNumber && ref.StatusCode == domain.InvoiceReferenceActive {
			cp := *ref
			out = append(out, &cp)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (r *fakeInvoiceReferenceRepo) Create(ctx context.Context, ref *domain.InvoiceReference) (*domain.InvoiceReference, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if ref.ID == 0 {
		ref.ID = r.s.nextID()
	}
	cp := *ref
	r.s.InvoiceRefs[ref.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeInvoiceReferenceRepo) Update(ctx context.Context, ref *domain.InvoiceReference) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.InvoiceRefs[ref.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *ref
	r.s.InvoiceRefs[ref.ID] = &cp
	return nil
}

// --- PaymentRepository ---

type fakePaymentRepo struct{ s *FakeStore }

func (r *fakePaymentRepo) GetByInvoiceNumber(ctx context.Context, invoiceNumber string, status domain.PaymentStatus) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.Payments {
		if p.InvoiceNumber == invoiceNumber && p.PaymentStatusCode == status {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePaymentRepo) GetByReceiptNumber(ctx context.Context, receiptNumber string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.Payments {
		if p.ReceiptNumber != nil && *p.ReceiptNumber == receiptNumber {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakePaymentRepo) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.s.nextID()
	}
	cp := *p
	r.s.Payments[p.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakePaymentRepo) Update(ctx context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.Payments[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	r.s.Payments[p.ID] = &cp
	return nil
}

// --- ReceiptRepository ---

type fakeReceiptRepo struct{ s *FakeStore }

func (r *fakeReceiptRepo) GetByInvoiceAndNumber(ctx context.Context, invoiceID int32, receiptNumber string) (*domain.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.Receipts {
		if rec.InvoiceID == invoiceID && rec.ReceiptNumber == receiptNumber {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeReceiptRepo) Create(ctx context.Context, rec *domain.Receipt) (*domain.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = r.s.nextID()
	}
	cp := *rec
	r.s.Receipts[rec.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeReceiptRepo) Update(ctx context.Context, rec *domain.Receipt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.Receipts[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *rec
	r.s.Receipts[rec.ID] = &cp
	return nil
}

func (r *fakeReceiptRepo) Delete(ctx context.Context, id int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.Receipts, id)
	return nil
}

func (r *fakeReceiptRepo) ListByInvoice(ctx context.Context, invoiceID int32) ([]*domain.Receipt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Receipt
	for _, rec := range r.s.Receipts {
		if rec.InvoiceID == invoiceID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- CreditRepository ---

type fakeCreditRepo struct{ s *FakeStore }

func (r *fakeCreditRepo) GetByCfsIdentifier(ctx context.Context, accountID int32, cfsIdentifier string) (*domain.Credit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.Credits {
		if c.AccountID == accountID && c.CfsIdentifier == cfsIdentifier {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeCreditRepo) Create(ctx context.Context, c *domain.Credit) (*domain.Credit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.s.nextID()
	}
	cp := *c
	r.s.Credits[c.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeCreditRepo) Update(ctx context.Context, c *domain.Credit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.Credits[c.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *c
	r.s.Credits[c.ID] = &cp
	return nil
}

func (r *fakeCreditRepo) ListOutstandingByAccount(ctx context.Context, accountID int32) ([]*domain.Credit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.Credit
	for _, c := range r.s.Credits {
		if c.AccountID == accountID && c.RemainingAmount.IsPositive() {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeCreditRepo) CreateCfsCreditInvoice(ctx context.Context, row *domain.CfsCreditInvoices) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if row.ID == 0 {
		row.ID = r.s.nextID()
	}
	cp := *row
	r.s.CreditInvoices = append(r.s.CreditInvoices, &cp)
	return nil
}

func (r *fakeCreditRepo) HasCfsCreditInvoice(ctx context.Context, applicationID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range r.s.CreditInvoices {
		if row.ApplicationID == applicationID {
			return true, nil
		}
	}
	return false, nil
}

// --- RoutingSlipRepository ---

type fakeRoutingSlipRepo struct{ s *FakeStore }

func (r *fakeRoutingSlipRepo) GetByNumber(ctx context.Context, number string) (*domain.RoutingSlip, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rs := range r.s.RoutingSlips {
		if rs.Number == number {
			cp := *rs
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRoutingSlipRepo) Update(ctx context.Context, rs *domain.RoutingSlip) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.RoutingSlips[rs.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *rs
	r.s.RoutingSlips[rs.ID] = &cp
	return nil
}

// --- SettlementFileRepository ---

type fakeSettlementFileRepo struct{ s *FakeStore }

func (r *fakeSettlementFileRepo) GetCasSettlement(ctx context.Context, fileName string) (*domain.CasSettlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.CasSettlements[fileName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSettlementFileRepo) CreateCasSettlement(ctx context.Context, s *domain.CasSettlement) (*domain.CasSettlement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if s.ID == 0 {
		s.ID = r.s.nextID()
	}
	cp := *s
	r.s.CasSettlements[s.FileName] = &cp
	out := cp
	return &out, nil
}

func (r *fakeSettlementFileRepo) MarkCasProcessed(ctx context.Context, fileName string, when time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	s, ok := r.s.CasSettlements[fileName]
	if !ok {
		return domain.ErrNotFound
	}
	s.ProcessedOn = &when
	return nil
}

func (r *fakeSettlementFileRepo) GetNSFByInvoiceNumber(ctx context.Context, invoiceNumber string) (*domain.NonSufficientFunds, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.NSFRecords[invoiceNumber]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (r *fakeSettlementFileRepo) CreateNSF(ctx context.Context, n *domain.NonSufficientFunds) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if n.ID == 0 {
		n.ID = r.s.nextID()
	}
	cp := *n
	r.s.NSFRecords[n.InvoiceNumber] = &cp
	return nil
}
