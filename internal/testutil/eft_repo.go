package testutil

import (
	"context"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type fakeEFTRepo struct{ s *FakeStore }

func (r *fakeEFTRepo) GetShortNameByName(ctx context.Context, name string) (*domain.EFTShortName, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, sn := range r.s.ShortNames {
		if sn.ShortName == name {
			cp := *sn
			return &cp, nil
		}
	}
	return nil, domain.ErrShortNameNotFound
}

func (r *fakeEFTRepo) GetShortNameByID(ctx context.Context, id int32) (*domain.EFTShortName, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sn, ok := r.s.ShortNames[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *sn
	return &cp, nil
}

func (r *fakeEFTRepo) CreateShortName(ctx context.Context, s *domain.EFTShortName) (*domain.EFTShortName, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if s.ID == 0 {
		s.ID = r.s.nextID()
	}
	cp := *s
	r.s.ShortNames[s.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeEFTRepo) UpdateShortName(ctx context.Context, s *domain.EFTShortName) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.ShortNames[s.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *s
	r.s.ShortNames[s.ID] = &cp
	return nil
}

func (r *fakeEFTRepo) GetCreditByTxn(ctx context.Context, fileID int32, shortNameID int32, transactionID string) (*domain.EFTCredit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.EFTCredits {
		if c.EftFileID == fileID && c.ShortNameID == shortNameID && c.TransactionID == transactionID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrEFTCreditNotFound
}

func (r *fakeEFTRepo) CreateCredit(ctx context.Context, c *domain.EFTCredit) (*domain.EFTCredit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.s.nextID()
	}
	cp := *c
	r.s.EFTCredits[c.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeEFTRepo) UpdateCredit(ctx context.Context, c *domain.EFTCredit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EFTCredits[c.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *c
	r.s.EFTCredits[c.ID] = &cp
	return nil
}

func (r *fakeEFTRepo) ListCreditsWithRemaining(ctx context.Context, shortNameID int32) ([]*domain.EFTCredit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.EFTCredit
	for _, c := range r.s.EFTCredits {
		if c.ShortNameID == shortNameID && c.RemainingAmount.IsPositive() {
			cp := *c
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

func (r *fakeEFTRepo) ListActiveLinksForShortName(ctx context.Context, shortNameID int32) ([]*domain.EFTShortNameLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*domain.EFTShortNameLink
	for _, l := range r.s.ShortNameLinks {
		if l.ShortNameID == shortNameID && l.Status == domain.ShortNameLinkLinked {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeEFTRepo) ListPendingLinkRollups(ctx context.Context, status domain.EFTCreditInvoiceLinkStatus) ([]*domain.EFTLinkRollup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	type key struct {
		invoiceID     int32
		receiptNumber string
	}
	groups := make(map[key]*domain.EFTLinkRollup)
	var order []key
	for _, l := range r.s.EFTLinks {
		if l.StatusCode != status {
			continue
		}
		rn := ""
		if l.ReceiptNumber != nil {
			rn = *l.ReceiptNumber
		}
		k := key{invoiceID: l.InvoiceID, receiptNumber: rn}
		g, ok := groups[k]
		if !ok {
			g = &domain.EFTLinkRollup{
				LinkGroupID:   l.LinkGroupID,
				InvoiceID:     l.InvoiceID,
				ReceiptNumber: l.ReceiptNumber,
			}
			groups[k] = g
			order = append(order, k)
		}
		g.Amount = g.Amount.Add(l.Amount)
		g.LinkIDs = append(g.LinkIDs, l.ID)
	}

	out := make([]*domain.EFTLinkRollup, 0, len(order))
	for _, k := range order {
		out = append(out, groups[k])
	}
	return out, nil
}

func (r *fakeEFTRepo) GetLink(ctx context.Context, id int32) (*domain.EFTCreditInvoiceLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.EFTLinks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeEFTRepo) CreateLink(ctx context.Context, l *domain.EFTCreditInvoiceLink) (*domain.EFTCreditInvoiceLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == 0 {
		l.ID = r.s.nextID()
	}
	cp := *l
	r.s.EFTLinks[l.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeEFTRepo) UpdateLink(ctx context.Context, l *domain.EFTCreditInvoiceLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EFTLinks[l.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *l
	r.s.EFTLinks[l.ID] = &cp
	return nil
}

func (r *fakeEFTRepo) NextLinkGroupID(ctx context.Context) (int32, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextLinkGroupID++
	return r.s.nextLinkGroupID, nil
}

func (r *fakeEFTRepo) AddHistory(ctx context.Context, h *domain.ShortNameHistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if h.ID == 0 {
		h.ID = r.s.nextID()
	}
	cp := *h
	r.s.EFTHistory = append(r.s.EFTHistory, &cp)
	return nil
}

func (r *fakeEFTRepo) FinalizeHistoryForGroup(ctx context.Context, linkGroupID int32) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, h := range r.s.EFTHistory {
		if h.LinkGroupID != nil && *h.LinkGroupID == linkGroupID {
			h.IsProcessing = false
		}
	}
	return nil
}

func (r *fakeEFTRepo) GetEftFile(ctx context.Context, fileName string) (*domain.EftFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, f := range r.s.EFTFiles {
		if f.FileName == fileName {
			cp := *f
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEFTRepo) CreateEftFile(ctx context.Context, f *domain.EftFile) (*domain.EftFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if f.ID == 0 {
		f.ID = r.s.nextID()
	}
	cp := *f
	r.s.EFTFiles[f.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeEFTRepo) UpdateEftFile(ctx context.Context, f *domain.EftFile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EFTFiles[f.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *f
	r.s.EFTFiles[f.ID] = &cp
	return nil
}

func (r *fakeEFTRepo) GetRefundByID(ctx context.Context, id int32) (*domain.EFTRefund, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rf, ok := r.s.EFTRefunds[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rf
	return &cp, nil
}

func (r *fakeEFTRepo) UpdateRefund(ctx context.Context, rf *domain.EFTRefund) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EFTRefunds[rf.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *rf
	r.s.EFTRefunds[rf.ID] = &cp
	return nil
}
