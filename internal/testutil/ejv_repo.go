package testutil

import (
	"context"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type fakeEjvRepo struct{ s *FakeStore }

func (r *fakeEjvRepo) GetFileByBatchNumber(ctx context.Context, batchNumber string) (*domain.EjvFile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, h := range r.s.EjvHeaders {
		if h.BatchNumber == batchNumber {
			f, ok := r.s.EjvFiles[h.EjvFileID]
			if !ok {
				return nil, domain.ErrNotFound
			}
			cp := *f
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEjvRepo) UpdateFile(ctx context.Context, f *domain.EjvFile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EjvFiles[f.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *f
	r.s.EjvFiles[f.ID] = &cp
	return nil
}

func (r *fakeEjvRepo) GetHeader(ctx context.Context, id int32) (*domain.EjvHeader, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.EjvHeaders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (r *fakeEjvRepo) UpdateHeader(ctx context.Context, h *domain.EjvHeader) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EjvHeaders[h.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *h
	r.s.EjvHeaders[h.ID] = &cp
	return nil
}

func (r *fakeEjvRepo) GetLink(ctx context.Context, headerID, invoiceID int32) (*domain.EjvLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.EjvLinks {
		if l.HeaderID == headerID && l.InvoiceID == invoiceID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEjvRepo) GetLinkByFile(ctx context.Context, ejvFileID, invoiceID int32) (*domain.EjvLink, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.EjvLinks {
		if l.EjvFileID != nil && *l.EjvFileID == ejvFileID && l.InvoiceID == invoiceID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEjvRepo) UpdateLink(ctx context.Context, l *domain.EjvLink) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.EjvLinks[l.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *l
	r.s.EjvLinks[l.ID] = &cp
	return nil
}

func (r *fakeEjvRepo) GetPartnerDisbursement(ctx context.Context, targetType domain.PartnerDisbursementTargetType, targetID int32) (*domain.PartnerDisbursement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.PartnerDisbursements {
		if p.TargetType == targetType && p.TargetID == targetID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeEjvRepo) UpdatePartnerDisbursement(ctx context.Context, p *domain.PartnerDisbursement) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.PartnerDisbursements[p.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	r.s.PartnerDisbursements[p.ID] = &cp
	return nil
}

func (r *fakeEjvRepo) CreateGovernmentPayment(ctx context.Context, p *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.s.nextID()
	}
	cp := *p
	r.s.Payments[p.ID] = &cp
	return nil
}
