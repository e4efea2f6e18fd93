package testutil

import "github.com/bcgov/sbc-pay-sub002/internal/domain"

// The Add* helpers below seed a FakeStore directly, bypassing the
// domain.Tx/repository indirection, the way the teacher's
// testutil.MockXRepository.AddX helpers let a test set up fixture rows in one
// line. Each assigns an ID via nextID when the caller leaves it zero.

func (s *FakeStore) AddPaymentAccount(a *domain.PaymentAccount) *domain.PaymentAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.nextID()
	}
	s.PaymentAccounts[a.ID] = a
	return a
}

func (s *FakeStore) AddCfsAccount(c *domain.CfsAccount) *domain.CfsAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	s.CfsAccounts[c.ID] = c
	return c
}

func (s *FakeStore) AddInvoice(inv *domain.Invoice) *domain.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == 0 {
		inv.ID = s.nextID()
	}
	s.Invoices[inv.ID] = inv
	return inv
}

func (s *FakeStore) AddInvoiceReference(r *domain.InvoiceReference) *domain.InvoiceReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextID()
	}
	s.InvoiceRefs[r.ID] = r
	return r
}

func (s *FakeStore) AddPayment(p *domain.Payment) *domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	s.Payments[p.ID] = p
	return p
}

func (s *FakeStore) AddReceipt(r *domain.Receipt) *domain.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextID()
	}
	s.Receipts[r.ID] = r
	return r
}

func (s *FakeStore) AddCredit(c *domain.Credit) *domain.Credit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	s.Credits[c.ID] = c
	return c
}

func (s *FakeStore) AddRoutingSlip(rs *domain.RoutingSlip) *domain.RoutingSlip {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rs.ID == 0 {
		rs.ID = s.nextID()
	}
	s.RoutingSlips[rs.ID] = rs
	return rs
}

func (s *FakeStore) AddShortName(sn *domain.EFTShortName) *domain.EFTShortName {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sn.ID == 0 {
		sn.ID = s.nextID()
	}
	s.ShortNames[sn.ID] = sn
	return sn
}

func (s *FakeStore) AddShortNameLink(l *domain.EFTShortNameLink) *domain.EFTShortNameLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.nextID()
	}
	s.ShortNameLinks[l.ID] = l
	return l
}

func (s *FakeStore) AddEFTCredit(c *domain.EFTCredit) *domain.EFTCredit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.nextID()
	}
	s.EFTCredits[c.ID] = c
	return c
}

func (s *FakeStore) AddEFTLink(l *domain.EFTCreditInvoiceLink) *domain.EFTCreditInvoiceLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.nextID()
	}
	s.EFTLinks[l.ID] = l
	return l
}

func (s *FakeStore) AddEFTFile(f *domain.EftFile) *domain.EftFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		f.ID = s.nextID()
	}
	s.EFTFiles[f.ID] = f
	return f
}

func (s *FakeStore) AddEFTRefund(r *domain.EFTRefund) *domain.EFTRefund {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextID()
	}
	s.EFTRefunds[r.ID] = r
	return r
}

func (s *FakeStore) AddEjvFile(f *domain.EjvFile) *domain.EjvFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		f.ID = s.nextID()
	}
	s.EjvFiles[f.ID] = f
	return f
}

func (s *FakeStore) AddEjvHeader(h *domain.EjvHeader) *domain.EjvHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.ID == 0 {
		h.ID = s.nextID()
	}
	s.EjvHeaders[h.ID] = h
	return h
}

func (s *FakeStore) AddEjvLink(l *domain.EjvLink) *domain.EjvLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		l.ID = s.nextID()
	}
	s.EjvLinks[l.ID] = l
	return l
}

func (s *FakeStore) AddPartnerDisbursement(p *domain.PartnerDisbursement) *domain.PartnerDisbursement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.nextID()
	}
	s.PartnerDisbursements[p.ID] = p
	return p
}

func (s *FakeStore) AddCasSettlement(cs *domain.CasSettlement) *domain.CasSettlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.ID == 0 {
		cs.ID = s.nextID()
	}
	s.CasSettlements[cs.FileName] = cs
	return cs
}

func (s *FakeStore) AddNSF(n *domain.NonSufficientFunds) *domain.NonSufficientFunds {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == 0 {
		n.ID = s.nextID()
	}
	s.NSFRecords[n.InvoiceNumber] = n
	return n
}
