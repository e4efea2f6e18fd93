// Package testutil provides in-memory fakes for every domain port, following
// the teacher's testutil/mocks.go shape (map-backed fakes keyed by id, a
// NextID counter, and Add* helpers for test setup) generalized from account/
// workspace/transaction repositories to this engine's billing and CFS
// reconciliation entities.
package testutil

import (
	"context"
	"sync"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// FakeStore is an in-memory domain.Store. Unlike a real Postgres-backed
// Store it does not isolate concurrent transactions from each other: Begin
// returns a Tx view over the same shared maps, and Commit/Rollback are
// no-ops, matching the teacher's mocks (which likewise mutate shared state
// directly rather than simulating MVCC snapshots).
type FakeStore struct {
	mu sync.Mutex

	PaymentAccounts map[int32]*domain.PaymentAccount
	CfsAccounts     map[int32]*domain.CfsAccount
	Invoices        map[int32]*domain.Invoice
	InvoiceRefs     map[int32]*domain.InvoiceReference
	Payments        map[int32]*domain.Payment
	Receipts        map[int32]*domain.Receipt
	Credits         map[int32]*domain.Credit
	CreditInvoices  []*domain.CfsCreditInvoices
	RoutingSlips    map[int32]*domain.RoutingSlip

	ShortNames      map[int32]*domain.EFTShortName
	ShortNameLinks  map[int32]*domain.EFTShortNameLink
	EFTCredits      map[int32]*domain.EFTCredit
	EFTLinks        map[int32]*domain.EFTCreditInvoiceLink
	EFTHistory      []*domain.ShortNameHistoryEntry
	EFTFiles        map[int32]*domain.EftFile
	EFTRefunds      map[int32]*domain.EFTRefund
	nextLinkGroupID int32

	EjvFiles             map[int32]*domain.EjvFile
	EjvHeaders           map[int32]*domain.EjvHeader
	EjvLinks             map[int32]*domain.EjvLink
	PartnerDisbursements map[int32]*domain.PartnerDisbursement

	CasSettlements map[string]*domain.CasSettlement
	NSFRecords     map[string]*domain.NonSufficientFunds

	NextID int32

	// WithRetryErr, when set, is returned by WithRetry instead of running fn,
	// for tests exercising the storage-retry-exhausted path.
	WithRetryErr error
}

// NewFakeStore builds an empty FakeStore with every map initialized.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		PaymentAccounts:      make(map[int32]*domain.PaymentAccount),
		CfsAccounts:          make(map[int32]*domain.CfsAccount),
		Invoices:             make(map[int32]*domain.Invoice),
		InvoiceRefs:          make(map[int32]*domain.InvoiceReference),
		Payments:             make(map[int32]*domain.Payment),
		Receipts:             make(map[int32]*domain.Receipt),
		Credits:              make(map[int32]*domain.Credit),
		RoutingSlips:         make(map[int32]*domain.RoutingSlip),
		ShortNames:           make(map[int32]*domain.EFTShortName),
		ShortNameLinks:       make(map[int32]*domain.EFTShortNameLink),
		EFTCredits:           make(map[int32]*domain.EFTCredit),
		EFTLinks:             make(map[int32]*domain.EFTCreditInvoiceLink),
		EFTFiles:             make(map[int32]*domain.EftFile),
		EFTRefunds:           make(map[int32]*domain.EFTRefund),
		EjvFiles:             make(map[int32]*domain.EjvFile),
		EjvHeaders:           make(map[int32]*domain.EjvHeader),
		EjvLinks:             make(map[int32]*domain.EjvLink),
		PartnerDisbursements: make(map[int32]*domain.PartnerDisbursement),
		CasSettlements:       make(map[string]*domain.CasSettlement),
		NSFRecords:           make(map[string]*domain.NonSufficientFunds),
		NextID:               1,
	}
}

func (s *FakeStore) nextID() int32 {
	id := s.NextID
	s.NextID++
	return id
}

// Begin returns a Tx bound to this store's shared maps.
func (s *FakeStore) Begin(ctx context.Context) (domain.Tx, error) {
	return &fakeTx{store: s}, nil
}

// WithRetry runs fn once against a fresh Tx; there is no serialization
// conflict to retry against in an in-memory fake.
func (s *FakeStore) WithRetry(ctx context.Context, fn func(tx domain.Tx) error) error {
	if s.WithRetryErr != nil {
		return s.WithRetryErr
	}
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type fakeTx struct {
	store *FakeStore
}

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

func (t *fakeTx) PaymentAccounts() domain.PaymentAccountRepository {
	return &fakePaymentAccountRepo{s: t.store}
}
func (t *fakeTx) CfsAccounts() domain.CfsAccountRepository { return &fakeCfsAccountRepo{s: t.store} }
func (t *fakeTx) Invoices() domain.InvoiceRepository       { return &fakeInvoiceRepo{s: t.store} }
func (t *fakeTx) InvoiceReferences() domain.InvoiceReferenceRepository {
	return &fakeInvoiceReferenceRepo{s: t.store}
}
func (t *fakeTx) Payments() domain.PaymentRepository { return &fakePaymentRepo{s: t.store} }
func (t *fakeTx) Receipts() domain.ReceiptRepository { return &fakeReceiptRepo{s: t.store} }
func (t *fakeTx) Credits() domain.CreditRepository   { return &fakeCreditRepo{s: t.store} }
func (t *fakeTx) RoutingSlips() domain.RoutingSlipRepository {
	return &fakeRoutingSlipRepo{s: t.store}
}
func (t *fakeTx) EFT() domain.EFTRepository { return &fakeEFTRepo{s: t.store} }
func (t *fakeTx) Ejv() domain.EjvRepository { return &fakeEjvRepo{s: t.store} }
func (t *fakeTx) SettlementFiles() domain.SettlementFileRepository {
	return &fakeSettlementFileRepo{s: t.store}
}
