package task

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/config"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
	"github.com/bcgov/sbc-pay-sub002/internal/testutil"
	"github.com/bcgov/sbc-pay-sub002/internal/util"
)

func setupDispatchContext() (*appctx.TaskContext, *testutil.FakeStore, *testutil.FakeCFS, *testutil.FakePublisher) {
	store := testutil.NewFakeStore()
	cfs := testutil.NewFakeCFS()
	pub := testutil.NewFakePublisher()
	clock := testutil.NewFixedClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC))

	tc := appctx.New(zerolog.Nop(), &config.Config{}, clock, cfs, pub, testutil.NewFakeObjectStore(), store)
	return tc, store, cfs, pub
}

func TestRunPADPipeline_DispatchesApprovedRollup(t *testing.T) {
	tc, store, _, pub := setupDispatchContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	cfsAcct := store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodPAD,
		Status:        domain.CfsAccountActive,
	})
	inv1 := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(10),
		CreatedOn:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	inv2 := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(15),
		CreatedOn:         time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})

	require.NoError(t, runPADPipeline(context.Background(), tc, zerolog.Nop()))

	got1 := store.Invoices[inv1.ID]
	got2 := store.Invoices[inv2.ID]
	assert.Equal(t, domain.InvoiceApproved, got1.InvoiceStatusCode)
	assert.Equal(t, domain.InvoiceApproved, got2.InvoiceStatusCode)
	require.NotNil(t, got1.CfsAccountID)
	assert.Equal(t, cfsAcct.ID, *got1.CfsAccountID)

	var refs []*domain.InvoiceReference
	for _, r := range store.InvoiceRefs {
		refs = append(refs, r)
	}
	require.Len(t, refs, 2)
	for _, r := range refs {
		assert.Equal(t, domain.InvoiceReferenceActive, r.StatusCode)
	}
	assert.Equal(t, 1, pub.Len())
	assert.Equal(t, "invoice.pad_created", pub.Events[0].Topic)
}

func TestRunPADPipeline_SkipsFrozenCfsAccount(t *testing.T) {
	tc, store, _, pub := setupDispatchContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodPAD,
		Status:        domain.CfsAccountFreeze,
	})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(10),
	})

	require.NoError(t, runPADPipeline(context.Background(), tc, zerolog.Nop()))

	assert.Equal(t, domain.InvoiceApproved, store.Invoices[inv.ID].InvoiceStatusCode)
	assert.Nil(t, store.Invoices[inv.ID].CfsAccountID)
	assert.Equal(t, 0, pub.Len())
}

func TestDispatchEFTInvoice_SkipsWhenAlreadyReferenced(t *testing.T) {
	tc, store, cfs, _ := setupDispatchContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodEFT})
	store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodEFT,
		Status:        domain.CfsAccountActive,
	})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodEFT,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(20),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv.ID,
		InvoiceNumber: "REGTXN-EXISTING",
		StatusCode:    domain.InvoiceReferenceActive,
	})

	calls := 0
	cfs.CreateAccountInvoiceFn = func(ctx context.Context, acct *domain.CfsAccount, txn string, lines []domain.LineItem) (domain.DispatchOutcome, error) {
		calls++
		return domain.DispatchOutcome{}, nil
	}

	require.NoError(t, dispatchEFTInvoice(context.Background(), tc, zerolog.Nop(), inv))
	assert.Equal(t, 0, calls, "CFS must not be called when an ACTIVE reference already exists")
}

func TestProbeAndAdopt_AdoptsOnMatchingTotal(t *testing.T) {
	tc, store, cfs, _ := setupDispatchContext()
	origSleep := probeSleep
	probeSleep = func(time.Duration) {}
	t.Cleanup(func() { probeSleep = origSleep })

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	cfsAcct := store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodPAD,
		Status:        domain.CfsAccountActive,
	})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(42),
	})

	cfs.CreateAccountInvoiceFn = func(ctx context.Context, acct *domain.CfsAccount, txn string, lines []domain.LineItem) (domain.DispatchOutcome, error) {
		return domain.DispatchOutcome{}, assertErr
	}
	// probeAndAdopt re-derives the transaction number and GETs by it, so seed
	// the invoice the fake CFS would actually be probed for.
	cfs.AddInvoice(&domain.CFSInvoice{InvoiceNumber: "CFS-ADOPTED", Total: decimal.NewFromInt(42), PbcRefNumber: "REF1"})
	probedTxn := util.DeriveTransactionNumber(inv.ID)
	cfs.Invoices[probedTxn] = cfs.Invoices["CFS-ADOPTED"]

	require.NoError(t, runPADPipeline(context.Background(), tc, zerolog.Nop()))

	got := store.Invoices[inv.ID]
	assert.Equal(t, domain.InvoiceApproved, got.InvoiceStatusCode)
	require.NotNil(t, got.CfsAccountID)
	assert.Equal(t, cfsAcct.ID, *got.CfsAccountID)

	var ref *domain.InvoiceReference
	for _, r := range store.InvoiceRefs {
		ref = r
	}
	require.NotNil(t, ref)
	assert.Equal(t, "CFS-ADOPTED", ref.InvoiceNumber)
}

var assertErr = &dispatchTestError{"cfs unavailable"}

type dispatchTestError struct{ msg string }

func (e *dispatchTestError) Error() string { return e.msg }
