package task

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

func TestRunEFTCreditLinkApply_CompletesPendingRollup(t *testing.T) {
	tc, store, cfs, pub := setupDispatchContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodEFT})
	store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodEFT,
		Status:        domain.CfsAccountActive,
	})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodEFT,
		InvoiceStatusCode: domain.InvoiceSettlementScheduled,
		Total:             decimal.NewFromInt(100),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv.ID,
		InvoiceNumber: "REGTXN1",
		StatusCode:    domain.InvoiceReferenceActive,
	})
	sn := store.AddShortName(&domain.EFTShortName{ShortName: "ABC123", CreditBalance: decimal.NewFromInt(100)})
	credit := store.AddEFTCredit(&domain.EFTCredit{ShortNameID: sn.ID, Amount: decimal.NewFromInt(100), RemainingAmount: decimal.NewFromInt(100)})
	store.AddEFTLink(&domain.EFTCreditInvoiceLink{
		EftCreditID: credit.ID,
		InvoiceID:   inv.ID,
		Amount:      decimal.NewFromInt(100),
		StatusCode:  domain.EFTLinkPending,
		LinkGroupID: 7,
	})

	require.NoError(t, RunEFTCreditLinkApply(context.Background(), tc))

	got := store.Invoices[inv.ID]
	assert.Equal(t, domain.InvoicePaid, got.InvoiceStatusCode)
	assert.True(t, got.Paid.Equal(decimal.NewFromInt(100)))

	var link *domain.EFTCreditInvoiceLink
	for _, l := range store.EFTLinks {
		link = l
	}
	require.NotNil(t, link)
	assert.Equal(t, domain.EFTLinkCompleted, link.StatusCode)
	require.NotNil(t, link.ReceiptNumber)
	assert.Equal(t, "EFTCIL7", *link.ReceiptNumber)

	assert.True(t, cfs.AppliedPairs["EFTCIL7|REGTXN1"])
	require.Len(t, pub.Events, 1)
	assert.Equal(t, "invoice.paid", pub.Events[0].Topic)
}

func TestRunEFTCreditLinkApply_RejectsAmountMismatch(t *testing.T) {
	tc, store, _, pub := setupDispatchContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodEFT})
	store.AddCfsAccount(&domain.CfsAccount{AccountID: acct.ID, PaymentMethod: domain.PaymentMethodEFT, Status: domain.CfsAccountActive})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodEFT,
		InvoiceStatusCode: domain.InvoiceSettlementScheduled,
		Total:             decimal.NewFromInt(100),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{InvoiceID: inv.ID, InvoiceNumber: "REGTXN2", StatusCode: domain.InvoiceReferenceActive})
	sn := store.AddShortName(&domain.EFTShortName{ShortName: "XYZ"})
	credit := store.AddEFTCredit(&domain.EFTCredit{ShortNameID: sn.ID, Amount: decimal.NewFromInt(40), RemainingAmount: decimal.NewFromInt(40)})
	store.AddEFTLink(&domain.EFTCreditInvoiceLink{
		EftCreditID: credit.ID,
		InvoiceID:   inv.ID,
		Amount:      decimal.NewFromInt(40), // less than the invoice total -> mismatch
		StatusCode:  domain.EFTLinkPending,
		LinkGroupID: 9,
	})

	require.NoError(t, RunEFTCreditLinkApply(context.Background(), tc))

	assert.Equal(t, domain.InvoiceSettlementScheduled, store.Invoices[inv.ID].InvoiceStatusCode, "mismatch must leave the invoice untouched")
	assert.Equal(t, 0, pub.Len())
}

func TestClearOverdueIfResolved_ClearsWhenNoneRemainOverdue(t *testing.T) {
	tc, store, _, pub := setupDispatchContext()

	now := time.Now()
	acct := store.AddPaymentAccount(&domain.PaymentAccount{
		PaymentMethod:     domain.PaymentMethodEFT,
		HasOverdueInvoice: &now,
	})

	clearOverdueIfResolved(context.Background(), tc, zerolog.Nop(), acct.ID)

	assert.Nil(t, store.PaymentAccounts[acct.ID].HasOverdueInvoice)
	require.Len(t, pub.Events, 1)
	assert.Equal(t, "account.unlocked", pub.Events[0].Topic)
}

func TestClearOverdueIfResolved_LeavesFlagWhenStillOverdue(t *testing.T) {
	tc, store, _, pub := setupDispatchContext()

	now := time.Now()
	acct := store.AddPaymentAccount(&domain.PaymentAccount{
		PaymentMethod:     domain.PaymentMethodEFT,
		HasOverdueInvoice: &now,
	})
	store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodEFT,
		InvoiceStatusCode: domain.InvoiceOverdue,
	})

	clearOverdueIfResolved(context.Background(), tc, zerolog.Nop(), acct.ID)

	assert.NotNil(t, store.PaymentAccounts[acct.ID].HasOverdueInvoice)
	assert.Equal(t, 0, pub.Len())
}
