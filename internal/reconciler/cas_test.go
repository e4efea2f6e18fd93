package reconciler

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/config"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
	"github.com/bcgov/sbc-pay-sub002/internal/parser"
	"github.com/bcgov/sbc-pay-sub002/internal/testutil"
)

func setupReconcilerContext() (*appctx.TaskContext, *testutil.FakeStore, *testutil.FakeCFS, *testutil.FakeObjectStore, *testutil.FakePublisher) {
	store := testutil.NewFakeStore()
	cfs := testutil.NewFakeCFS()
	objStore := testutil.NewFakeObjectStore()
	pub := testutil.NewFakePublisher()
	clock := testutil.NewFixedClock(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	tc := appctx.New(zerolog.Nop(), &config.Config{}, clock, cfs, pub, objStore, store)
	return tc, store, cfs, objStore, pub
}

func TestMarkReferencesPaid_MarksInvoiceAndCreatesReceipt(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodOnlineBank})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodOnlineBank,
		InvoiceStatusCode: domain.InvoiceSettlementScheduled,
		Total:             decimal.NewFromInt(50),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv.ID,
		InvoiceNumber: "REG0001",
		StatusCode:    domain.InvoiceReferenceActive,
	})

	row := casRow(t, map[string]string{
		parser.ColTargetTxnNumber: "REG0001",
		parser.ColSourceTxnNumber: "RCPT0001",
		parser.ColAppDate:         "01-Feb-26",
	})

	require.NoError(t, markReferencesPaid(context.Background(), tc, zerolog.Nop(), "REG0001", row))

	got := store.Invoices[inv.ID]
	assert.Equal(t, domain.InvoicePaid, got.InvoiceStatusCode)
	assert.True(t, got.Paid.Equal(decimal.NewFromInt(50)))

	var rcpt *domain.Receipt
	for _, r := range store.Receipts {
		rcpt = r
	}
	require.NotNil(t, rcpt)
	assert.Equal(t, "RCPT0001", rcpt.ReceiptNumber)

	require.Len(t, pub.Events, 1, "online banking invoices publish invoice.paid")
	assert.Equal(t, "invoice.paid", pub.Events[0].Topic)
}

func TestMarkReferencesPaid_ReDeliveryIsNoop(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoicePaid,
		Total:             decimal.NewFromInt(50),
		Paid:              decimal.NewFromInt(50),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv.ID,
		InvoiceNumber: "REG0002",
		StatusCode:    domain.InvoiceReferenceCompleted,
	})

	row := casRow(t, map[string]string{
		parser.ColTargetTxnNumber: "REG0002",
		parser.ColSourceTxnNumber: "RCPT0002",
		parser.ColAppDate:         "01-Feb-26",
	})

	require.NoError(t, markReferencesPaid(context.Background(), tc, zerolog.Nop(), "REG0002", row))

	assert.Equal(t, domain.InvoicePaid, store.Invoices[inv.ID].InvoiceStatusCode)
	assert.Empty(t, store.Receipts, "re-delivery of an already-PAID invoice must not create a duplicate receipt")
	assert.Equal(t, 0, pub.Len())
}

func TestRunNSFFlow_FreezesAccountAndCreatesFeeInvoice(t *testing.T) {
	tc, store, cfs, _, pub := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	cfsAcct := store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodPAD,
		Status:        domain.CfsAccountActive,
		CfsAccountNum: "CFSNUM1",
	})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		CfsAccountID:      &cfsAcct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoicePaid,
		Total:             decimal.NewFromInt(75),
		Paid:              decimal.NewFromInt(75),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv.ID,
		InvoiceNumber: "REG0003",
		StatusCode:    domain.InvoiceReferenceCompleted,
	})
	cfs.AddInvoice(&domain.CFSInvoice{InvoiceNumber: "REG0003", Total: decimal.NewFromInt(75)})

	row := casRow(t, map[string]string{
		parser.ColTargetTxnNumber: "REG0003",
		parser.ColSourceTxnNumber: "RCPT0003",
	})

	require.NoError(t, runNSFFlow(context.Background(), tc, zerolog.Nop(), "REG0003", row))

	assert.Equal(t, domain.CfsAccountFreeze, store.CfsAccounts[cfsAcct.ID].Status)
	assert.NotNil(t, store.PaymentAccounts[acct.ID].HasNSFInvoices)
	assert.Equal(t, domain.InvoiceSettlementScheduled, store.Invoices[inv.ID].InvoiceStatusCode)
	assert.True(t, store.Invoices[inv.ID].Paid.IsZero())

	var feeInvoice *domain.Invoice
	for id, i := range store.Invoices {
		if id != inv.ID {
			feeInvoice = i
		}
	}
	require.NotNil(t, feeInvoice, "an NSF fee invoice must be created")
	assert.True(t, feeInvoice.Total.Equal(decimal.NewFromInt(30)))

	found := false
	for _, topic := range []string{"account.nsf"} {
		for _, e := range pub.Events {
			if e.Topic == topic {
				found = true
			}
		}
	}
	assert.True(t, found, "an account.nsf event must be published")
}

// TestMarkReferencesPaid_RolledUpPADSettlesEveryInvoice covers spec §8
// scenario #1: a rolled-up PAD dispatch shares one CFS invoice_number across
// two internal invoices, so a single CAS settlement row against that number
// must mark both PAID with their own paid amounts, write a Receipt for each,
// and post one COMPLETED Payment summing the whole invoice_number.
func TestMarkReferencesPaid_RolledUpPADSettlesEveryInvoice(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	inv1 := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceSettlementScheduled,
		Total:             decimal.NewFromInt(100),
	})
	inv2 := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceSettlementScheduled,
		Total:             decimal.NewFromInt(25),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv1.ID,
		InvoiceNumber: "REG0100",
		ReferenceNum:  "REF100",
		StatusCode:    domain.InvoiceReferenceActive,
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv2.ID,
		InvoiceNumber: "REG0100",
		ReferenceNum:  "REF100",
		StatusCode:    domain.InvoiceReferenceActive,
	})

	row := casRow(t, map[string]string{
		parser.ColTargetTxnNumber: "REG0100",
		parser.ColSourceTxnNumber: "RCPT0100",
		parser.ColAppDate:         "01-Feb-26",
	})

	require.NoError(t, markReferencesPaid(context.Background(), tc, zerolog.Nop(), "REG0100", row))

	got1 := store.Invoices[inv1.ID]
	got2 := store.Invoices[inv2.ID]
	assert.Equal(t, domain.InvoicePaid, got1.InvoiceStatusCode)
	assert.Equal(t, domain.InvoicePaid, got2.InvoiceStatusCode)
	assert.True(t, got1.Paid.Equal(decimal.NewFromInt(100)))
	assert.True(t, got2.Paid.Equal(decimal.NewFromInt(25)))

	require.Len(t, store.Receipts, 2, "each rolled-up invoice must get its own receipt")
	for _, rcpt := range store.Receipts {
		assert.Equal(t, "RCPT0100", rcpt.ReceiptNumber)
	}

	require.Len(t, store.Payments, 1, "one Payment must be posted for the whole invoice_number")
	var payment *domain.Payment
	for _, p := range store.Payments {
		payment = p
	}
	assert.Equal(t, domain.PaymentCompleted, payment.PaymentStatusCode)
	assert.True(t, payment.PaidAmount.Equal(decimal.NewFromInt(125)), "paid_amount must sum both invoices")
	assert.Equal(t, "REG0100", payment.InvoiceNumber)
}

// TestRunNSFFlow_RolledUpPADRevertsEveryInvoice covers spec §8 scenario #2:
// an NSF row against a rolled-up invoice_number must revert every invoice it
// fans out to back to SETTLEMENT_SCHEDULED with its reference re-ACTIVE and
// its Receipt removed, while the account freeze, the $30 fee invoice, the
// NonSufficientFunds row, and the account.nsf event each happen exactly once.
func TestRunNSFFlow_RolledUpPADRevertsEveryInvoice(t *testing.T) {
	tc, store, cfs, _, pub := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	cfsAcct := store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodPAD,
		Status:        domain.CfsAccountActive,
		CfsAccountNum: "CFSNUM2",
	})
	inv1 := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		CfsAccountID:      &cfsAcct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoicePaid,
		Total:             decimal.NewFromInt(100),
		Paid:              decimal.NewFromInt(100),
	})
	inv2 := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		CfsAccountID:      &cfsAcct.ID,
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoicePaid,
		Total:             decimal.NewFromInt(25),
		Paid:              decimal.NewFromInt(25),
	})
	ref1 := store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv1.ID,
		InvoiceNumber: "REG0200",
		ReferenceNum:  "REF200",
		StatusCode:    domain.InvoiceReferenceCompleted,
	})
	ref2 := store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv2.ID,
		InvoiceNumber: "REG0200",
		ReferenceNum:  "REF200",
		StatusCode:    domain.InvoiceReferenceCompleted,
	})
	store.AddReceipt(&domain.Receipt{InvoiceID: inv1.ID, ReceiptNumber: "RCPT0200", ReceiptAmount: decimal.NewFromInt(100)})
	store.AddReceipt(&domain.Receipt{InvoiceID: inv2.ID, ReceiptNumber: "RCPT0200", ReceiptAmount: decimal.NewFromInt(25)})
	cfs.AddInvoice(&domain.CFSInvoice{InvoiceNumber: "REG0200", Total: decimal.NewFromInt(125)})

	row := casRow(t, map[string]string{
		parser.ColTargetTxnNumber: "REG0200",
		parser.ColSourceTxnNumber: "RCPT0200",
	})

	require.NoError(t, runNSFFlow(context.Background(), tc, zerolog.Nop(), "REG0200", row))

	assert.Equal(t, domain.CfsAccountFreeze, store.CfsAccounts[cfsAcct.ID].Status)
	assert.NotNil(t, store.PaymentAccounts[acct.ID].HasNSFInvoices)

	assert.Equal(t, domain.InvoiceSettlementScheduled, store.Invoices[inv1.ID].InvoiceStatusCode)
	assert.Equal(t, domain.InvoiceSettlementScheduled, store.Invoices[inv2.ID].InvoiceStatusCode)
	assert.True(t, store.Invoices[inv1.ID].Paid.IsZero())
	assert.True(t, store.Invoices[inv2.ID].Paid.IsZero())

	assert.Equal(t, domain.InvoiceReferenceActive, store.InvoiceRefs[ref1.ID].StatusCode)
	assert.Equal(t, domain.InvoiceReferenceActive, store.InvoiceRefs[ref2.ID].StatusCode)

	for _, rcpt := range store.Receipts {
		assert.NotEqual(t, inv1.ID, rcpt.InvoiceID, "invoice 1's receipt must be removed on NSF revert")
		assert.NotEqual(t, inv2.ID, rcpt.InvoiceID, "invoice 2's receipt must be removed on NSF revert")
	}

	var feeInvoices []*domain.Invoice
	for id, inv := range store.Invoices {
		if id != inv1.ID && id != inv2.ID {
			feeInvoices = append(feeInvoices, inv)
		}
	}
	require.Len(t, feeInvoices, 1, "exactly one NSF fee invoice must be created regardless of rollup size")
	assert.True(t, feeInvoices[0].Total.Equal(decimal.NewFromInt(30)))

	nsfCount := 0
	for _, n := range store.NSFRecords {
		if n.InvoiceNumber == "REG0200" {
			nsfCount++
		}
	}
	assert.Equal(t, 1, nsfCount, "exactly one NonSufficientFunds row must be created")

	nsfEvents := 0
	for _, e := range pub.Events {
		if e.Topic == "account.nsf" {
			nsfEvents++
		}
	}
	assert.Equal(t, 1, nsfEvents, "exactly one account.nsf event must be published")
}

func TestCreateCreditFromReceiptRow_CreatesCreditOnce(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodPAD,
		Status:        domain.CfsAccountActive,
		CfsAccountNum: "CFSNUM2",
		CfsSite:       "SITE1",
	})

	row := casRow(t, map[string]string{
		parser.ColSourceTxnNumber:      "RCPT-CREDIT-1",
		parser.ColCustomerAccount:      "CFSNUM2",
		parser.ColTargetTxnOriginal:    "25.00",
		parser.ColTargetTxnType:        parser.TargetTxnReceipt,
	})

	require.NoError(t, createCreditFromReceiptRow(context.Background(), tc, row))
	require.NoError(t, createCreditFromReceiptRow(context.Background(), tc, row)) // re-delivery

	var credits []*domain.Credit
	for _, c := range store.Credits {
		credits = append(credits, c)
	}
	require.Len(t, credits, 1, "a re-delivered receipt row must not create a second credit")
	assert.True(t, credits[0].Amount.Equal(decimal.NewFromInt(25)))
}

func TestRollupCreditsForAccount_SumsBySite(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodPAD})
	store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodPAD,
		Status:        domain.CfsAccountActive,
		CfsSite:       "PADSITE",
	})
	store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodOnlineBank,
		Status:        domain.CfsAccountActive,
		CfsSite:       "OBSITE",
	})
	store.AddCredit(&domain.Credit{AccountID: acct.ID, CfsSite: "PADSITE", RemainingAmount: decimal.NewFromInt(10)})
	store.AddCredit(&domain.Credit{AccountID: acct.ID, CfsSite: "PADSITE", RemainingAmount: decimal.NewFromInt(5)})
	store.AddCredit(&domain.Credit{AccountID: acct.ID, CfsSite: "OBSITE", RemainingAmount: decimal.NewFromInt(7)})

	require.NoError(t, rollupCreditsForAccount(context.Background(), tc, acct.ID))

	got := store.PaymentAccounts[acct.ID]
	assert.True(t, got.PADCredit.Equal(decimal.NewFromInt(15)))
	assert.True(t, got.OBCredit.Equal(decimal.NewFromInt(7)))
}

// casRow builds a parser.CasRow through ParseCAS so the unexported columns
// map is populated exactly the way a real file's header/row pairing would
// produce it.
func casRow(t *testing.T, values map[string]string) parser.CasRow {
	t.Helper()
	headers := make([]string, 0, len(values))
	cells := make([]string, 0, len(values))
	for k, v := range values {
		headers = append(headers, k)
		cells = append(cells, csvEscape(v))
	}
	csvText := strings.Join(headers, ",") + "\n" + strings.Join(cells, ",") + "\n"
	rows, err := parser.ParseCAS(strings.NewReader(csvText))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return rows[0]
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
	}
	return s
}
