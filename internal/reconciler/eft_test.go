package reconciler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// tdi17Header builds a fixed-width header line: record type(2) + creation
// date(8) + creation time(4) + deposit date start(8) + deposit date end(8).
func tdi17Header() string {
	return "1 " + "20260201" + "1000" + "20260201" + "20260201"
}

// tdi17Trailer builds a fixed-width trailer line: record type(2) + number of
// details(6) + total deposit amount cents(15).
func tdi17Trailer(numDetails int, totalCents int64) string {
	return "7 " + fmt.Sprintf("%06d", numDetails) + fmt.Sprintf("%015d", totalCents)
}

// tdi17Detail builds a fixed-width EFT deposit detail line matching the
// field widths in parser.ParseTDI17Detail.
func tdi17Detail(txnSeq, description string, depositAmountCents int64) string {
	pad := func(s string, width int) string {
		if len(s) > width {
			return s[:width]
		}
		return s + fmt.Sprintf("%*s", width-len(s), "")
	}
	num := func(n int64, width int) string {
		return fmt.Sprintf("%0*d", width, n)
	}
	var line string
	line += "2 "                  // record type (2)
	line += pad("MIN", 3)          // ministry code
	line += pad("PRG", 3)          // program code
	line += "20260201"             // deposit date (8)
	line += "1000"                 // deposit time (4)
	line += pad("LOC01", 5)        // location id
	line += pad(txnSeq, 7)         // transaction sequence
	line += pad(description, 40)   // transaction description
	line += num(depositAmountCents, 11)
	line += pad("CAD", 3)          // currency
	line += num(0, 11)             // exchange adj
	line += num(depositAmountCents, 11) // deposit amount CAD
	line += pad("1234", 4)         // destination bank number
	line += pad("BATCH01", 7)      // batch number
	line += "J"                   // jv type
	line += pad("JV0001", 10)      // jv number
	line += "20260201"             // transaction date
	return line
}

func tdi17File(details ...string) string {
	lines := []string{tdi17Header()}
	var total int64
	lines = append(lines, details...)
	lines = append(lines, tdi17Trailer(len(details), total))
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out + "\n"
}

func TestRunTDI17Reconciliation_BooksCreditAndAppliesPendingLink(t *testing.T) {
	tc, store, _, objStore, _ := setupReconcilerContext()

	acct := store.AddPaymentAccount(&domain.PaymentAccount{PaymentMethod: domain.PaymentMethodEFT})
	cfsAcct := store.AddCfsAccount(&domain.CfsAccount{
		AccountID:     acct.ID,
		PaymentMethod: domain.PaymentMethodEFT,
		Status:        domain.CfsAccountActive,
	})
	inv := store.AddInvoice(&domain.Invoice{
		PaymentAccountID:  acct.ID,
		CfsAccountID:      &cfsAcct.ID,
		PaymentMethodCode: domain.PaymentMethodEFT,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(100),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{
		InvoiceID:     inv.ID,
		InvoiceNumber: "REGTXN-EFT1",
		StatusCode:    domain.InvoiceReferenceActive,
	})
	sn := store.AddShortName(&domain.EFTShortName{ShortName: "JOHN DOE", CreditBalance: decimal.Zero})
	store.AddShortNameLink(&domain.EFTShortNameLink{ShortNameID: sn.ID, AccountID: acct.ID, Status: domain.ShortNameLinkLinked})

	detail := tdi17Detail("0000001", "EFT JOHN DOE", 10000)
	content := tdi17File(detail)
	objStore.Seed("eft-inbox", "tdi17-001.txt", []byte(content))

	require.NoError(t, RunTDI17Reconciliation(context.Background(), tc, "eft-inbox", "tdi17-001.txt"))

	assert.True(t, store.ShortNames[sn.ID].CreditBalance.IsZero(), "credit balance nets back to zero once fully applied to the invoice")

	var credit *domain.EFTCredit
	for _, c := range store.EFTCredits {
		credit = c
	}
	require.NotNil(t, credit)
	assert.True(t, credit.Amount.Equal(decimal.NewFromInt(100)))

	var eftLink *domain.EFTCreditInvoiceLink
	for _, l := range store.EFTLinks {
		eftLink = l
	}
	require.NotNil(t, eftLink, "a pending link must be created once enough credit is available")
	assert.Equal(t, domain.EFTLinkPending, eftLink.StatusCode)
	assert.True(t, eftLink.Amount.Equal(decimal.NewFromInt(100)))

	var file *domain.EftFile
	for _, f := range store.EFTFiles {
		file = f
	}
	require.NotNil(t, file)
	assert.Equal(t, domain.EftFileCompleted, file.Status)
}

func TestRunTDI17Reconciliation_ReDeliveryIsNoop(t *testing.T) {
	tc, store, _, objStore, _ := setupReconcilerContext()

	now := time.Now()
	store.AddEFTFile(&domain.EftFile{FileName: "tdi17-002.txt", Status: domain.EftFileCompleted, ProcessedOn: &now})

	detail := tdi17Detail("0000002", "EFT JANE ROE", 5000)
	objStore.Seed("eft-inbox", "tdi17-002.txt", []byte(tdi17File(detail)))

	require.NoError(t, RunTDI17Reconciliation(context.Background(), tc, "eft-inbox", "tdi17-002.txt"))

	assert.Empty(t, store.ShortNames, "a file already marked COMPLETED must not be reprocessed")
	assert.Empty(t, store.EFTCredits)
}

func TestRunTDI17Reconciliation_SkipsNonPositiveDeposit(t *testing.T) {
	tc, store, _, objStore, _ := setupReconcilerContext()

	detail := tdi17Detail("0000003", "EFT ZERO AMOUNT", 0)
	objStore.Seed("eft-inbox", "tdi17-003.txt", []byte(tdi17File(detail)))

	require.NoError(t, RunTDI17Reconciliation(context.Background(), tc, "eft-inbox", "tdi17-003.txt"))

	assert.Empty(t, store.ShortNames, "a non-positive deposit line must not book a credit or create a short name")
	assert.Empty(t, store.EFTCredits)

	var file *domain.EftFile
	for _, f := range store.EFTFiles {
		file = f
	}
	require.NotNil(t, file)
	assert.Equal(t, domain.EftFileCompleted, file.Status, "a file with only skippable lines still completes")
}

func TestRunTDI17Reconciliation_FailsFileOnBadDetailLine(t *testing.T) {
	tc, store, _, objStore, _ := setupReconcilerContext()

	goodLine := tdi17Detail("0000004", "EFT BAD ROW", 1000)
	badLine := "9 " + goodLine[2:] // invalid record type -> fails validation
	content := tdi17Header() + "\n" + badLine + "\n" + tdi17Trailer(1, 0) + "\n"
	objStore.Seed("eft-inbox", "tdi17-004.txt", []byte(content))

	err := RunTDI17Reconciliation(context.Background(), tc, "eft-inbox", "tdi17-004.txt")
	require.Error(t, err)

	var file *domain.EftFile
	for _, f := range store.EFTFiles {
		file = f
	}
	require.NotNil(t, file)
	assert.Equal(t, domain.EftFileFailed, file.Status)
}
