package reconciler

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcgov/sbc-pay-sub002/internal/bus"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
	"github.com/bcgov/sbc-pay-sub002/internal/parser"
)

// newJVLine allocates a blank (space-filled) fixed-width line long enough to
// hold every column window jvfeedback.go's parsers read from.
func newJVLine(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return b
}

func putAt(b []byte, start int, s string) {
	copy(b[start:], []byte(s))
}

func jvJournalName(ministry string, ejvHeaderID int32) string {
	return ministry + fmt.Sprintf("%08d", ejvHeaderID)
}

// buildBGLine opens a batch the way splitJVBatches recognizes it: the line's
// first four characters are the literal GABG/GIBG marker (which happens to
// also carry the "BG" two-char record class at offset 2, same as the real
// CAS layout), with the batch number in its fixed column further along.
func buildBGLine(batchNumber string) string {
	b := newJVLine(40)
	putAt(b, 0, "GABG")
	putAt(b, 15, batchNumber)
	return string(b)
}

func buildBTLine() string {
	b := newJVLine(10)
	putAt(b, 2, "BT")
	return string(b)
}

func buildBHLine(returnCode string) string {
	b := newJVLine(200)
	putAt(b, 2, "BH")
	putAt(b, 7, returnCode)
	return string(b)
}

func buildJHLine(ministry string, ejvHeaderID int32, returnCode, amount string) string {
	b := newJVLine(500)
	putAt(b, 2, "JH")
	putAt(b, 7, jvJournalName(ministry, ejvHeaderID))
	putAt(b, 42, amount)
	putAt(b, 271, returnCode)
	return string(b)
}

func buildJDLine(ministry string, ejvHeaderID int32, isCredit bool, objectCode, effectiveDate, flowthrough, returnCode string) string {
	b := newJVLine(500)
	putAt(b, 2, "JD")
	putAt(b, 7, jvJournalName(ministry, ejvHeaderID))
	putAt(b, 22, effectiveDate)
	putAt(b, 30, objectCode)
	cd := "D"
	if isCredit {
		cd = "C"
	}
	putAt(b, 104, cd)
	putAt(b, 205, flowthrough) // well within the [205,300) sub-span the CAS quirk-zero fix doesn't touch
	putAt(b, 315, returnCode)
	return string(b)
}

func buildIHLine(numberOrID string, returnCode string) string {
	b := newJVLine(500)
	putAt(b, 2, "IH")
	putAt(b, 19, numberOrID)
	putAt(b, 414, returnCode)
	return string(b)
}

func buildNonGovIHLine(invoiceID int32, returnCode string) string {
	b := newJVLine(500)
	putAt(b, 2, "IH")
	putAt(b, 205, fmt.Sprintf("%d", invoiceID))
	putAt(b, 315, returnCode)
	return string(b)
}

func TestSplitJVBatches_GroupsByBTTerminator(t *testing.T) {
	lines := []string{buildBGLine("BATCH001"), buildBHLine("0000"), buildBTLine()}
	batches := splitJVBatches(lines)
	require.Len(t, batches, 1)
	assert.False(t, batches[0].isAP)
	assert.Len(t, batches[0].lines, 3)
}

func TestSplitJVBatches_APBatchMarkedSeparately(t *testing.T) {
	lines := []string{"APBG" + string(newJVLine(100)), buildIHLine("RS0001", "0000"), buildBTLine()}
	batches := splitJVBatches(lines)
	require.Len(t, batches, 1)
	assert.True(t, batches[0].isAP)
}

func TestProcessJVBatch_SkipsAlreadyFedBack(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	alreadyRef := "already-processed.txt"
	file := store.AddEjvFile(&domain.EjvFile{FileType: domain.EjvFileDisbursement, FeedbackFileRef: &alreadyRef})
	store.AddEjvHeader(&domain.EjvHeader{EjvFileID: file.ID, BatchNumber: "BATCH001"})

	batch := jvBatch{isAP: false, lines: []string{buildBGLine("BATCH001"), buildBTLine()}}
	require.NoError(t, processJVBatch(context.Background(), tc, zerolog.Nop(), "new-file.txt", batch))

	got := store.EjvFiles[file.ID]
	assert.Equal(t, alreadyRef, *got.FeedbackFileRef, "an already-fed-back batch must not be reprocessed")
}

func TestProcessJH_DisbursementFile_UpdatesHeaderStatusOnly(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	file := &domain.EjvFile{FileType: domain.EjvFileDisbursement}
	header := store.AddEjvHeader(&domain.EjvHeader{Status: domain.EjvHeaderUploaded})

	jh := parser.ParseJH(buildJHLine("MI", header.ID, "0000", "150.00"))
	require.NoError(t, processJH(context.Background(), tc, zerolog.Nop(), file, jh))

	assert.Equal(t, domain.EjvHeaderCompleted, store.EjvHeaders[header.ID].Status)
	assert.Empty(t, store.Payments, "a DISBURSEMENT file's JH feedback must not create a Payment")
}

func TestProcessJH_PaymentFile_CreatesGovernmentPayment(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	file := &domain.EjvFile{FileType: domain.EjvFilePayment}
	header := store.AddEjvHeader(&domain.EjvHeader{Status: domain.EjvHeaderUploaded})

	jh := parser.ParseJH(buildJHLine("MI", header.ID, "0000", "150.00"))
	require.NoError(t, processJH(context.Background(), tc, zerolog.Nop(), file, jh))

	assert.Equal(t, domain.EjvHeaderCompleted, store.EjvHeaders[header.ID].Status)

	var payment *domain.Payment
	for _, p := range store.Payments {
		payment = p
	}
	require.NotNil(t, payment, "a PAYMENT file's successful JH feedback must create a government Payment")
	assert.Equal(t, domain.PaymentCompleted, payment.PaymentStatusCode)
	assert.Equal(t, domain.PaymentSystemCFS, payment.PaymentSystemCode)
	assert.True(t, payment.PaidAmount.Equal(decimal.RequireFromString("150.00")))
}

func TestProcessJH_FailedReturnCode_ErrorsHeaderAndSkipsPayment(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	file := &domain.EjvFile{FileType: domain.EjvFilePayment}
	header := store.AddEjvHeader(&domain.EjvHeader{Status: domain.EjvHeaderUploaded})

	jh := parser.ParseJH(buildJHLine("MI", header.ID, "0001", "150.00"))
	require.NoError(t, processJH(context.Background(), tc, zerolog.Nop(), file, jh))

	assert.Equal(t, domain.EjvHeaderErrored, store.EjvHeaders[header.ID].Status)
	assert.Empty(t, store.Payments)
}

func TestProcessDisbursementFeedback_CompletesOnSuccess(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{PaymentMethodCode: domain.PaymentMethodEFT, InvoiceStatusCode: domain.InvoiceApproved})
	disbursement := store.AddPartnerDisbursement(&domain.PartnerDisbursement{
		TargetID:   inv.ID,
		TargetType: domain.PartnerDisbursementInvoice,
		StatusCode: domain.DisbursementUploaded,
	})
	store.AddEjvLink(&domain.EjvLink{HeaderID: 5, InvoiceID: inv.ID, LinkType: domain.EjvLinkInvoice, Status: domain.DisbursementUploaded})

	jd := parser.ParseJD(buildJDLine("MI", 5, true, "000", "20260201", fmt.Sprintf("%d", inv.ID), "0000"))
	require.NoError(t, processDisbursementFeedback(context.Background(), tc, zerolog.Nop(), jd))

	assert.Equal(t, domain.DisbursementCompleted, store.Invoices[inv.ID].DisbursementStatus)
	require.NotNil(t, store.Invoices[inv.ID].DisbursementDate)
	assert.Equal(t, domain.DisbursementCompleted, store.PartnerDisbursements[disbursement.ID].StatusCode)

	require.Len(t, pub.Events, 1)
	assert.Equal(t, bus.TopicDisbursementDone, pub.Events[0].Topic)
}

func TestProcessDisbursementFeedback_ReversalObjectCode(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{PaymentMethodCode: domain.PaymentMethodEFT, InvoiceStatusCode: domain.InvoiceApproved, DisbursementStatus: domain.DisbursementCompleted})
	store.AddEjvLink(&domain.EjvLink{HeaderID: 6, InvoiceID: inv.ID, LinkType: domain.EjvLinkInvoice, Status: domain.DisbursementCompleted})

	jd := parser.ParseJD(buildJDLine("MI", 6, true, parser.ObjectCodeReversal, "20260201", fmt.Sprintf("%d", inv.ID), "0000"))
	require.NoError(t, processDisbursementFeedback(context.Background(), tc, zerolog.Nop(), jd))

	assert.Equal(t, domain.DisbursementReversed, store.Invoices[inv.ID].DisbursementStatus)
	require.NotNil(t, store.Invoices[inv.ID].DisbursementReversal)
	require.Len(t, pub.Events, 1)
	assert.Equal(t, bus.TopicDisbursementDone, pub.Events[0].Topic)
}

func TestProcessDisbursementFeedback_FailureMarksErrored(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{PaymentMethodCode: domain.PaymentMethodEFT, InvoiceStatusCode: domain.InvoiceApproved})
	store.AddEjvLink(&domain.EjvLink{HeaderID: 7, InvoiceID: inv.ID, LinkType: domain.EjvLinkInvoice, Status: domain.DisbursementUploaded})

	jd := parser.ParseJD(buildJDLine("MI", 7, true, "000", "20260201", fmt.Sprintf("%d", inv.ID), "0001"))
	require.NoError(t, processDisbursementFeedback(context.Background(), tc, zerolog.Nop(), jd))

	assert.Equal(t, domain.DisbursementErrored, store.Invoices[inv.ID].DisbursementStatus)
	require.Len(t, pub.Events, 1)
	assert.Equal(t, bus.TopicEjvFailed, pub.Events[0].Topic)
}

func TestProcessPaymentFeedback_MarksPaidAndCreatesReceipt(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(75),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{InvoiceID: inv.ID, InvoiceNumber: "REGJV1", StatusCode: domain.InvoiceReferenceActive})

	jd := parser.ParseJD(buildJDLine("MI", 8, false, "000", "20260201", fmt.Sprintf("%d", inv.ID), "0000"))
	require.NoError(t, processPaymentFeedback(context.Background(), tc, zerolog.Nop(), jd))

	got := store.Invoices[inv.ID]
	assert.Equal(t, domain.InvoicePaid, got.InvoiceStatusCode)
	assert.True(t, got.Paid.Equal(decimal.NewFromInt(75)))

	var ref *domain.InvoiceReference
	for _, r := range store.InvoiceRefs {
		ref = r
	}
	require.NotNil(t, ref)
	assert.Equal(t, domain.InvoiceReferenceCompleted, ref.StatusCode)

	var receipt *domain.Receipt
	for _, r := range store.Receipts {
		receipt = r
	}
	require.NotNil(t, receipt)
	assert.True(t, receipt.ReceiptAmount.Equal(decimal.NewFromInt(75)))

	require.Len(t, pub.Events, 1)
	assert.Equal(t, bus.TopicInvoicePaid, pub.Events[0].Topic)
}

func TestProcessPaymentFeedback_ReversalPublishesRefunded(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceRefundRequested,
		Total:             decimal.NewFromInt(40),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{InvoiceID: inv.ID, InvoiceNumber: "REGJV2", StatusCode: domain.InvoiceReferenceActive})

	jd := parser.ParseJD(buildJDLine("MI", 9, false, "000", "20260201", fmt.Sprintf("%d", inv.ID), "0000"))
	require.NoError(t, processPaymentFeedback(context.Background(), tc, zerolog.Nop(), jd))

	assert.Equal(t, domain.InvoiceRefunded, store.Invoices[inv.ID].InvoiceStatusCode)
	require.Len(t, pub.Events, 1)
	assert.Equal(t, bus.TopicInvoiceRefunded, pub.Events[0].Topic)
}

func TestProcessPaymentFeedback_FailureCancelsReference(t *testing.T) {
	tc, store, _, _, pub := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{
		PaymentMethodCode: domain.PaymentMethodPAD,
		InvoiceStatusCode: domain.InvoiceApproved,
		Total:             decimal.NewFromInt(40),
	})
	store.AddInvoiceReference(&domain.InvoiceReference{InvoiceID: inv.ID, InvoiceNumber: "REGJV3", StatusCode: domain.InvoiceReferenceActive})

	jd := parser.ParseJD(buildJDLine("MI", 10, false, "000", "20260201", fmt.Sprintf("%d", inv.ID), "0001"))
	require.NoError(t, processPaymentFeedback(context.Background(), tc, zerolog.Nop(), jd))

	assert.Equal(t, domain.InvoiceApproved, store.Invoices[inv.ID].InvoiceStatusCode, "a failed payment feedback must not mark the invoice paid")
	var ref *domain.InvoiceReference
	for _, r := range store.InvoiceRefs {
		ref = r
	}
	require.NotNil(t, ref)
	assert.Equal(t, domain.InvoiceReferenceCancelled, ref.StatusCode)
	require.Len(t, pub.Events, 1)
	assert.Equal(t, bus.TopicEjvFailed, pub.Events[0].Topic)
}

func TestProcessRoutingSlipRefundFeedback_ProcessedOnSuccess(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()
	rs := store.AddRoutingSlip(&domain.RoutingSlip{Number: "RS000123", Status: domain.RoutingSlipRefundRequested})

	line := buildIHLine(rs.Number, "0000")
	require.NoError(t, processRoutingSlipRefundFeedback(context.Background(), tc, zerolog.Nop(), line))

	assert.Equal(t, domain.RoutingSlipRefundProcessed, store.RoutingSlips[rs.ID].Status)
}

func TestProcessRoutingSlipRefundFeedback_RejectedOnFailure(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()
	rs := store.AddRoutingSlip(&domain.RoutingSlip{Number: "RS000456", Status: domain.RoutingSlipRefundRequested})

	line := buildIHLine(rs.Number, "0001")
	require.NoError(t, processRoutingSlipRefundFeedback(context.Background(), tc, zerolog.Nop(), line))

	assert.Equal(t, domain.RoutingSlipRefundRejected, store.RoutingSlips[rs.ID].Status)
}

func TestProcessEFTRefundFeedback_CompletesOnSuccess(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()
	refund := store.AddEFTRefund(&domain.EFTRefund{Status: domain.DisbursementUploaded})

	line := buildIHLine(fmt.Sprintf("%d", refund.ID), "0000")
	require.NoError(t, processEFTRefundFeedback(context.Background(), tc, zerolog.Nop(), line))

	got := store.EFTRefunds[refund.ID]
	assert.Equal(t, domain.DisbursementCompleted, got.Status)
	assert.NotNil(t, got.DisbursementDate)
}

func TestProcessNonGovDisbursementFeedback_FailureMarksErrored(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{PaymentMethodCode: domain.PaymentMethodEFT, InvoiceStatusCode: domain.InvoiceApproved})
	file := store.AddEjvFile(&domain.EjvFile{FileType: domain.EjvFileNonGovDisbursement})
	fid := file.ID
	store.AddEjvLink(&domain.EjvLink{EjvFileID: &fid, InvoiceID: inv.ID, LinkType: domain.EjvLinkInvoice, Status: domain.DisbursementUploaded})

	line := buildNonGovIHLine(inv.ID, "0001")
	require.NoError(t, processNonGovDisbursementFeedback(context.Background(), tc, zerolog.Nop(), file, line))

	assert.Equal(t, domain.DisbursementErrored, store.Invoices[inv.ID].DisbursementStatus)

	var link *domain.EjvLink
	for _, l := range store.EjvLinks {
		link = l
	}
	require.NotNil(t, link)
	assert.Equal(t, domain.DisbursementErrored, link.Status)
}

func TestProcessNonGovDisbursementFeedback_SuccessIsIgnored(t *testing.T) {
	tc, store, _, _, _ := setupReconcilerContext()

	inv := store.AddInvoice(&domain.Invoice{PaymentMethodCode: domain.PaymentMethodEFT, InvoiceStatusCode: domain.InvoiceApproved})
	file := store.AddEjvFile(&domain.EjvFile{FileType: domain.EjvFileNonGovDisbursement})

	line := buildNonGovIHLine(inv.ID, "0000")
	require.NoError(t, processNonGovDisbursementFeedback(context.Background(), tc, zerolog.Nop(), file, line))

	assert.Equal(t, domain.DisbursementStatus(""), store.Invoices[inv.ID].DisbursementStatus, "the success path has no defined upstream handling and must be a no-op")
}
