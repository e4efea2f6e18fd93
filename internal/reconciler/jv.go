package reconciler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/bus"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
	"github.com/bcgov/sbc-pay-sub002/internal/errkind"
	"github.com/bcgov/sbc-pay-sub002/internal/parser"
)

// jvBatch is the line span of one GABG/GIBG/APBG ... BT group, plus which
// kind of batch it is (spec §4.9, §6).
type jvBatch struct {
	isAP  bool
	lines []string
}

// RunJVFeedbackReconciliation walks one CGI JV feedback file batch by batch.
// Each batch is independently idempotent on its BG line's batch_number, so
// a partially re-delivered file only reprocesses the batches it hasn't
// already completed (spec §4.9).
func RunJVFeedbackReconciliation(ctx context.Context, tc *appctx.TaskContext, location, fileName string) error {
	log := tc.Log.With().Str("task", "jv_feedback_reconciliation").Str("file", fileName).Logger()

	raw, err := tc.ObjectStore.Fetch(ctx, location, fileName)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	batches := splitJVBatches(lines)
	if len(batches) == 0 {
		return errkind.Wrap(errkind.Parse, fmt.Errorf("jv feedback file %s has no batches", fileName))
	}

	for _, batch := range batches {
		if err := processJVBatch(ctx, tc, log, fileName, batch); err != nil {
			log.Error().Err(err).Msg("jv batch failed")
		}
	}
	return nil
}

// splitJVBatches groups lines into GABG/GIBG (EJV) and APBG (AP) spans,
// each closed by a BT line (spec §4.9).
func splitJVBatches(lines []string) []jvBatch {
	var batches []jvBatch
	var current *jvBatch
	for _, line := range lines {
		if len(line) < 4 {
			continue
		}
		prefix := line[:4]
		switch prefix {
		case "GABG", "GIBG":
			current = &jvBatch{isAP: false}
		case "APBG":
			current = &jvBatch{isAP: true}
		}
		if current == nil {
			continue
		}
		current.lines = append(current.lines, line)
		if parser.RecordClass(line) == parser.RecordClassBT {
			batches = append(batches, *current)
			current = nil
		}
	}
	return batches
}

func processJVBatch(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, fileName string, batch jvBatch) error {
	if len(batch.lines) == 0 {
		return nil
	}
	bg := parser.ParseBG(batch.lines[0])

	var file *domain.EjvFile
	var skip bool
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		f, err := tx.Ejv().GetFileByBatchNumber(ctx, bg.BatchNumber)
		if err != nil {
			return err
		}
		if f.FeedbackFileRef != nil {
			skip = true
			return nil
		}
		file = f
		return nil
	}); err != nil {
		return err
	}
	if skip {
		log.Info().Str("batch_number", bg.BatchNumber).Msg("jv batch already fed back; skipping")
		return nil
	}

	var procErr error
	if batch.isAP {
		procErr = processAPBatch(ctx, tc, log, file, batch.lines)
	} else {
		procErr = processEJVBatch(ctx, tc, log, file, batch.lines)
	}

	markErr := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		file.FeedbackFileRef = &fileName
		return tx.Ejv().UpdateFile(ctx, file)
	})
	if procErr != nil {
		return procErr
	}
	return markErr
}

// processEJVBatch handles BH/JH/JD lines within one GABG/GIBG...BT span.
func processEJVBatch(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, file *domain.EjvFile, lines []string) error {
	for _, line := range lines {
		switch parser.RecordClass(line) {
		case parser.RecordClassBH:
			bh := parser.ParseBH(line)
			if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
				if !parser.IsReturnCodeSuccess(bh.ReturnCode) {
					file.DisbursementStatus = domain.DisbursementErrored
				}
				return tx.Ejv().UpdateFile(ctx, file)
			}); err != nil {
				log.Error().Err(err).Msg("jv BH update failed")
			}

		case parser.RecordClassJH:
			jh := parser.ParseJH(line)
			if err := processJH(ctx, tc, log, file, jh); err != nil {
				log.Error().Err(err).Int32("ejv_header_id", jh.EjvHeaderID).Msg("jv JH processing failed")
			}

		case parser.RecordClassJD:
			jd := parser.ParseJD(line)
			if err := processJD(ctx, tc, log, file, jd); err != nil {
				log.Error().Err(err).Int32("invoice_id", jd.InvoiceID).Msg("jv JD processing failed")
			}
		}
	}
	return nil
}

func processJH(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, file *domain.EjvFile, jh parser.JHRecord) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		header, err := tx.Ejv().GetHeader(ctx, jh.EjvHeaderID)
		if err != nil {
			return err
		}

		success := parser.IsReturnCodeSuccess(jh.ReturnCode)
		if success {
			header.Status = domain.EjvHeaderCompleted
		} else {
			header.Status = domain.EjvHeaderErrored
		}
		if err := tx.Ejv().UpdateHeader(ctx, header); err != nil {
			return err
		}

		if file.FileType != domain.EjvFilePayment || !success {
			return nil
		}

		// A government-account JV payment has no internal invoice or payment
		// account of its own; its receipt number doubles as the invoice
		// number this engine files the Payment row under.
		return tx.Ejv().CreateGovernmentPayment(ctx, &domain.Payment{
			PaymentAccountID:  0,
			InvoiceNumber:     jh.ReceiptNumber,
			InvoiceAmount:     parseDecimal(jh.Amount),
			PaidAmount:        parseDecimal(jh.Amount),
			PaymentMethodCode: domain.PaymentMethodPAD,
			PaymentSystemCode: domain.PaymentSystemCFS,
			PaymentStatusCode: domain.PaymentCompleted,
			ReceiptNumber:     &jh.ReceiptNumber,
			PaymentDate:       tc.Clock.Now(),
		})
	})
}

// processJD dispatches a JD detail line by (credit/debit marker, file
// type): a Credit line in a DISBURSEMENT file is disbursement feedback; a
// Debit line in a PAYMENT file is payment feedback (spec §4.9).
func processJD(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, file *domain.EjvFile, jd parser.JDRecord) error {
	switch {
	case jd.IsCredit && file.FileType == domain.EjvFileDisbursement:
		return processDisbursementFeedback(ctx, tc, log, jd)
	case !jd.IsCredit && file.FileType == domain.EjvFilePayment:
		return processPaymentFeedback(ctx, tc, log, jd)
	default:
		log.Debug().Int32("invoice_id", jd.InvoiceID).Msg("jv JD line not applicable to this file type; ignored")
		return nil
	}
}

func processDisbursementFeedback(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, jd parser.JDRecord) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		link, err := tx.Ejv().GetLink(ctx, jd.EjvHeaderID, jd.InvoiceID)
		if err != nil {
			return err
		}

		inv, err := tx.Invoices().LockForUpdate(ctx, jd.InvoiceID)
		if err != nil {
			return err
		}

		var disbursement *domain.PartnerDisbursement
		targetType := domain.PartnerDisbursementInvoice
		targetID := jd.InvoiceID
		if jd.PartnerDisbursementID != 0 {
			targetType = domain.PartnerDisbursementPartialRefund
			targetID = jd.PartnerDisbursementID
		}
		disbursement, err = tx.Ejv().GetPartnerDisbursement(ctx, targetType, targetID)
		if err != nil && err != domain.ErrNotFound {
			return err
		}

		if !parser.IsReturnCodeSuccess(jd.ReturnCode) {
			link.Status = domain.DisbursementErrored
			inv.DisbursementStatus = domain.DisbursementErrored
			if disbursement != nil {
				disbursement.StatusCode = domain.DisbursementErrored
				if err := tx.Ejv().UpdatePartnerDisbursement(ctx, disbursement); err != nil {
					return err
				}
			}
			if err := tx.Ejv().UpdateLink(ctx, link); err != nil {
				return err
			}
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			publishEvent(ctx, tc, log, bus.TopicEjvFailed, map[string]any{"invoice_id": inv.ID})
			return nil
		}

		if jd.ObjectCode == parser.ObjectCodeReversal {
			link.Status = domain.DisbursementReversed
			inv.DisbursementStatus = domain.DisbursementReversed
			inv.DisbursementReversal = &jd.EffectiveDate
			if disbursement != nil {
				disbursement.StatusCode = domain.DisbursementReversed
				disbursement.IsReversal = true
			}
		} else {
			link.Status = domain.DisbursementCompleted
			inv.DisbursementStatus = domain.DisbursementCompleted
			inv.DisbursementDate = &jd.EffectiveDate
			if disbursement != nil {
				disbursement.StatusCode = domain.DisbursementCompleted
				disbursement.ProcessedOn = &jd.EffectiveDate
			}
		}
		if disbursement != nil {
			if err := tx.Ejv().UpdatePartnerDisbursement(ctx, disbursement); err != nil {
				return err
			}
		}
		if err := tx.Ejv().UpdateLink(ctx, link); err != nil {
			return err
		}
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return err
		}
		publishEvent(ctx, tc, log, bus.TopicDisbursementDone, map[string]any{"invoice_id": inv.ID})
		return nil
	})
}

func processPaymentFeedback(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, jd parser.JDRecord) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		inv, err := tx.Invoices().LockForUpdate(ctx, jd.InvoiceID)
		if err != nil {
			return err
		}
		ref, err := tx.InvoiceReferences().Active(ctx, inv.ID)
		if err != nil {
			return err
		}

		if !parser.IsReturnCodeSuccess(jd.ReturnCode) {
			if err := ref.Cancel(); err != nil {
				return err
			}
			if err := tx.InvoiceReferences().Update(ctx, ref); err != nil {
				return err
			}
			publishEvent(ctx, tc, log, bus.TopicEjvFailed, map[string]any{"invoice_id": inv.ID})
			return nil
		}

		isReversal := inv.InvoiceStatusCode == domain.InvoiceRefunded || inv.InvoiceStatusCode == domain.InvoiceRefundRequested
		if isReversal {
			if err := inv.MarkRefunded(jd.EffectiveDate); err != nil {
				return err
			}
		} else {
			if err := inv.MarkPaid(inv.Total, jd.EffectiveDate); err != nil {
				return err
			}
		}
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return err
		}

		if err := ref.Complete(); err != nil {
			return err
		}
		if err := tx.InvoiceReferences().Update(ctx, ref); err != nil {
			return err
		}

		if !isReversal {
			receiptNumber := ref.InvoiceNumber
			existing, err := tx.Receipts().GetByInvoiceAndNumber(ctx, inv.ID, receiptNumber)
			if err == nil && existing != nil {
				existing.ReceiptAmount = existing.ReceiptAmount.Add(inv.Total)
				existing.ReceiptDate = jd.EffectiveDate
				if err := tx.Receipts().Update(ctx, existing); err != nil {
					return err
				}
			} else {
				if _, err := tx.Receipts().Create(ctx, &domain.Receipt{
					InvoiceID:     inv.ID,
					ReceiptNumber: receiptNumber,
					ReceiptAmount: inv.Total,
					ReceiptDate:   jd.EffectiveDate,
				}); err != nil {
					return err
				}
			}
			publishEvent(ctx, tc, log, bus.TopicInvoicePaid, map[string]any{"invoice_id": inv.ID})
		} else {
			publishEvent(ctx, tc, log, bus.TopicInvoiceRefunded, map[string]any{"invoice_id": inv.ID})
		}
		return nil
	})
}

// processAPBatch handles an APBG...BT span's IH lines, dispatched by the
// EjvFile's file_type: REFUND (routing slip), EFT_REFUND (short name
// refund), or NON_GOV_DISBURSEMENT (spec §4.9 AP sub-flow).
func processAPBatch(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, file *domain.EjvFile, lines []string) error {
	for _, line := range lines {
		if parser.RecordClass(line) != parser.RecordClassIH {
			continue
		}
		var err error
		switch file.FileType {
		case domain.EjvFileRefund:
			err = processRoutingSlipRefundFeedback(ctx, tc, log, line)
		case domain.EjvFileEFTRefund:
			err = processEFTRefundFeedback(ctx, tc, log, line)
		default:
			err = processNonGovDisbursementFeedback(ctx, tc, log, file, line)
		}
		if err != nil {
			log.Error().Err(err).Msg("jv AP IH line failed")
		}
	}
	return nil
}

func processRoutingSlipRefundFeedback(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, line string) error {
	number := strings.TrimSpace(parser.Window(line, 19, 69))
	returnCode := parser.Window(line, 414, 418)

	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		rs, err := tx.RoutingSlips().GetByNumber(ctx, number)
		if err != nil {
			return err
		}
		if parser.IsReturnCodeSuccess(returnCode) {
			rs.Status = domain.RoutingSlipRefundProcessed
		} else {
			rs.Status = domain.RoutingSlipRefundRejected
		}
		return tx.RoutingSlips().Update(ctx, rs)
	})
}

func processEFTRefundFeedback(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, line string) error {
	idStr := strings.TrimSpace(parser.Window(line, 19, 69))
	returnCode := parser.Window(line, 414, 418)
	id, err := strconv.ParseInt(idStr, 10, 32)
	if err != nil {
		return errkind.Wrap(errkind.Parse, err)
	}

	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		refund, err := tx.EFT().GetRefundByID(ctx, int32(id))
		if err != nil {
			return err
		}
		if parser.IsReturnCodeSuccess(returnCode) {
			refund.Status = domain.DisbursementCompleted
			now := tc.Clock.Now()
			refund.DisbursementDate = &now
		} else {
			refund.Status = domain.DisbursementErrored
		}
		return tx.EFT().UpdateRefund(ctx, refund)
	})
}

// processNonGovDisbursementFeedback handles the AP/NON_GOV_DISBURSEMENT
// sub-flow. The upstream system this engine reconciles against never
// implemented the success path for this sub-flow (its handler raises
// NotImplementedError unconditionally on a successful return code); this
// engine mirrors that limitation rather than inventing untested behavior,
// and only applies the well-defined error path (spec §4.9).
func processNonGovDisbursementFeedback(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, file *domain.EjvFile, line string) error {
	flowthrough := strings.TrimSpace(parser.Window(line, 205, 315))
	invoiceIDStr := strings.SplitN(flowthrough, "-", 2)[0]
	invoiceID, err := strconv.ParseInt(invoiceIDStr, 10, 32)
	if err != nil {
		return errkind.Wrap(errkind.Parse, err)
	}
	returnCode := parser.Window(line, 315, 319)

	if parser.IsReturnCodeSuccess(returnCode) {
		log.Warn().Int32("invoice_id", int32(invoiceID)).Msg("jv non-gov disbursement success feedback has no defined handling upstream; ignored")
		return nil
	}

	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		link, err := tx.Ejv().GetLinkByFile(ctx, file.ID, int32(invoiceID))
		if err != nil {
			return err
		}
		link.Status = domain.DisbursementErrored
		if err := tx.Ejv().UpdateLink(ctx, link); err != nil {
			return err
		}
		inv, err := tx.Invoices().LockForUpdate(ctx, int32(invoiceID))
		if err != nil {
			return err
		}
		inv.DisbursementStatus = domain.DisbursementErrored
		return tx.Invoices().Update(ctx, inv)
	})
}
