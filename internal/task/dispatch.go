// Package task holds the scheduled dispatch and credit-link pipelines that
// push internally-approved invoices out to CFS and apply incoming credit
// (spec §4.3, §4.8).
package task

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/bus"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
	"github.com/bcgov/sbc-pay-sub002/internal/util"
)

// probeGracePeriod is how long the dispatch retry waits before assuming a
// timed-out CreateAccountInvoice call may have actually succeeded (spec
// §4.3 step 5). A package var so tests can shrink it.
var probeGracePeriod = 10 * time.Second

// probeSleep is time.Sleep by default; tests substitute a no-op.
var probeSleep = time.Sleep

// RunDispatch drives all six pipelines in the fixed order spec §4.3
// requires: PAD, EFT, Online Banking, routing-slip cancellations before
// routing-slip creations, then chargebacks.
func RunDispatch(ctx context.Context, tc *appctx.TaskContext) error {
	log := tc.Log.With().Str("task", "dispatch").Logger()

	runners := []struct {
		name string
		fn   func(context.Context, *appctx.TaskContext, zerolog.Logger) error
	}{
		{"pad", runPADPipeline},
		{"eft", runEFTPipeline},
		{"online_banking", runOnlineBankingPipeline},
		{"routing_slip_cancel", runRoutingSlipCancellations},
		{"routing_slip_create", runRoutingSlipCreations},
		{"chargebacks", runChargebacks},
	}

	for _, r := range runners {
		if err := r.fn(ctx, tc, log.With().Str("pipeline", r.name).Logger()); err != nil {
			log.Error().Err(err).Str("pipeline", r.name).Msg("dispatch pipeline aborted")
			return err
		}
	}
	return nil
}

// runPADPipeline implements the rolled-up PAD dispatch of spec §4.3.
func runPADPipeline(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger) error {
	var accounts []*domain.PaymentAccount
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		accounts, err = tx.PaymentAccounts().ListWithApprovedInvoices(ctx, domain.PaymentMethodPAD)
		return err
	}); err != nil {
		return err
	}

	for _, acct := range accounts {
		if err := dispatchPADForAccount(ctx, tc, log, acct); err != nil {
			log.Error().Err(err).Int32("account_id", acct.ID).Msg("pad dispatch failed for account")
		}
	}
	return nil
}

func dispatchPADForAccount(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, acct *domain.PaymentAccount) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		cfsAcct, err := tx.CfsAccounts().Effective(ctx, acct.ID, domain.PaymentMethodPAD)
		if err != nil {
			return err
		}
		if cfsAcct.Status == domain.CfsAccountFreeze {
			return nil
		}

		invoices, err := tx.Invoices().ApprovedWithoutActiveReference(ctx, acct.ID, domain.PaymentMethodPAD)
		if err != nil || len(invoices) == 0 {
			return err
		}

		newest := newestInvoice(invoices)
		txnNumber := util.DeriveTransactionNumber(newest.ID)
		total := sumInvoiceTotals(invoices)
		lines := lineItemsForInvoices(invoices)

		outcome, err := tc.CFS.CreateAccountInvoice(ctx, cfsAcct, txnNumber, lines)
		if err != nil {
			cfsInvoice, adopted := probeAndAdopt(ctx, tc, log, cfsAcct, newest.ID, total)
			if !adopted {
				return nil
			}
			outcome = domain.DispatchOutcome{Kind: domain.DispatchAdoptedOnProbe, CfsInvoice: cfsInvoice}
		}

		for _, inv := range invoices {
			if err := inv.MarkApprovedWithReference(cfsAcct.ID); err != nil {
				return err
			}
			if err := tx.Invoices().Update(ctx, inv); err != nil {
				return err
			}
			ref := &domain.InvoiceReference{
				InvoiceID:     inv.ID,
				InvoiceNumber: outcome.CfsInvoice.InvoiceNumber,
				ReferenceNum:  outcome.CfsInvoice.PbcRefNumber,
				StatusCode:    domain.InvoiceReferenceActive,
			}
			if _, err := tx.InvoiceReferences().Create(ctx, ref); err != nil {
				return err
			}
		}

		creditTotal := acct.PADCredit
		if total.LessThan(creditTotal) {
			creditTotal = total
		}
		publishEvent(ctx, tc, log, bus.TopicPADInvoiceCreated, map[string]any{
			"account_id":     acct.ID,
			"invoice_number": outcome.CfsInvoice.InvoiceNumber,
			"credit_total":   creditTotal.StringFixed(2),
		})
		return nil
	})
}

// runEFTPipeline dispatches EFT invoices one-to-one with CFS invoices:
// identical probe-and-adopt logic to PAD, but no rollup, since refunds must
// address individual line items (spec §4.3).
func runEFTPipeline(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger) error {
	var invoices []*domain.Invoice
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		invoices, err = tx.Invoices().ListByStatus(ctx, domain.PaymentMethodEFT, domain.InvoiceApproved)
		return err
	}); err != nil {
		return err
	}

	for _, inv := range invoices {
		if err := dispatchEFTInvoice(ctx, tc, log, inv); err != nil {
			log.Error().Err(err).Int32("invoice_id", inv.ID).Msg("eft dispatch failed")
		}
	}
	return nil
}

func dispatchEFTInvoice(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, inv *domain.Invoice) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		locked, err := tx.Invoices().LockForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		if existing, err := tx.InvoiceReferences().Active(ctx, locked.ID); err == nil && existing != nil {
			return nil
		}

		cfsAcct, err := tx.CfsAccounts().Effective(ctx, locked.PaymentAccountID, domain.PaymentMethodEFT)
		if err != nil {
			return err
		}
		if cfsAcct.Status == domain.CfsAccountFreeze {
			return nil
		}

		txnNumber := util.DeriveTransactionNumber(locked.ID)
		lines := lineItemsForInvoices([]*domain.Invoice{locked})

		outcome, err := tc.CFS.CreateAccountInvoice(ctx, cfsAcct, txnNumber, lines)
		if err != nil {
			cfsInvoice, adopted := probeAndAdopt(ctx, tc, log, cfsAcct, locked.ID, locked.Total)
			if !adopted {
				return nil
			}
			outcome = domain.DispatchOutcome{Kind: domain.DispatchAdoptedOnProbe, CfsInvoice: cfsInvoice}
		}

		if err := locked.MarkApprovedWithReference(cfsAcct.ID); err != nil {
			return err
		}
		if err := tx.Invoices().Update(ctx, locked); err != nil {
			return err
		}
		ref := &domain.InvoiceReference{
			InvoiceID:     locked.ID,
			InvoiceNumber: outcome.CfsInvoice.InvoiceNumber,
			ReferenceNum:  outcome.CfsInvoice.PbcRefNumber,
			StatusCode:    domain.InvoiceReferenceActive,
		}
		_, err = tx.InvoiceReferences().Create(ctx, ref)
		return err
	})
}

// runOnlineBankingPipeline transitions CREATED invoices to
// SETTLEMENT_SCHEDULED, one CFS invoice per internal invoice (spec §4.3).
func runOnlineBankingPipeline(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger) error {
	var invoices []*domain.Invoice
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		invoices, err = tx.Invoices().ListByStatus(ctx, domain.PaymentMethodOnlineBank, domain.InvoiceCreated)
		return err
	}); err != nil {
		return err
	}

	for _, inv := range invoices {
		if !domain.IsOnlineBankingAllowed(inv.CorpTypeCode) {
			continue
		}
		if err := dispatchOnlineBankingInvoice(ctx, tc, log, inv); err != nil {
			log.Error().Err(err).Int32("invoice_id", inv.ID).Msg("online banking dispatch failed")
		}
	}
	return nil
}

func dispatchOnlineBankingInvoice(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, inv *domain.Invoice) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		locked, err := tx.Invoices().LockForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		if locked.InvoiceStatusCode != domain.InvoiceCreated {
			return nil
		}

		cfsAcct, err := tx.CfsAccounts().Effective(ctx, locked.PaymentAccountID, domain.PaymentMethodOnlineBank)
		if err != nil {
			return err
		}

		txnNumber := util.DeriveTransactionNumber(locked.ID)
		lines := lineItemsForInvoices([]*domain.Invoice{locked})

		outcome, err := tc.CFS.CreateAccountInvoice(ctx, cfsAcct, txnNumber, lines)
		if err != nil {
			cfsInvoice, adopted := probeAndAdopt(ctx, tc, log, cfsAcct, locked.ID, locked.Total)
			if !adopted {
				return nil
			}
			outcome = domain.DispatchOutcome{Kind: domain.DispatchAdoptedOnProbe, CfsInvoice: cfsInvoice}
		}

		if err := locked.MarkSettlementScheduled(cfsAcct.ID); err != nil {
			return err
		}
		if err := tx.Invoices().Update(ctx, locked); err != nil {
			return err
		}
		ref := &domain.InvoiceReference{
			InvoiceID:     locked.ID,
			InvoiceNumber: outcome.CfsInvoice.InvoiceNumber,
			ReferenceNum:  outcome.CfsInvoice.PbcRefNumber,
			StatusCode:    domain.InvoiceReferenceActive,
		}
		_, err = tx.InvoiceReferences().Create(ctx, ref)
		return err
	})
}

// runRoutingSlipCancellations unwinds REFUND_REQUESTED routing-slip
// invoices before any new routing-slip invoice is created, so a receipt
// freed by cancellation is available to apply this same run (spec §4.3).
func runRoutingSlipCancellations(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger) error {
	var invoices []*domain.Invoice
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		invoices, err = tx.Invoices().ListByStatus(ctx, domain.PaymentMethodRoutingSlip, domain.InvoiceRefundRequested)
		return err
	}); err != nil {
		return err
	}

	for _, inv := range invoices {
		if err := cancelRoutingSlipInvoice(ctx, tc, log, inv); err != nil {
			log.Error().Err(err).Int32("invoice_id", inv.ID).Msg("routing slip cancel failed; left for next run")
		}
	}
	return nil
}

func cancelRoutingSlipInvoice(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, inv *domain.Invoice) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		locked, err := tx.Invoices().LockForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		if locked.InvoiceStatusCode != domain.InvoiceRefundRequested {
			return nil
		}

		completed, err := tx.InvoiceReferences().Completed(ctx, locked.ID)
		if err != nil || len(completed) == 0 {
			return err
		}
		ref := completed[len(completed)-1]

		if locked.CfsAccountID == nil {
			return domain.ErrNoEffectiveCfsAccount
		}
		cfsAcct, err := tx.CfsAccounts().GetByID(ctx, *locked.CfsAccountID)
		if err != nil {
			return err
		}

		receipts, err := tx.Receipts().ListByInvoice(ctx, locked.ID)
		if err != nil {
			return err
		}
		for _, r := range receipts {
			if err := tc.CFS.UnapplyReceipt(ctx, cfsAcct, r.ReceiptNumber, ref.InvoiceNumber); err != nil {
				return err
			}
		}
		if err := tc.CFS.ReverseInvoice(ctx, cfsAcct, ref.InvoiceNumber); err != nil {
			return err
		}

		if err := ref.Cancel(); err != nil {
			return err
		}
		if err := tx.InvoiceReferences().Update(ctx, ref); err != nil {
			return err
		}
		if err := locked.MarkRefunded(tc.Clock.Now()); err != nil {
			return err
		}
		if err := tx.Invoices().Update(ctx, locked); err != nil {
			return err
		}

		publishEvent(ctx, tc, log, bus.TopicInvoiceRefunded, map[string]any{
			"invoice_id":     locked.ID,
			"invoice_number": ref.InvoiceNumber,
		})
		return nil
	})
}

// runRoutingSlipCreations dispatches APPROVED routing-slip invoices and
// immediately applies their receipt, carrying them straight to PAID (spec
// §4.3, §4.5).
func runRoutingSlipCreations(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger) error {
	var invoices []*domain.Invoice
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		invoices, err = tx.Invoices().ListByStatus(ctx, domain.PaymentMethodRoutingSlip, domain.InvoiceApproved)
		return err
	}); err != nil {
		return err
	}

	for _, inv := range invoices {
		if err := createRoutingSlipInvoice(ctx, tc, log, inv); err != nil {
			log.Error().Err(err).Int32("invoice_id", inv.ID).Msg("routing slip creation failed")
		}
	}
	return nil
}

func createRoutingSlipInvoice(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, inv *domain.Invoice) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		locked, err := tx.Invoices().LockForUpdate(ctx, inv.ID)
		if err != nil {
			return err
		}
		if locked.InvoiceStatusCode != domain.InvoiceApproved {
			return nil
		}
		if locked.RoutingSlipNumber == nil {
			return domain.ErrInvalidInput
		}

		rs, err := tx.RoutingSlips().GetByNumber(ctx, *locked.RoutingSlipNumber)
		if err != nil {
			return err
		}

		cfsAcct, err := tx.CfsAccounts().Effective(ctx, rs.PaymentAccountID, domain.PaymentMethodRoutingSlip)
		if err != nil {
			return err
		}
		if !cfsAcct.IsEffective() {
			return domain.ErrNoEffectiveCfsAccount
		}

		txnNumber := util.DeriveTransactionNumber(locked.ID)
		lines := lineItemsForInvoices([]*domain.Invoice{locked})
		outcome, err := tc.CFS.CreateAccountInvoice(ctx, cfsAcct, txnNumber, lines)
		if err != nil {
			cfsInvoice, adopted := probeAndAdopt(ctx, tc, log, cfsAcct, locked.ID, locked.Total)
			if !adopted {
				return nil
			}
			outcome = domain.DispatchOutcome{Kind: domain.DispatchAdoptedOnProbe, CfsInvoice: cfsInvoice}
		}

		if err := applyRoutingSlipReceipt(ctx, tc, cfsAcct, rs, outcome.CfsInvoice.InvoiceNumber); err != nil {
			log.Error().Err(err).Str("routing_slip", rs.Number).Msg("receipt apply failed; invoice left APPROVED")
			return nil
		}

		ref := &domain.InvoiceReference{
			InvoiceID:     locked.ID,
			InvoiceNumber: outcome.CfsInvoice.InvoiceNumber,
			ReferenceNum:  outcome.CfsInvoice.PbcRefNumber,
			StatusCode:    domain.InvoiceReferenceCompleted,
		}
		if _, err := tx.InvoiceReferences().Create(ctx, ref); err != nil {
			return err
		}
		payment := &domain.Payment{
			PaymentAccountID:  rs.PaymentAccountID,
			InvoiceNumber:     outcome.CfsInvoice.InvoiceNumber,
			InvoiceAmount:     locked.Total,
			PaidAmount:        locked.Total,
			PaymentMethodCode: domain.PaymentMethodRoutingSlip,
			PaymentSystemCode: domain.PaymentSystemInternal,
			PaymentStatusCode: domain.PaymentCompleted,
			ReceiptNumber:     stringPtr(rs.ReceiptNumberForApply()),
			PaymentDate:       tc.Clock.Now(),
		}
		if _, err := tx.Payments().Create(ctx, payment); err != nil {
			return err
		}
		if err := locked.MarkPaid(locked.Total, tc.Clock.Now()); err != nil {
			return err
		}
		if err := tx.Invoices().Update(ctx, locked); err != nil {
			return err
		}

		publishEvent(ctx, tc, log, bus.TopicInvoicePaid, map[string]any{
			"invoice_id":     locked.ID,
			"invoice_number": outcome.CfsInvoice.InvoiceNumber,
		})
		return nil
	})
}

// applyRoutingSlipReceipt implements spec §4.5: a linked child applies
// under its parent's CFS account with an "L"-suffixed receipt number; an
// unlinked slip applies its own bare number.
func applyRoutingSlipReceipt(ctx context.Context, tc *appctx.TaskContext, acct *domain.CfsAccount, rs *domain.RoutingSlip, cfsInvoiceNumber string) error {
	return tc.CFS.ApplyReceipt(ctx, acct, rs.ReceiptNumberForApply(), cfsInvoiceNumber)
}

// runChargebacks is a deliberate no-op: the spec names chargebacks as an
// optional sixth pipeline but defines no processing rule for it beyond the
// CHARGEBACK invoice status existing, and this engine has no chargeback
// dispute data model to drive off of yet.
func runChargebacks(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger) error {
	return nil
}

// probeAndAdopt implements spec §4.3 step 5: after a CFS exception, wait a
// grace period, re-derive the deterministic transaction number, GET the CFS
// invoice, and adopt it only if it carries a non-empty invoice_number and its
// total equals the expected total; the invoice_number itself is not compared
// against any expected value. Any mismatch or further failure is logged and
// skipped — nothing is marked.
func probeAndAdopt(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, acct *domain.CfsAccount, newestInvoiceID int32, expectedTotal decimal.Decimal) (*domain.CFSInvoice, bool) {
	probeSleep(probeGracePeriod)
	txnNumber := util.DeriveTransactionNumber(newestInvoiceID)

	cfsInvoice, err := tc.CFS.GetInvoice(ctx, acct, txnNumber)
	if err != nil {
		log.Warn().Err(err).Str("transaction_number", txnNumber).Msg("probe GET failed; skipping batch")
		return nil, false
	}
	if cfsInvoice.InvoiceNumber == "" || !cfsInvoice.Total.Equal(expectedTotal) {
		log.Warn().Str("transaction_number", txnNumber).Msg("probe found mismatched invoice; skipping batch")
		return nil, false
	}
	return cfsInvoice, true
}

func newestInvoice(invoices []*domain.Invoice) *domain.Invoice {
	newest := invoices[0]
	for _, inv := range invoices[1:] {
		if inv.ID > newest.ID {
			newest = inv
		}
	}
	return newest
}

func sumInvoiceTotals(invoices []*domain.Invoice) decimal.Decimal {
	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.Total)
	}
	return total
}

func lineItemsForInvoices(invoices []*domain.Invoice) []domain.LineItem {
	lines := make([]domain.LineItem, 0, len(invoices))
	for _, inv := range invoices {
		lines = append(lines, domain.LineItem{
			Description: "Statutory Fees",
			FilingType:  inv.CorpTypeCode,
			Total:       inv.Total,
		})
	}
	return lines
}

func publishEvent(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, topic string, data any) {
	event := bus.NewEvent(topic, bus.EventSource, data)
	if err := tc.Bus.Publish(ctx, topic, event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

func stringPtr(s string) *string { return &s }
