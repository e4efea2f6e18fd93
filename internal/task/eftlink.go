package task

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/bus"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// eftReceiptPrefix prefixes the synthetic CFS receipt number this task
// mints when applying a rolled-up EFT credit (spec §4.8).
const eftReceiptPrefix = "EFTCIL"

// RunEFTCreditLinkApply drives the EFTCreditInvoiceLink application task of
// spec §4.8: PENDING links pay an invoice down, PENDING_REFUND links
// reverse a prior application. overdueAccountIDs is a per-invocation
// local, never package state, so concurrent runs never share mutable
// accumulators (spec §5, §9).
func RunEFTCreditLinkApply(ctx context.Context, tc *appctx.TaskContext) error {
	log := tc.Log.With().Str("task", "eft_credit_link_apply").Logger()

	overdueAccountIDs := map[int32]bool{}

	if err := applyPendingRollups(ctx, tc, log, overdueAccountIDs); err != nil {
		return err
	}
	if err := applyPendingRefundRollups(ctx, tc, log); err != nil {
		return err
	}

	for accountID := range overdueAccountIDs {
		clearOverdueIfResolved(ctx, tc, log, accountID)
	}
	return nil
}

func applyPendingRollups(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, overdueAccountIDs map[int32]bool) error {
	var rollups []*domain.EFTLinkRollup
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		rollups, err = tx.EFT().ListPendingLinkRollups(ctx, domain.EFTLinkPending)
		return err
	}); err != nil {
		return err
	}

	for _, rollup := range rollups {
		wasOverdue, accountID, err := applyRollup(ctx, tc, log, rollup)
		if err != nil {
			log.Error().Err(err).Int32("link_group_id", rollup.LinkGroupID).Msg("eft link rollup apply failed")
			continue
		}
		if wasOverdue {
			overdueAccountIDs[accountID] = true
		}
	}
	return nil
}

func applyRollup(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, rollup *domain.EFTLinkRollup) (wasOverdue bool, accountID int32, err error) {
	err = tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		inv, err := tx.Invoices().LockForUpdate(ctx, rollup.InvoiceID)
		if err != nil {
			return err
		}
		if !inv.Total.Equal(rollup.Amount) {
			return domain.ErrInvoiceAmountMismatch
		}
		accountID = inv.PaymentAccountID
		wasOverdue = inv.InvoiceStatusCode == domain.InvoiceOverdue

		ref, err := tx.InvoiceReferences().Active(ctx, inv.ID)
		if err != nil {
			return err
		}

		cfsAcct, err := tx.CfsAccounts().Effective(ctx, inv.PaymentAccountID, domain.PaymentMethodEFT)
		if err != nil {
			return err
		}

		receiptNumber := eftReceiptPrefix + strconv.FormatInt(int64(rollup.LinkGroupID), 10)
		if err := tc.CFS.CreateReceipt(ctx, cfsAcct, receiptNumber, tc.Clock.Now(), rollup.Amount, domain.PaymentMethodEFT); err != nil {
			return err
		}
		if err := tc.CFS.ApplyReceipt(ctx, cfsAcct, receiptNumber, ref.InvoiceNumber); err != nil {
			return err
		}

		if err := ref.Complete(); err != nil {
			return err
		}
		if err := tx.InvoiceReferences().Update(ctx, ref); err != nil {
			return err
		}

		if _, err := tx.Receipts().Create(ctx, &domain.Receipt{
			InvoiceID:     inv.ID,
			ReceiptNumber: receiptNumber,
			ReceiptAmount: rollup.Amount,
			ReceiptDate:   tc.Clock.Now(),
		}); err != nil {
			return err
		}
		if _, err := tx.Payments().Create(ctx, &domain.Payment{
			PaymentAccountID:  inv.PaymentAccountID,
			InvoiceNumber:     ref.InvoiceNumber,
			InvoiceAmount:     inv.Total,
			PaidAmount:        rollup.Amount,
			PaymentMethodCode: domain.PaymentMethodEFT,
			PaymentSystemCode: domain.PaymentSystemEFT,
			PaymentStatusCode: domain.PaymentCompleted,
			ReceiptNumber:     &receiptNumber,
			PaymentDate:       tc.Clock.Now(),
		}); err != nil {
			return err
		}

		if err := inv.MarkPaid(rollup.Amount, tc.Clock.Now()); err != nil {
			return err
		}
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return err
		}

		for _, linkID := range rollup.LinkIDs {
			link, err := tx.EFT().GetLink(ctx, linkID)
			if err != nil {
				return err
			}
			link.StatusCode = domain.EFTLinkCompleted
			link.ReceiptNumber = &receiptNumber
			if err := tx.EFT().UpdateLink(ctx, link); err != nil {
				return err
			}
		}
		if err := tx.EFT().FinalizeHistoryForGroup(ctx, rollup.LinkGroupID); err != nil {
			return err
		}

		publishEvent(ctx, tc, log, bus.TopicInvoicePaid, map[string]any{
			"invoice_id":     inv.ID,
			"invoice_number": ref.InvoiceNumber,
			"receipt_number": receiptNumber,
		})
		return nil
	})
	return wasOverdue, accountID, err
}

// applyPendingRefundRollups reverses PENDING_REFUND link rollups
// symmetrically: CFS receipt reversed, InvoiceReference and invoice state
// walked back, Receipt row deleted, Payment marked FAILED (the Payment row
// is not deleted), links moved to REFUNDED (spec §4.8).
func applyPendingRefundRollups(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger) error {
	var rollups []*domain.EFTLinkRollup
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		rollups, err = tx.EFT().ListPendingLinkRollups(ctx, domain.EFTLinkPendingRefund)
		return err
	}); err != nil {
		return err
	}

	for _, rollup := range rollups {
		if err := reverseRollup(ctx, tc, log, rollup); err != nil {
			log.Error().Err(err).Int32("link_group_id", rollup.LinkGroupID).Msg("eft link rollup reversal failed")
		}
	}
	return nil
}

func reverseRollup(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, rollup *domain.EFTLinkRollup) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		inv, err := tx.Invoices().LockForUpdate(ctx, rollup.InvoiceID)
		if err != nil {
			return err
		}
		active, err := tx.InvoiceReferences().Active(ctx, inv.ID)
		var completed []*domain.InvoiceReference
		if err != nil {
			completed, err = tx.InvoiceReferences().Completed(ctx, inv.ID)
			if err != nil || len(completed) == 0 {
				return err
			}
			active = completed[len(completed)-1]
		}

		cfsAcct, err := tx.CfsAccounts().Effective(ctx, inv.PaymentAccountID, domain.PaymentMethodEFT)
		if err != nil {
			return err
		}
		if rollup.ReceiptNumber != nil {
			if err := tc.CFS.UnapplyReceipt(ctx, cfsAcct, *rollup.ReceiptNumber, active.InvoiceNumber); err != nil {
				return err
			}
		}

		fullRefund := inv.Paid.Equal(rollup.Amount)
		if fullRefund {
			if err := tc.CFS.ReverseInvoice(ctx, cfsAcct, active.InvoiceNumber); err != nil {
				return err
			}
			if err := active.Cancel(); err != nil {
				return err
			}
			if err := inv.MarkRefunded(tc.Clock.Now()); err != nil {
				return err
			}
		} else {
			negative := rollup.Amount.Neg()
			if err := tc.CFS.AdjustInvoice(ctx, cfsAcct, active.InvoiceNumber, negative, "eft credit link reversal"); err != nil {
				return err
			}
			if err := active.Reactivate(); err != nil {
				return err
			}
			if err := inv.RevertToSettlementScheduled(); err != nil {
				return err
			}
		}
		if err := tx.InvoiceReferences().Update(ctx, active); err != nil {
			return err
		}
		if err := tx.Invoices().Update(ctx, inv); err != nil {
			return err
		}

		if rollup.ReceiptNumber != nil {
			if r, err := tx.Receipts().GetByInvoiceAndNumber(ctx, inv.ID, *rollup.ReceiptNumber); err == nil {
				if err := tx.Receipts().Delete(ctx, r.ID); err != nil {
					return err
				}
			}
			if p, err := tx.Payments().GetByReceiptNumber(ctx, *rollup.ReceiptNumber); err == nil {
				p.PaymentStatusCode = domain.PaymentFailed
				if err := tx.Payments().Update(ctx, p); err != nil {
					return err
				}
			}
		}

		for _, linkID := range rollup.LinkIDs {
			link, err := tx.EFT().GetLink(ctx, linkID)
			if err != nil {
				return err
			}
			link.StatusCode = domain.EFTLinkRefunded
			if err := tx.EFT().UpdateLink(ctx, link); err != nil {
				return err
			}
		}
		if err := tx.EFT().FinalizeHistoryForGroup(ctx, rollup.LinkGroupID); err != nil {
			return err
		}

		publishEvent(ctx, tc, log, bus.TopicInvoiceRefunded, map[string]any{
			"invoice_id": inv.ID,
		})
		return nil
	})
}

// clearOverdueIfResolved clears has_overdue_invoices and publishes an
// unlock event once none of an account's EFT invoices remain OVERDUE (spec
// §4.8). Scoped to EFT since that is the only method this task's rollups
// touch.
func clearOverdueIfResolved(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, accountID int32) {
	err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		stillOverdue, err := tx.Invoices().ListByStatus(ctx, domain.PaymentMethodEFT, domain.InvoiceOverdue)
		if err != nil {
			return err
		}
		for _, inv := range stillOverdue {
			if inv.PaymentAccountID == accountID {
				return nil
			}
		}

		acct, err := tx.PaymentAccounts().LockForUpdate(ctx, accountID)
		if err != nil {
			return err
		}
		if acct.HasOverdueInvoice == nil {
			return nil
		}
		acct.HasOverdueInvoice = nil
		if err := tx.PaymentAccounts().Update(ctx, acct); err != nil {
			return err
		}

		publishEvent(ctx, tc, log, bus.TopicAccountUnlocked, map[string]any{"account_id": accountID})
		return nil
	})
	if err != nil {
		log.Error().Err(err).Int32("account_id", accountID).Msg("overdue clear failed")
	}
}
