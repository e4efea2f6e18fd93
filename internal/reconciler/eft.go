package reconciler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/bcgov/sbc-pay-sub002/internal/appctx"
	"github.com/bcgov/sbc-pay-sub002/internal/domain"
	"github.com/bcgov/sbc-pay-sub002/internal/errkind"
	"github.com/bcgov/sbc-pay-sub002/internal/parser"
)

// RunTDI17Reconciliation ingests one TDI17 EFT deposit file in the three
// phases spec §4.7 describes: parse & validate the whole file before
// committing anything, book an EFTCredit per short name per deposit line,
// then apply any short-name link whose amount owing now fits the link's
// short name credit balance.
func RunTDI17Reconciliation(ctx context.Context, tc *appctx.TaskContext, location, fileName string) error {
	log := tc.Log.With().Str("task", "tdi17_reconciliation").Str("file", fileName).Logger()

	file, proceed, err := beginEftFile(ctx, tc, fileName)
	if err != nil {
		return err
	}
	if !proceed {
		log.Info().Msg("eft file already in progress or completed; skipping")
		return nil
	}

	raw, err := tc.ObjectStore.Fetch(ctx, location, fileName)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) < 2 {
		return failEftFile(ctx, tc, log, file, fmt.Errorf("tdi17 file %s has no detail rows", fileName))
	}

	header := parser.ParseTDI17Header(lines[0], 0)
	trailer := parser.ParseTDI17Trailer(lines[len(lines)-1], len(lines)-1)
	if len(header.Errors) > 0 {
		return failEftFile(ctx, tc, log, file, fmt.Errorf("tdi17 file %s has an invalid header: %v", fileName, header.Errors))
	}
	if len(trailer.Errors) > 0 {
		return failEftFile(ctx, tc, log, file, fmt.Errorf("tdi17 file %s has an invalid trailer: %v", fileName, trailer.Errors))
	}

	type parsedDetail struct {
		lineIndex int
		detail    *parser.TDI17Detail
	}
	var details []parsedDetail
	for i := 1; i < len(lines)-1; i++ {
		detail, isEFT := parser.ParseTDI17Detail(lines[i], i)
		if !isEFT {
			continue
		}
		details = append(details, parsedDetail{lineIndex: i, detail: detail})
	}

	// Spec §4.7: a file is parsed as a whole before any credit is booked, so
	// a single bad detail row fails the entire file rather than leaving a
	// partial balance to apply against.
	for _, pd := range details {
		if len(pd.detail.Errors) > 0 {
			return failEftFile(ctx, tc, log, file, fmt.Errorf("tdi17 file %s line %d: %v", fileName, pd.lineIndex, pd.detail.Errors))
		}
	}

	touchedShortNames := map[string]bool{}
	for _, pd := range details {
		shortName, err := bookDetailCredit(ctx, tc, file.ID, pd.detail)
		if err != nil {
			return failEftFile(ctx, tc, log, file, fmt.Errorf("tdi17 file %s line %d: %w", fileName, pd.lineIndex, err))
		}
		if shortName != "" {
			touchedShortNames[shortName] = true
		}
	}

	if err := completeEftFile(ctx, tc, file); err != nil {
		return err
	}

	// Apply-pending runs after the file's own transaction commits, so a
	// failure here never re-opens the now-COMPLETED file (spec §4.7).
	for shortName := range touchedShortNames {
		if err := applyPendingForShortName(ctx, tc, log, shortName); err != nil {
			log.Error().Err(err).Str("short_name", shortName).Msg("eft apply-pending failed")
		}
	}
	return nil
}

// beginEftFile claims fileName for processing, returning proceed=false if a
// prior run already has it IN_PROGRESS or COMPLETED (spec §4.7, §5).
func beginEftFile(ctx context.Context, tc *appctx.TaskContext, fileName string) (file *domain.EftFile, proceed bool, err error) {
	err = tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		existing, err := tx.EFT().GetEftFile(ctx, fileName)
		if err != nil && err != domain.ErrNotFound {
			return err
		}
		if existing != nil {
			if existing.Status == domain.EftFileInProgress || existing.Status == domain.EftFileCompleted {
				file = existing
				return nil
			}
		}
		if existing == nil {
			created, err := tx.EFT().CreateEftFile(ctx, &domain.EftFile{FileName: fileName, Status: domain.EftFileInProgress})
			if err != nil {
				return err
			}
			file = created
			proceed = true
			return nil
		}
		existing.Status = domain.EftFileInProgress
		if err := tx.EFT().UpdateEftFile(ctx, existing); err != nil {
			return err
		}
		file = existing
		proceed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !proceed {
		return file, false, nil
	}
	return file, true, nil
}

func failEftFile(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, file *domain.EftFile, cause error) error {
	log.Error().Err(cause).Msg("tdi17 file failed")
	err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		file.Status = domain.EftFileFailed
		return tx.EFT().UpdateEftFile(ctx, file)
	})
	if err != nil {
		return err
	}
	return errkind.Wrap(errkind.Parse, cause)
}

func completeEftFile(ctx context.Context, tc *appctx.TaskContext, file *domain.EftFile) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		now := tc.Clock.Now()
		file.Status = domain.EftFileCompleted
		file.ProcessedOn = &now
		return tx.EFT().UpdateEftFile(ctx, file)
	})
}

// bookDetailCredit credits one deposit line to its short name, deriving the
// short name from the transaction description (spec §4.7, grounded on the
// original's per-line-index transaction identity). Skips lines with a
// non-positive deposit amount, same as the original.
func bookDetailCredit(ctx context.Context, tc *appctx.TaskContext, eftFileID int32, detail *parser.TDI17Detail) (string, error) {
	if detail.DepositAmountCADCents <= 0 {
		return "", nil
	}
	shortName := parser.ShortNameFromDescription(detail.TransactionDescription)
	if shortName == "" {
		return "", nil
	}
	transactionID := detail.TransactionSequence
	if transactionID == "" {
		transactionID = fmt.Sprintf("L%d", detail.LineIndex)
	}
	amount := decimal.New(detail.DepositAmountCADCents, -2)

	err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		sn, err := tx.EFT().GetShortNameByName(ctx, shortName)
		if err == domain.ErrShortNameNotFound {
			sn, err = tx.EFT().CreateShortName(ctx, &domain.EFTShortName{ShortName: shortName, CreditBalance: decimal.Zero})
		}
		if err != nil {
			return err
		}

		if existing, err := tx.EFT().GetCreditByTxn(ctx, eftFileID, sn.ID, transactionID); err == nil && existing != nil {
			return nil
		} else if err != nil && err != domain.ErrEFTCreditNotFound {
			return err
		}

		if _, err := tx.EFT().CreateCredit(ctx, &domain.EFTCredit{
			ShortNameID:     sn.ID,
			EftFileID:       eftFileID,
			TransactionID:   transactionID,
			Amount:          amount,
			RemainingAmount: amount,
		}); err != nil {
			return err
		}

		sn.CreditBalance = sn.CreditBalance.Add(amount)
		if err := tx.EFT().UpdateShortName(ctx, sn); err != nil {
			return err
		}

		return tx.EFT().AddHistory(ctx, &domain.ShortNameHistoryEntry{
			ShortNameID:   sn.ID,
			Description:   "Funds Received",
			CreditBalance: sn.CreditBalance,
		})
	})
	if err != nil {
		return "", err
	}
	return shortName, nil
}

// applyPendingForShortName mirrors the original's "apply pending payments"
// pass (spec §4.7): for every account linked to shortName whose amount owing
// is positive and fits within the short name's current credit balance,
// create PENDING EFTCreditInvoiceLink rows against the account's oldest
// already-dispatched EFT invoices. The eft_credit_link_apply task (spec
// §4.8) later turns those PENDING rows into an actual CFS receipt.
func applyPendingForShortName(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, shortName string) error {
	var sn *domain.EFTShortName
	var links []*domain.EFTShortNameLink
	if err := tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		var err error
		sn, err = tx.EFT().GetShortNameByName(ctx, shortName)
		if err != nil {
			return err
		}
		links, err = tx.EFT().ListActiveLinksForShortName(ctx, sn.ID)
		return err
	}); err != nil {
		return err
	}

	for _, link := range links {
		if err := applyPendingForLink(ctx, tc, log, sn.ID, link.AccountID); err != nil {
			log.Error().Err(err).Int32("account_id", link.AccountID).Msg("eft link apply failed")
		}
	}
	return nil
}

// applyPendingForLink links as much of one account's oldest outstanding EFT
// invoices as the short name's credit balance allows, oldest invoice first,
// creating one link_group_id per invoice so the later apply task can pay
// each down independently.
func applyPendingForLink(ctx context.Context, tc *appctx.TaskContext, log zerolog.Logger, shortNameID, accountID int32) error {
	return tc.Store.WithRetry(ctx, func(tx domain.Tx) error {
		shortName, err := tx.EFT().GetShortNameByID(ctx, shortNameID)
		if err != nil {
			return err
		}
		available := shortName.CreditBalance
		if available.LessThanOrEqual(decimal.Zero) {
			return nil
		}

		invoices, err := tx.Invoices().ListByStatus(ctx, domain.PaymentMethodEFT, domain.InvoiceApproved)
		if err != nil {
			return err
		}
		for _, inv := range invoices {
			if inv.PaymentAccountID != accountID || inv.CfsAccountID == nil {
				continue
			}
			owing := inv.Total.Sub(inv.Paid)
			if owing.LessThanOrEqual(decimal.Zero) || owing.GreaterThan(available) {
				continue
			}
			if _, err := tx.InvoiceReferences().Active(ctx, inv.ID); err != nil {
				// No active CFS dispatch yet for this invoice; nothing to link against.
				continue
			}

			if err := linkCreditsToInvoice(ctx, tx, shortNameID, inv.ID, owing); err != nil {
				return err
			}
			available = available.Sub(owing)
			log.Info().Int32("invoice_id", inv.ID).Int32("account_id", accountID).Msg("eft credit link created")
		}
		return nil
	})
}

// linkCreditsToInvoice draws amount down from the short name's oldest
// EFTCredit rows with remaining balance, creating one PENDING
// EFTCreditInvoiceLink per credit consumed, all sharing a freshly allocated
// link_group_id (spec §4.7, §4.8).
func linkCreditsToInvoice(ctx context.Context, tx domain.Tx, shortNameID, invoiceID int32, amount decimal.Decimal) error {
	groupID, err := tx.EFT().NextLinkGroupID(ctx)
	if err != nil {
		return err
	}

	remaining := amount
	credits, err := tx.EFT().ListCreditsWithRemaining(ctx, shortNameID)
	if err != nil {
		return err
	}
	for _, credit := range credits {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		draw := credit.RemainingAmount
		if draw.GreaterThan(remaining) {
			draw = remaining
		}
		credit.RemainingAmount = credit.RemainingAmount.Sub(draw)
		if err := tx.EFT().UpdateCredit(ctx, credit); err != nil {
			return err
		}
		if _, err := tx.EFT().CreateLink(ctx, &domain.EFTCreditInvoiceLink{
			EftCreditID: credit.ID,
			InvoiceID:   invoiceID,
			Amount:      draw,
			StatusCode:  domain.EFTLinkPending,
			LinkGroupID: groupID,
		}); err != nil {
			return err
		}
		remaining = remaining.Sub(draw)
	}
	if remaining.GreaterThan(decimal.Zero) {
		return fmt.Errorf("%w: short name %d short by %s", domain.ErrEFTCreditNotFound, shortNameID, remaining.StringFixed(2))
	}

	shortName, err := tx.EFT().GetShortNameByID(ctx, shortNameID)
	if err != nil {
		return err
	}
	shortName.CreditBalance = shortName.CreditBalance.Sub(amount)
	if err := tx.EFT().UpdateShortName(ctx, shortName); err != nil {
		return err
	}
	return tx.EFT().AddHistory(ctx, &domain.ShortNameHistoryEntry{
		ShortNameID:   shortNameID,
		Description:   "Funds Applied To Invoice",
		CreditBalance: shortName.CreditBalance,
		LinkGroupID:   &groupID,
		IsProcessing:  true,
	})
}
