package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type eftRepo struct{ q querier }

const shortNameColumns = `id, short_name, credit_balance`

func scanShortName(row rowScanner) (*domain.EFTShortName, error) {
	var s domain.EFTShortName
	var balance pgtype.Numeric
	if err := row.Scan(&s.ID, &s.ShortName, &balance); err != nil {
		return nil, err
	}
	s.CreditBalance = numericToDecimal(balance)
	return &s, nil
}

func (r *eftRepo) GetShortNameByName(ctx context.Context, name string) (*domain.EFTShortName, error) {
	row := r.q.QueryRow(ctx, `SELECT `+shortNameColumns+` FROM eft_short_names WHERE short_name = $1`, name)
	s, err := scanShortName(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrShortNameNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *eftRepo) GetShortNameByID(ctx context.Context, id int32) (*domain.EFTShortName, error) {
	row := r.q.QueryRow(ctx, `SELECT `+shortNameColumns+` FROM eft_short_names WHERE id = $1`, id)
	s, err := scanShortName(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrShortNameNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *eftRepo) CreateShortName(ctx context.Context, s *domain.EFTShortName) (*domain.EFTShortName, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO eft_short_names (short_name, credit_balance) VALUES ($1, $2)
		RETURNING `+shortNameColumns, s.ShortName, decimalToNumeric(s.CreditBalance))
	return scanShortName(row)
}

func (r *eftRepo) UpdateShortName(ctx context.Context, s *domain.EFTShortName) error {
	_, err := r.q.Exec(ctx, `UPDATE eft_short_names SET credit_balance = $2 WHERE id = $1`,
		s.ID, decimalToNumeric(s.CreditBalance))
	return err
}

const eftCreditColumns = `id, short_name_id, eft_file_id, transaction_id, amount, remaining_amount`

func scanEFTCredit(row rowScanner) (*domain.EFTCredit, error) {
	var c domain.EFTCredit
	var amount, remaining pgtype.Numeric
	if err := row.Scan(&c.ID, &c.ShortNameID, &c.EftFileID, &c.TransactionID, &amount, &remaining); err != nil {
		return nil, err
	}
	c.Amount = numericToDecimal(amount)
	c.RemainingAmount = numericToDecimal(remaining)
	return &c, nil
}

func (r *eftRepo) GetCreditByTxn(ctx context.Context, fileID int32, shortNameID int32, transactionID string) (*domain.EFTCredit, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+eftCreditColumns+` FROM eft_credits
		WHERE eft_file_id = $1 AND short_name_id = $2 AND transaction_id = $3`,
		fileID, shortNameID, transactionID)
	c, err := scanEFTCredit(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrEFTCreditNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *eftRepo) CreateCredit(ctx context.Context, c *domain.EFTCredit) (*domain.EFTCredit, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO eft_credits (short_name_id, eft_file_id, transaction_id, amount, remaining_amount)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+eftCreditColumns,
		c.ShortNameID, c.EftFileID, c.TransactionID, decimalToNumeric(c.Amount), decimalToNumeric(c.RemainingAmount))
	return scanEFTCredit(row)
}

func (r *eftRepo) UpdateCredit(ctx context.Context, c *domain.EFTCredit) error {
	_, err := r.q.Exec(ctx, `UPDATE eft_credits SET remaining_amount = $2 WHERE id = $1`,
		c.ID, decimalToNumeric(c.RemainingAmount))
	return err
}

func (r *eftRepo) ListCreditsWithRemaining(ctx context.Context, shortNameID int32) ([]*domain.EFTCredit, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+eftCreditColumns+` FROM eft_credits
		WHERE short_name_id = $1 AND remaining_amount > 0
		ORDER BY id`, shortNameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EFTCredit
	for rows.Next() {
		c, err := scanEFTCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *eftRepo) ListActiveLinksForShortName(ctx context.Context, shortNameID int32) ([]*domain.EFTShortNameLink, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, short_name_id, account_id, status FROM eft_short_name_links
		WHERE short_name_id = $1 AND status = 'LINKED'
		ORDER BY id`, shortNameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EFTShortNameLink
	for rows.Next() {
		var l domain.EFTShortNameLink
		var status string
		if err := rows.Scan(&l.ID, &l.ShortNameID, &l.AccountID, &status); err != nil {
			return nil, err
		}
		l.Status = domain.EFTShortNameLinkStatus(status)
		out = append(out, &l)
	}
	return out, rows.Err()
}

// ListPendingLinkRollups groups PENDING EFTCreditInvoiceLink rows by
// (invoice_id, receipt_number) into the per-group totals spec §4.8 requires
// before a single CFS receipt is applied per group.
func (r *eftRepo) ListPendingLinkRollups(ctx context.Context, status domain.EFTCreditInvoiceLinkStatus) ([]*domain.EFTLinkRollup, error) {
	rows, err := r.q.Query(ctx, `
		SELECT MIN(link_group_id), invoice_id, receipt_number, SUM(amount), array_agg(id)
		FROM eft_credit_invoice_links
		WHERE status_code = $1
		GROUP BY invoice_id, receipt_number
		ORDER BY MIN(link_group_id)`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EFTLinkRollup
	for rows.Next() {
		var rollup domain.EFTLinkRollup
		var amount pgtype.Numeric
		var receiptNumber pgtype.Text
		if err := rows.Scan(&rollup.LinkGroupID, &rollup.InvoiceID, &receiptNumber, &amount, &rollup.LinkIDs); err != nil {
			return nil, err
		}
		rollup.Amount = numericToDecimal(amount)
		rollup.ReceiptNumber = textToStringPtr(receiptNumber)
		out = append(out, &rollup)
	}
	return out, rows.Err()
}

func (r *eftRepo) GetLink(ctx context.Context, id int32) (*domain.EFTCreditInvoiceLink, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, eft_credit_id, invoice_id, amount, status_code, receipt_number, link_group_id
		FROM eft_credit_invoice_links WHERE id = $1`, id)
	var l domain.EFTCreditInvoiceLink
	var amount pgtype.Numeric
	var status string
	var receiptNumber pgtype.Text
	if err := row.Scan(&l.ID, &l.EftCreditID, &l.InvoiceID, &amount, &status, &receiptNumber, &l.LinkGroupID); err != nil {
		if notFound(err) {
			return nil, domain.ErrEFTLinkNotFound
		}
		return nil, err
	}
	l.Amount = numericToDecimal(amount)
	l.StatusCode = domain.EFTCreditInvoiceLinkStatus(status)
	l.ReceiptNumber = textToStringPtr(receiptNumber)
	return &l, nil
}

func (r *eftRepo) CreateLink(ctx context.Context, l *domain.EFTCreditInvoiceLink) (*domain.EFTCreditInvoiceLink, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO eft_credit_invoice_links (eft_credit_id, invoice_id, amount, status_code, receipt_number, link_group_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, eft_credit_id, invoice_id, amount, status_code, receipt_number, link_group_id`,
		l.EftCreditID, l.InvoiceID, decimalToNumeric(l.Amount), string(l.StatusCode), stringPtrToText(l.ReceiptNumber), l.LinkGroupID)

	var out domain.EFTCreditInvoiceLink
	var amount pgtype.Numeric
	var status string
	var receiptNumber pgtype.Text
	if err := row.Scan(&out.ID, &out.EftCreditID, &out.InvoiceID, &amount, &status, &receiptNumber, &out.LinkGroupID); err != nil {
		return nil, err
	}
	out.Amount = numericToDecimal(amount)
	out.StatusCode = domain.EFTCreditInvoiceLinkStatus(status)
	out.ReceiptNumber = textToStringPtr(receiptNumber)
	return &out, nil
}

func (r *eftRepo) UpdateLink(ctx context.Context, l *domain.EFTCreditInvoiceLink) error {
	_, err := r.q.Exec(ctx, `
		UPDATE eft_credit_invoice_links SET status_code = $2, receipt_number = $3 WHERE id = $1`,
		l.ID, string(l.StatusCode), stringPtrToText(l.ReceiptNumber))
	return err
}

// NextLinkGroupID draws from a dedicated sequence so every link row created
// for one apply-pending decision (spec §4.7, §4.8) shares one group id.
func (r *eftRepo) NextLinkGroupID(ctx context.Context) (int32, error) {
	var id int32
	err := r.q.QueryRow(ctx, `SELECT nextval('eft_credit_invoice_links_link_group_id_seq')::int`).Scan(&id)
	return id, err
}

func (r *eftRepo) AddHistory(ctx context.Context, h *domain.ShortNameHistoryEntry) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO eft_short_name_history (short_name_id, description, credit_balance, link_group_id, hidden, is_processing)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ShortNameID, h.Description, decimalToNumeric(h.CreditBalance), int32ToInt4Ptr(h.LinkGroupID), h.Hidden, h.IsProcessing)
	return err
}

func (r *eftRepo) FinalizeHistoryForGroup(ctx context.Context, linkGroupID int32) error {
	_, err := r.q.Exec(ctx, `
		UPDATE eft_short_name_history SET is_processing = false WHERE link_group_id = $1`, linkGroupID)
	return err
}

const eftFileColumns = `id, file_name, status, processed_on`

func scanEftFile(row rowScanner) (*domain.EftFile, error) {
	var f domain.EftFile
	var status string
	var processedOn pgtype.Timestamptz
	if err := row.Scan(&f.ID, &f.FileName, &status, &processedOn); err != nil {
		return nil, err
	}
	f.Status = domain.EftFileStatus(status)
	f.ProcessedOn = timestamptzToTimePtr(processedOn)
	return &f, nil
}

func (r *eftRepo) GetEftFile(ctx context.Context, fileName string) (*domain.EftFile, error) {
	row := r.q.QueryRow(ctx, `SELECT `+eftFileColumns+` FROM eft_files WHERE file_name = $1`, fileName)
	f, err := scanEftFile(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (r *eftRepo) CreateEftFile(ctx context.Context, f *domain.EftFile) (*domain.EftFile, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO eft_files (file_name, status) VALUES ($1, $2)
		RETURNING `+eftFileColumns, f.FileName, string(f.Status))
	return scanEftFile(row)
}

func (r *eftRepo) UpdateEftFile(ctx context.Context, f *domain.EftFile) error {
	var processedOn time.Time
	if f.ProcessedOn != nil {
		processedOn = *f.ProcessedOn
	}
	_, err := r.q.Exec(ctx, `UPDATE eft_files SET status = $2, processed_on = $3 WHERE id = $1`,
		f.ID, string(f.Status), timeToTimestamptz(processedOn))
	return err
}

func (r *eftRepo) GetRefundByID(ctx context.Context, id int32) (*domain.EFTRefund, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, short_name_id, amount, status, disbursement_date FROM eft_refunds WHERE id = $1`, id)
	var ref domain.EFTRefund
	var amount pgtype.Numeric
	var status string
	var disbursementDate pgtype.Timestamptz
	if err := row.Scan(&ref.ID, &ref.ShortNameID, &amount, &status, &disbursementDate); err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	ref.Amount = numericToDecimal(amount)
	ref.Status = domain.DisbursementStatus(status)
	ref.DisbursementDate = timestamptzToTimePtr(disbursementDate)
	return &ref, nil
}

func (r *eftRepo) UpdateRefund(ctx context.Context, ref *domain.EFTRefund) error {
	var disbursementDate time.Time
	if ref.DisbursementDate != nil {
		disbursementDate = *ref.DisbursementDate
	}
	_, err := r.q.Exec(ctx, `UPDATE eft_refunds SET status = $2, disbursement_date = $3 WHERE id = $1`,
		ref.ID, string(ref.Status), timeToTimestamptz(disbursementDate))
	return err
}
