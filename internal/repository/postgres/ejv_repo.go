package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type ejvRepo struct{ q querier }

const ejvFileColumns = `id, file_type, feedback_file_ref, disbursement_status`

func scanEjvFile(row rowScanner) (*domain.EjvFile, error) {
	var f domain.EjvFile
	var fileType, status string
	var feedbackRef pgtype.Text
	if err := row.Scan(&f.ID, &fileType, &feedbackRef, &status); err != nil {
		return nil, err
	}
	f.FileType = domain.EjvFileType(fileType)
	f.FeedbackFileRef = textToStringPtr(feedbackRef)
	f.DisbursementStatus = domain.DisbursementStatus(status)
	return &f, nil
}

func (r *ejvRepo) GetFileByBatchNumber(ctx context.Context, batchNumber string) (*domain.EjvFile, error) {
	row := r.q.QueryRow(ctx, `
		SELECT f.`+ejvFileColumns+`
		FROM ejv_files f JOIN ejv_headers h ON h.ejv_file_id = f.id
		WHERE h.batch_number = $1 LIMIT 1`, batchNumber)
	f, err := scanEjvFile(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrEjvFileNotFound
		}
		return nil, err
	}
	return f, nil
}

func (r *ejvRepo) UpdateFile(ctx context.Context, f *domain.EjvFile) error {
	_, err := r.q.Exec(ctx, `
		UPDATE ejv_files SET feedback_file_ref = $2, disbursement_status = $3 WHERE id = $1`,
		f.ID, stringPtrToText(f.FeedbackFileRef), string(f.DisbursementStatus))
	return err
}

const ejvHeaderColumns = `id, ejv_file_id, batch_number, status, receipt_number, amount`

func scanEjvHeader(row rowScanner) (*domain.EjvHeader, error) {
	var h domain.EjvHeader
	var status string
	var amount pgtype.Numeric
	if err := row.Scan(&h.ID, &h.EjvFileID, &h.BatchNumber, &status, &h.ReceiptNumber, &amount); err != nil {
		return nil, err
	}
	h.Status = domain.EjvHeaderStatus(status)
	h.Amount = numericToDecimal(amount)
	return &h, nil
}

func (r *ejvRepo) GetHeader(ctx context.Context, id int32) (*domain.EjvHeader, error) {
	row := r.q.QueryRow(ctx, `SELECT `+ejvHeaderColumns+` FROM ejv_headers WHERE id = $1`, id)
	h, err := scanEjvHeader(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrEjvHeaderNotFound
		}
		return nil, err
	}
	return h, nil
}

func (r *ejvRepo) UpdateHeader(ctx context.Context, h *domain.EjvHeader) error {
	_, err := r.q.Exec(ctx, `UPDATE ejv_headers SET status = $2 WHERE id = $1`, h.ID, string(h.Status))
	return err
}

func (r *ejvRepo) GetLink(ctx context.Context, headerID, invoiceID int32) (*domain.EjvLink, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, header_id, invoice_id, link_type, target_id, status
		FROM ejv_links WHERE header_id = $1 AND invoice_id = $2`, headerID, invoiceID)
	var l domain.EjvLink
	var linkType, status string
	var targetID pgtype.Int4
	if err := row.Scan(&l.ID, &l.HeaderID, &l.InvoiceID, &linkType, &targetID, &status); err != nil {
		if notFound(err) {
			return nil, domain.ErrEjvLinkNotFound
		}
		return nil, err
	}
	l.LinkType = domain.EjvLinkType(linkType)
	l.TargetID = int4ToInt32Ptr(targetID)
	l.Status = domain.DisbursementStatus(status)
	return &l, nil
}

func (r *ejvRepo) GetLinkByFile(ctx context.Context, ejvFileID, invoiceID int32) (*domain.EjvLink, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, header_id, ejv_file_id, invoice_id, link_type, target_id, status
		FROM ejv_links WHERE ejv_file_id = $1 AND invoice_id = $2`, ejvFileID, invoiceID)
	var l domain.EjvLink
	var linkType, status string
	var headerID pgtype.Int4
	var fileID pgtype.Int4
	var targetID pgtype.Int4
	if err := row.Scan(&l.ID, &headerID, &fileID, &l.InvoiceID, &linkType, &targetID, &status); err != nil {
		if notFound(err) {
			return nil, domain.ErrEjvLinkNotFound
		}
		return nil, err
	}
	l.HeaderID = headerID.Int32
	l.EjvFileID = int4ToInt32Ptr(fileID)
	l.LinkType = domain.EjvLinkType(linkType)
	l.TargetID = int4ToInt32Ptr(targetID)
	l.Status = domain.DisbursementStatus(status)
	return &l, nil
}

func (r *ejvRepo) UpdateLink(ctx context.Context, l *domain.EjvLink) error {
	_, err := r.q.Exec(ctx, `UPDATE ejv_links SET status = $2 WHERE id = $1`, l.ID, string(l.Status))
	return err
}

func (r *ejvRepo) GetPartnerDisbursement(ctx context.Context, targetType domain.PartnerDisbursementTargetType, targetID int32) (*domain.PartnerDisbursement, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, target_id, target_type, status_code, is_reversal, amount, processed_on
		FROM partner_disbursements WHERE target_type = $1 AND target_id = $2`, string(targetType), targetID)
	var p domain.PartnerDisbursement
	var targetTypeStr, statusCode string
	var amount pgtype.Numeric
	var processedOn pgtype.Timestamptz
	if err := row.Scan(&p.ID, &p.TargetID, &targetTypeStr, &statusCode, &p.IsReversal, &amount, &processedOn); err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	p.TargetType = domain.PartnerDisbursementTargetType(targetTypeStr)
	p.StatusCode = domain.DisbursementStatus(statusCode)
	p.Amount = numericToDecimal(amount)
	p.ProcessedOn = timestamptzToTimePtr(processedOn)
	return &p, nil
}

func (r *ejvRepo) UpdatePartnerDisbursement(ctx context.Context, p *domain.PartnerDisbursement) error {
	_, err := r.q.Exec(ctx, `
		UPDATE partner_disbursements SET status_code = $2, processed_on = $3 WHERE id = $1`,
		p.ID, string(p.StatusCode), timePtrToTimestamptz(p.ProcessedOn))
	return err
}

func (r *ejvRepo) CreateGovernmentPayment(ctx context.Context, p *domain.Payment) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO payments (payment_account_id, invoice_number, invoice_amount, paid_amount,
			payment_method_code, payment_system_code, payment_status_code, receipt_number, payment_date,
			cons_invoice_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.PaymentAccountID, p.InvoiceNumber, decimalToNumeric(p.InvoiceAmount), decimalToNumeric(p.PaidAmount),
		string(p.PaymentMethodCode), string(p.PaymentSystemCode), string(p.PaymentStatusCode),
		stringPtrToText(p.ReceiptNumber), p.PaymentDate, stringPtrToText(p.ConsInvoiceNumber))
	return err
}
