package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type invoiceReferenceRepo struct{ q querier }

const invoiceReferenceColumns = `id, invoice_id, invoice_number, reference_number, status_code`

func scanInvoiceReference(row rowScanner) (*domain.InvoiceReference, error) {
	var r domain.InvoiceReference
	var status string
	if err := row.Scan(&r.ID, &r.InvoiceID, &r.InvoiceNumber, &r.ReferenceNum, &status); err != nil {
		return nil, err
	}
	r.StatusCode = domain.InvoiceReferenceStatus(status)
	return &r, nil
}

func (r *invoiceReferenceRepo) GetByID(ctx context.Context, id int32) (*domain.InvoiceReference, error) {
	row := r.q.QueryRow(ctx, `SELECT `+invoiceReferenceColumns+` FROM invoice_references WHERE id = $1`, id)
	ref, err := scanInvoiceReference(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrInvoiceReferenceNotFound
		}
		return nil, err
	}
	return ref, nil
}

func (r *invoiceReferenceRepo) Active(ctx context.Context, invoiceID int32) (*domain.InvoiceReference, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+invoiceReferenceColumns+` FROM invoice_references
		WHERE invoice_id = $1 AND status_code = 'ACTIVE'`, invoiceID)
	ref, err := scanInvoiceReference(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrInvoiceReferenceNotFound
		}
		return nil, err
	}
	return ref, nil
}

func (r *invoiceReferenceRepo) Completed(ctx context.Context, invoiceID int32) ([]*domain.InvoiceReference, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+invoiceReferenceColumns+` FROM invoice_references
		WHERE invoice_id = $1 AND status_code = 'COMPLETED'
		ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.InvoiceReference
	for rows.Next() {
		ref, err := scanInvoiceReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *invoiceReferenceRepo) ByInvoiceNumber(ctx context.Context, invoiceNumber string) (*domain.InvoiceReference, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+invoiceReferenceColumns+` FROM invoice_references
		WHERE invoice_number = $1
		ORDER BY CASE status_code WHEN 'ACTIVE' THEN 0 ELSE 1 END, id DESC
		LIMIT 1`, invoiceNumber)
	ref, err := scanInvoiceReference(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrInvoiceReferenceNotFound
		}
		return nil, err
	}
	return ref, nil
}

func (r *invoiceReferenceRepo) ListActiveByInvoiceNumber(ctx context.Context, invoiceNumber string) ([]*domain.InvoiceReference, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+invoiceReferenceColumns+` FROM invoice_references
		WHERE invoice_number = $1 AND status_code = 'ACTIVE'
		ORDER BY id`, invoiceNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.InvoiceReference
	for rows.Next() {
		ref, err := scanInvoiceReference(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (r *invoiceReferenceRepo) Create(ctx context.Context, ref *domain.InvoiceReference) (*domain.InvoiceReference, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO invoice_references (invoice_id, invoice_number, reference_number, status_code)
		VALUES ($1, $2, $3, $4)
		RETURNING `+invoiceReferenceColumns,
		ref.InvoiceID, ref.InvoiceNumber, ref.ReferenceNum, string(ref.StatusCode))
	return scanInvoiceReference(row)
}

func (r *invoiceReferenceRepo) Update(ctx context.Context, ref *domain.InvoiceReference) error {
	_, err := r.q.Exec(ctx, `UPDATE invoice_references SET status_code = $2 WHERE id = $1`,
		ref.ID, string(ref.StatusCode))
	return err
}

type paymentRepo struct{ q querier }

const paymentColumns = `id, payment_account_id, invoice_number, invoice_amount, paid_amount,
	payment_method_code, payment_system_code, payment_status_code, receipt_number, payment_date,
	cons_invoice_number`

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	var methodCode, systemCode, statusCode string
	var invoiceAmount, paidAmount pgtype.Numeric
	var receiptNumber, consInvoiceNumber pgtype.Text

	if err := row.Scan(&p.ID, &p.PaymentAccountID, &p.InvoiceNumber, &invoiceAmount, &paidAmount,
		&methodCode, &systemCode, &statusCode, &receiptNumber, &p.PaymentDate, &consInvoiceNumber); err != nil {
		return nil, err
	}
	p.InvoiceAmount = numericToDecimal(invoiceAmount)
	p.PaidAmount = numericToDecimal(paidAmount)
	p.PaymentMethodCode = domain.PaymentMethod(methodCode)
	p.PaymentSystemCode = domain.PaymentSystem(systemCode)
	p.PaymentStatusCode = domain.PaymentStatus(statusCode)
	p.ReceiptNumber = textToStringPtr(receiptNumber)
	p.ConsInvoiceNumber = textToStringPtr(consInvoiceNumber)
	return &p, nil
}

func (r *paymentRepo) GetByInvoiceNumber(ctx context.Context, invoiceNumber string, status domain.PaymentStatus) (*domain.Payment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE invoice_number = $1 AND payment_status_code = $2
		ORDER BY id DESC LIMIT 1`, invoiceNumber, string(status))
	p, err := scanPayment(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *paymentRepo) GetByReceiptNumber(ctx context.Context, receiptNumber string) (*domain.Payment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE receipt_number = $1`, receiptNumber)
	p, err := scanPayment(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *paymentRepo) Create(ctx context.Context, p *domain.Payment) (*domain.Payment, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO payments (payment_account_id, invoice_number, invoice_amount, paid_amount,
			payment_method_code, payment_system_code, payment_status_code, receipt_number, payment_date,
			cons_invoice_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+paymentColumns,
		p.PaymentAccountID, p.InvoiceNumber, decimalToNumeric(p.InvoiceAmount), decimalToNumeric(p.PaidAmount),
		string(p.PaymentMethodCode), string(p.PaymentSystemCode), string(p.PaymentStatusCode),
		stringPtrToText(p.ReceiptNumber), p.PaymentDate, stringPtrToText(p.ConsInvoiceNumber))
	return scanPayment(row)
}

func (r *paymentRepo) Update(ctx context.Context, p *domain.Payment) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payments SET paid_amount = $2, payment_status_code = $3, receipt_number = $4
		WHERE id = $1`, p.ID, decimalToNumeric(p.PaidAmount), string(p.PaymentStatusCode), stringPtrToText(p.ReceiptNumber))
	return err
}

type receiptRepo struct{ q querier }

const receiptColumns = `id, invoice_id, receipt_number, receipt_amount, receipt_date`

func scanReceipt(row rowScanner) (*domain.Receipt, error) {
	var r domain.Receipt
	var amount pgtype.Numeric
	if err := row.Scan(&r.ID, &r.InvoiceID, &r.ReceiptNumber, &amount, &r.ReceiptDate); err != nil {
		return nil, err
	}
	r.ReceiptAmount = numericToDecimal(amount)
	return &r, nil
}

func (r *receiptRepo) GetByInvoiceAndNumber(ctx context.Context, invoiceID int32, receiptNumber string) (*domain.Receipt, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+receiptColumns+` FROM receipts WHERE invoice_id = $1 AND receipt_number = $2`,
		invoiceID, receiptNumber)
	rec, err := scanReceipt(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrReceiptNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *receiptRepo) Create(ctx context.Context, rec *domain.Receipt) (*domain.Receipt, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO receipts (invoice_id, receipt_number, receipt_amount, receipt_date)
		VALUES ($1, $2, $3, $4)
		RETURNING `+receiptColumns,
		rec.InvoiceID, rec.ReceiptNumber, decimalToNumeric(rec.ReceiptAmount), rec.ReceiptDate)
	return scanReceipt(row)
}

func (r *receiptRepo) Update(ctx context.Context, rec *domain.Receipt) error {
	_, err := r.q.Exec(ctx, `UPDATE receipts SET receipt_amount = $2, receipt_date = $3 WHERE id = $1`,
		rec.ID, decimalToNumeric(rec.ReceiptAmount), rec.ReceiptDate)
	return err
}

func (r *receiptRepo) Delete(ctx context.Context, id int32) error {
	_, err := r.q.Exec(ctx, `DELETE FROM receipts WHERE id = $1`, id)
	return err
}

func (r *receiptRepo) ListByInvoice(ctx context.Context, invoiceID int32) ([]*domain.Receipt, error) {
	rows, err := r.q.Query(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
