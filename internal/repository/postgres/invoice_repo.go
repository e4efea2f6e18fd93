package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type invoiceRepo struct{ q querier }

const invoiceColumns = `id, payment_account_id, cfs_account_id, total, paid, refund, service_fees,
	corp_type_code, business_identifier, payment_method_code, invoice_status_code,
	disbursement_status, disbursement_reversal, payment_date, refund_date, disbursement_date,
	routing_slip_number, details, created_on`

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	var cfsAccountID pgtype.Int4
	var total, paid, refund, serviceFees pgtype.Numeric
	var methodCode, statusCode, disbursementStatus string
	var disbursementReversal, paymentDate, refundDate, disbursementDate pgtype.Timestamptz
	var routingSlipNumber pgtype.Text
	var details []byte

	if err := row.Scan(&inv.ID, &inv.PaymentAccountID, &cfsAccountID, &total, &paid, &refund, &serviceFees,
		&inv.CorpTypeCode, &inv.BusinessIdentifier, &methodCode, &statusCode,
		&disbursementStatus, &disbursementReversal, &paymentDate, &refundDate, &disbursementDate,
		&routingSlipNumber, &details, &inv.CreatedOn); err != nil {
		return nil, err
	}

	inv.CfsAccountID = int4ToInt32Ptr(cfsAccountID)
	inv.Total = numericToDecimal(total)
	inv.Paid = numericToDecimal(paid)
	inv.Refund = numericToDecimal(refund)
	inv.ServiceFees = numericToDecimal(serviceFees)
	inv.PaymentMethodCode = domain.PaymentMethod(methodCode)
	inv.InvoiceStatusCode = domain.InvoiceStatus(statusCode)
	inv.DisbursementStatus = domain.DisbursementStatus(disbursementStatus)
	inv.DisbursementReversal = timestamptzToTimePtr(disbursementReversal)
	inv.PaymentDate = timestamptzToTimePtr(paymentDate)
	inv.RefundDate = timestamptzToTimePtr(refundDate)
	inv.DisbursementDate = timestamptzToTimePtr(disbursementDate)
	inv.RoutingSlipNumber = textToStringPtr(routingSlipNumber)
	if len(details) > 0 {
		inv.Details = json.RawMessage(details)
	}
	return &inv, nil
}

func (r *invoiceRepo) GetByID(ctx context.Context, id int32) (*domain.Invoice, error) {
	row := r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepo) LockForUpdate(ctx context.Context, id int32) (*domain.Invoice, error) {
	row := r.q.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepo) Create(ctx context.Context, inv *domain.Invoice) (*domain.Invoice, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO invoices (payment_account_id, cfs_account_id, total, paid, refund, service_fees,
			corp_type_code, business_identifier, payment_method_code, invoice_status_code,
			disbursement_status, routing_slip_number, details, created_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		RETURNING `+invoiceColumns,
		inv.PaymentAccountID, int32ToInt4Ptr(inv.CfsAccountID),
		decimalToNumeric(inv.Total), decimalToNumeric(inv.Paid), decimalToNumeric(inv.Refund), decimalToNumeric(inv.ServiceFees),
		inv.CorpTypeCode, inv.BusinessIdentifier, string(inv.PaymentMethodCode), string(inv.InvoiceStatusCode),
		string(inv.DisbursementStatus), stringPtrToText(inv.RoutingSlipNumber), []byte(inv.Details))
	return scanInvoice(row)
}

func (r *invoiceRepo) Update(ctx context.Context, inv *domain.Invoice) error {
	_, err := r.q.Exec(ctx, `
		UPDATE invoices SET
			cfs_account_id = $2, total = $3, paid = $4, refund = $5, service_fees = $6,
			invoice_status_code = $7, disbursement_status = $8, disbursement_reversal = $9,
			payment_date = $10, refund_date = $11, disbursement_date = $12, routing_slip_number = $13
		WHERE id = $1`,
		inv.ID, int32ToInt4Ptr(inv.CfsAccountID),
		decimalToNumeric(inv.Total), decimalToNumeric(inv.Paid), decimalToNumeric(inv.Refund), decimalToNumeric(inv.ServiceFees),
		string(inv.InvoiceStatusCode), string(inv.DisbursementStatus), timePtrToTimestamptz(inv.DisbursementReversal),
		timePtrToTimestamptz(inv.PaymentDate), timePtrToTimestamptz(inv.RefundDate), timePtrToTimestamptz(inv.DisbursementDate),
		stringPtrToText(inv.RoutingSlipNumber))
	return err
}

func (r *invoiceRepo) ApprovedWithoutActiveReference(ctx context.Context, accountID int32, method domain.PaymentMethod) ([]*domain.Invoice, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices i
		WHERE i.payment_account_id = $1 AND i.payment_method_code = $2 AND i.invoice_status_code = 'APPROVED'
		  AND NOT EXISTS (
		    SELECT 1 FROM invoice_references ir WHERE ir.invoice_id = i.id AND ir.status_code = 'ACTIVE'
		  )
		ORDER BY i.created_on`, accountID, string(method))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func (r *invoiceRepo) ListByStatus(ctx context.Context, method domain.PaymentMethod, status domain.InvoiceStatus) ([]*domain.Invoice, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE payment_method_code = $1 AND invoice_status_code = $2
		ORDER BY created_on`, string(method), string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func collectInvoices(rows interface {
	Next() bool
	rowScanner
	Err() error
}) ([]*domain.Invoice, error) {
	var out []*domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}
