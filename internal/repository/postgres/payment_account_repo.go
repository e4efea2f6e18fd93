package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type paymentAccountRepo struct{ q querier }

func (r *paymentAccountRepo) GetByID(ctx context.Context, id int32) (*domain.PaymentAccount, error) {
	return r.scanOne(ctx, `
		SELECT id, external_auth_id, payment_method, pad_credit, ob_credit, eft_credit,
		       has_nsf_invoices, has_overdue_invoice, pad_activation_date, created_on
		FROM payment_accounts WHERE id = $1`, id)
}

func (r *paymentAccountRepo) LockForUpdate(ctx context.Context, id int32) (*domain.PaymentAccount, error) {
	return r.scanOne(ctx, `
		SELECT id, external_auth_id, payment_method, pad_credit, ob_credit, eft_credit,
		       has_nsf_invoices, has_overdue_invoice, pad_activation_date, created_on
		FROM payment_accounts WHERE id = $1 FOR UPDATE`, id)
}

func (r *paymentAccountRepo) Update(ctx context.Context, a *domain.PaymentAccount) error {
	_, err := r.q.Exec(ctx, `
		UPDATE payment_accounts SET
			payment_method = $2, pad_credit = $3, ob_credit = $4, eft_credit = $5,
			has_nsf_invoices = $6, has_overdue_invoice = $7, pad_activation_date = $8
		WHERE id = $1`,
		a.ID, string(a.PaymentMethod),
		decimalToNumeric(a.PADCredit), decimalToNumeric(a.OBCredit), decimalToNumeric(a.EFTCredit),
		timePtrToTimestamptz(a.HasNSFInvoices), timePtrToTimestamptz(a.HasOverdueInvoice),
		timePtrToTimestamptz(a.PADActivationDate))
	return err
}

func (r *paymentAccountRepo) ListWithApprovedInvoices(ctx context.Context, method domain.PaymentMethod) ([]*domain.PaymentAccount, error) {
	rows, err := r.q.Query(ctx, `
		SELECT DISTINCT pa.id, pa.external_auth_id, pa.payment_method, pa.pad_credit, pa.ob_credit,
		       pa.eft_credit, pa.has_nsf_invoices, pa.has_overdue_invoice, pa.pad_activation_date, pa.created_on
		FROM payment_accounts pa
		JOIN invoices i ON i.payment_account_id = pa.id
		WHERE pa.payment_method = $1 AND i.invoice_status_code = 'APPROVED'
		ORDER BY pa.id`, string(method))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PaymentAccount
	for rows.Next() {
		a, err := scanPaymentAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPaymentAccount(row rowScanner) (*domain.PaymentAccount, error) {
	var a domain.PaymentAccount
	var method string
	var padCredit, obCredit, eftCredit pgtype.Numeric
	var hasNSF, hasOverdue, padActivation pgtype.Timestamptz
	if err := row.Scan(&a.ID, &a.ExternalAuthID, &method, &padCredit, &obCredit, &eftCredit,
		&hasNSF, &hasOverdue, &padActivation, &a.CreatedOn); err != nil {
		return nil, err
	}
	a.PaymentMethod = domain.PaymentMethod(method)
	a.PADCredit = numericToDecimal(padCredit)
	a.OBCredit = numericToDecimal(obCredit)
	a.EFTCredit = numericToDecimal(eftCredit)
	a.HasNSFInvoices = timestamptzToTimePtr(hasNSF)
	a.HasOverdueInvoice = timestamptzToTimePtr(hasOverdue)
	a.PADActivationDate = timestamptzToTimePtr(padActivation)
	return &a, nil
}

func (r *paymentAccountRepo) scanOne(ctx context.Context, sql string, id int32) (*domain.PaymentAccount, error) {
	row := r.q.QueryRow(ctx, sql, id)
	a, err := scanPaymentAccount(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrPaymentAccountNotFound
		}
		return nil, err
	}
	return a, nil
}

type cfsAccountRepo struct{ q querier }

func scanCfsAccount(row rowScanner) (*domain.CfsAccount, error) {
	var c domain.CfsAccount
	var method, status string
	if err := row.Scan(&c.ID, &c.AccountID, &c.CfsParty, &c.CfsAccountNum, &c.CfsSite, &method, &status); err != nil {
		return nil, err
	}
	c.PaymentMethod = domain.PaymentMethod(method)
	c.Status = domain.CfsAccountStatus(status)
	return &c, nil
}

func (r *cfsAccountRepo) GetByID(ctx context.Context, id int32) (*domain.CfsAccount, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, account_id, cfs_party, cfs_account_num, cfs_site, payment_method, status
		FROM cfs_accounts WHERE id = $1`, id)
	c, err := scanCfsAccount(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrCfsAccountNotFound
		}
		return nil, err
	}
	return c, nil
}

// Effective returns the ACTIVE row if one exists, else the FREEZE row, else
// ErrNoEffectiveCfsAccount, matching the "prefer ACTIVE over FREEZE" rule of
// spec §4.1.
func (r *cfsAccountRepo) Effective(ctx context.Context, accountID int32, method domain.PaymentMethod) (*domain.CfsAccount, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, account_id, cfs_party, cfs_account_num, cfs_site, payment_method, status
		FROM cfs_accounts
		WHERE account_id = $1 AND payment_method = $2 AND status IN ('ACTIVE', 'FREEZE')
		ORDER BY CASE status WHEN 'ACTIVE' THEN 0 ELSE 1 END
		LIMIT 1`, accountID, string(method))
	c, err := scanCfsAccount(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrNoEffectiveCfsAccount
		}
		return nil, err
	}
	return c, nil
}

// GetByAccountNumber looks up the CfsAccount by its CFS-side account number,
// the key CAS settlement rows carry in their "Customer Account" column
// (spec §4.4). Prefers an effective row when more than one historical row
// shares the number.
func (r *cfsAccountRepo) GetByAccountNumber(ctx context.Context, cfsAccountNumber string) (*domain.CfsAccount, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, account_id, cfs_party, cfs_account_num, cfs_site, payment_method, status
		FROM cfs_accounts
		WHERE cfs_account_num = $1
		ORDER BY CASE status WHEN 'ACTIVE' THEN 0 WHEN 'FREEZE' THEN 1 ELSE 2 END
		LIMIT 1`, cfsAccountNumber)
	c, err := scanCfsAccount(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrCfsAccountNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *cfsAccountRepo) Update(ctx context.Context, c *domain.CfsAccount) error {
	_, err := r.q.Exec(ctx, `
		UPDATE cfs_accounts SET cfs_party = $2, cfs_account_num = $3, cfs_site = $4, status = $5
		WHERE id = $1`, c.ID, c.CfsParty, c.CfsAccountNum, c.CfsSite, string(c.Status))
	return err
}
