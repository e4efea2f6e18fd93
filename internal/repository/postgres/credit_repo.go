package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type creditRepo struct{ q querier }

const creditColumns = `id, account_id, cfs_identifier, is_credit_memo, amount, remaining_amount, cfs_site`

func scanCredit(row rowScanner) (*domain.Credit, error) {
	var c domain.Credit
	var amount, remaining pgtype.Numeric
	if err := row.Scan(&c.ID, &c.AccountID, &c.CfsIdentifier, &c.IsCreditMemo, &amount, &remaining, &c.CfsSite); err != nil {
		return nil, err
	}
	c.Amount = numericToDecimal(amount)
	c.RemainingAmount = numericToDecimal(remaining)
	return &c, nil
}

func (r *creditRepo) GetByCfsIdentifier(ctx context.Context, accountID int32, cfsIdentifier string) (*domain.Credit, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+creditColumns+` FROM credits WHERE account_id = $1 AND cfs_identifier = $2`,
		accountID, cfsIdentifier)
	c, err := scanCredit(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrCreditNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *creditRepo) Create(ctx context.Context, c *domain.Credit) (*domain.Credit, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO credits (account_id, cfs_identifier, is_credit_memo, amount, remaining_amount, cfs_site)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+creditColumns,
		c.AccountID, c.CfsIdentifier, c.IsCreditMemo, decimalToNumeric(c.Amount), decimalToNumeric(c.RemainingAmount), c.CfsSite)
	return scanCredit(row)
}

func (r *creditRepo) Update(ctx context.Context, c *domain.Credit) error {
	_, err := r.q.Exec(ctx, `UPDATE credits SET remaining_amount = $2 WHERE id = $1`,
		c.ID, decimalToNumeric(c.RemainingAmount))
	return err
}

func (r *creditRepo) ListOutstandingByAccount(ctx context.Context, accountID int32) ([]*domain.Credit, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+creditColumns+` FROM credits
		WHERE account_id = $1 AND remaining_amount > 0
		ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Credit
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *creditRepo) CreateCfsCreditInvoice(ctx context.Context, row *domain.CfsCreditInvoices) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO cfs_credit_invoices (credit_id, invoice_id, application_id, amount_applied)
		VALUES ($1, $2, $3, $4)`,
		row.CreditID, row.InvoiceID, row.ApplicationID, decimalToNumeric(row.AmountApplied))
	return err
}

func (r *creditRepo) HasCfsCreditInvoice(ctx context.Context, applicationID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cfs_credit_invoices WHERE application_id = $1)`, applicationID).Scan(&exists)
	return exists, err
}
