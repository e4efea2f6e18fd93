package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type routingSlipRepo struct{ q querier }

const routingSlipColumns = `id, number, total, remaining_amount, status, parent_number,
	payment_account_id, has_transactions`

func scanRoutingSlip(row rowScanner) (*domain.RoutingSlip, error) {
	var rs domain.RoutingSlip
	var total, remaining pgtype.Numeric
	var status string
	var parentNumber pgtype.Text

	if err := row.Scan(&rs.ID, &rs.Number, &total, &remaining, &status, &parentNumber,
		&rs.PaymentAccountID, &rs.HasTransactions); err != nil {
		return nil, err
	}
	rs.Total = numericToDecimal(total)
	rs.RemainingAmount = numericToDecimal(remaining)
	rs.Status = domain.RoutingSlipStatus(status)
	rs.ParentNumber = textToStringPtr(parentNumber)
	return &rs, nil
}

func (r *routingSlipRepo) GetByNumber(ctx context.Context, number string) (*domain.RoutingSlip, error) {
	row := r.q.QueryRow(ctx, `SELECT `+routingSlipColumns+` FROM routing_slips WHERE number = $1`, number)
	rs, err := scanRoutingSlip(row)
	if err != nil {
		if notFound(err) {
			return nil, domain.ErrRoutingSlipNotFound
		}
		return nil, err
	}
	return rs, nil
}

func (r *routingSlipRepo) Update(ctx context.Context, rs *domain.RoutingSlip) error {
	_, err := r.q.Exec(ctx, `
		UPDATE routing_slips SET total = $2, remaining_amount = $3, status = $4, parent_number = $5,
			has_transactions = $6
		WHERE id = $1`,
		rs.ID, decimalToNumeric(rs.Total), decimalToNumeric(rs.RemainingAmount), string(rs.Status),
		stringPtrToText(rs.ParentNumber), rs.HasTransactions)
	return err
}
