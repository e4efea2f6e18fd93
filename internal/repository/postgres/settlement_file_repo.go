package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

type settlementFileRepo struct{ q querier }

func (r *settlementFileRepo) GetCasSettlement(ctx context.Context, fileName string) (*domain.CasSettlement, error) {
	row := r.q.QueryRow(ctx, `SELECT id, file_name, processed_on FROM cas_settlements WHERE file_name = $1`, fileName)
	var s domain.CasSettlement
	var processedOn pgtype.Timestamptz
	if err := row.Scan(&s.ID, &s.FileName, &processedOn); err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	s.ProcessedOn = timestamptzToTimePtr(processedOn)
	return &s, nil
}

func (r *settlementFileRepo) CreateCasSettlement(ctx context.Context, s *domain.CasSettlement) (*domain.CasSettlement, error) {
	row := r.q.QueryRow(ctx, `
		INSERT INTO cas_settlements (file_name) VALUES ($1)
		RETURNING id, file_name, processed_on`, s.FileName)
	var out domain.CasSettlement
	var processedOn pgtype.Timestamptz
	if err := row.Scan(&out.ID, &out.FileName, &processedOn); err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrFileAlreadyProcessed
		}
		return nil, err
	}
	out.ProcessedOn = timestamptzToTimePtr(processedOn)
	return &out, nil
}

func (r *settlementFileRepo) MarkCasProcessed(ctx context.Context, fileName string, when time.Time) error {
	_, err := r.q.Exec(ctx, `UPDATE cas_settlements SET processed_on = $2 WHERE file_name = $1`,
		fileName, timeToTimestamptz(when))
	return err
}

func (r *settlementFileRepo) GetNSFByInvoiceNumber(ctx context.Context, invoiceNumber string) (*domain.NonSufficientFunds, error) {
	row := r.q.QueryRow(ctx, `SELECT id, invoice_id, invoice_number FROM non_sufficient_funds WHERE invoice_number = $1`, invoiceNumber)
	var n domain.NonSufficientFunds
	if err := row.Scan(&n.ID, &n.InvoiceID, &n.InvoiceNumber); err != nil {
		if notFound(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (r *settlementFileRepo) CreateNSF(ctx context.Context, n *domain.NonSufficientFunds) error {
	_, err := r.q.Exec(ctx, `INSERT INTO non_sufficient_funds (invoice_id, invoice_number) VALUES ($1, $2)`,
		n.InvoiceID, n.InvoiceNumber)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateNSFEvent
	}
	return err
}
