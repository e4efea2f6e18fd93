// Package postgres implements domain.Store and its per-entity repositories
// against PostgreSQL using pgx/v5, following the connection-pool and
// numeric-conversion conventions of the account repository this engine was
// adapted from.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// serializationFailure is the Postgres SQLSTATE for a serialization
// conflict under SERIALIZABLE/REPEATABLE READ isolation.
const serializationFailure = "40001"

// Store wraps a pgxpool.Pool and implements domain.Store.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to databaseURL and verifies it with a ping.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Begin starts a new unit of work.
func (s *Store) Begin(ctx context.Context) (domain.Tx, error) {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return newTx(pgxTx), nil
}

// WithRetry runs fn in a fresh transaction, retrying on Postgres
// serialization conflicts with exponential backoff. Any other error, or
// exhaustion of the retry budget, is returned to the caller unwrapped so it
// can be classified under the policy of spec §7.
func (s *Store) WithRetry(ctx context.Context, fn func(tx domain.Tx) error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	return backoff.Retry(func() error {
		tx, err := s.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			if isSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if err := tx.Commit(ctx); err != nil {
			if isSerializationFailure(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(policy, ctx))
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure
	}
	return false
}

// uniqueViolation is the Postgres SQLSTATE for a unique-constraint conflict,
// the mechanism behind the idempotent-by-filename inserts of spec §5.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// tx is domain.Tx bound to one pgx.Tx, constructing each repository lazily
// over the same underlying transaction.
type tx struct {
	pgxTx pgx.Tx
}

func newTx(pgxTx pgx.Tx) *tx {
	return &tx{pgxTx: pgxTx}
}

func (t *tx) Commit(ctx context.Context) error   { return t.pgxTx.Commit(ctx) }
func (t *tx) Rollback(ctx context.Context) error { return t.pgxTx.Rollback(ctx) }

func (t *tx) PaymentAccounts() domain.PaymentAccountRepository {
	return &paymentAccountRepo{q: t.pgxTx}
}
func (t *tx) CfsAccounts() domain.CfsAccountRepository { return &cfsAccountRepo{q: t.pgxTx} }
func (t *tx) Invoices() domain.InvoiceRepository       { return &invoiceRepo{q: t.pgxTx} }
func (t *tx) InvoiceReferences() domain.InvoiceReferenceRepository {
	return &invoiceReferenceRepo{q: t.pgxTx}
}
func (t *tx) Payments() domain.PaymentRepository         { return &paymentRepo{q: t.pgxTx} }
func (t *tx) Receipts() domain.ReceiptRepository         { return &receiptRepo{q: t.pgxTx} }
func (t *tx) Credits() domain.CreditRepository           { return &creditRepo{q: t.pgxTx} }
func (t *tx) RoutingSlips() domain.RoutingSlipRepository { return &routingSlipRepo{q: t.pgxTx} }
func (t *tx) EFT() domain.EFTRepository                  { return &eftRepo{q: t.pgxTx} }
func (t *tx) Ejv() domain.EjvRepository                  { return &ejvRepo{q: t.pgxTx} }
func (t *tx) SettlementFiles() domain.SettlementFileRepository {
	return &settlementFileRepo{q: t.pgxTx}
}

// querier is the subset of pgx.Tx every repo needs; satisfied by pgx.Tx
// itself (in transactions) and could equally be satisfied by a *pgxpool.Pool
// for read-only, non-transactional queries if a future caller needs one.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var num pgtype.Numeric
	_ = num.Scan(d.String())
	return num
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func timeToTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func timePtrToTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func timestamptzToTimePtr(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func textToStringPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}

func stringPtrToText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func int32ToInt4Ptr(v *int32) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: *v, Valid: true}
}

func int4ToInt32Ptr(v pgtype.Int4) *int32 {
	if !v.Valid {
		return nil
	}
	n := v.Int32
	return &n
}

func notFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
