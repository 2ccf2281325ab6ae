package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/otp-auth-api/internal/domain"
)

const uniqueViolation = "23505"

// querier is satisfied by *pgxpool.Pool, *Connection and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type AccountRepository struct {
	db  querier
	now func() time.Time
}

func NewAccountRepository(db querier) *AccountRepository {
	return &AccountRepository{db: db, now: time.Now}
}

const selectAccount = `SELECT account_id, name, email, password_hash, role, created_at, updated_at
			  FROM accounts `

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.scanOne(r.db.QueryRow(ctx, selectAccount+`WHERE email = $1`, email))
}

func (r *AccountRepository) FindByID(ctx context.Context, accountID string) (*domain.Account, error) {
	return r.scanOne(r.db.QueryRow(ctx, selectAccount+`WHERE account_id = $1`, accountID))
}

func (r *AccountRepository) scanOne(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.AccountID, &a.Name, &a.Email, &a.PasswordHash, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, storeErr(err)
	}
	return &a, nil
}

// Create inserts a. The unique index on email turns a concurrent second
// registration into domain.ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (account_id, name, email, password_hash, role, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		a.AccountID, a.Name, a.Email, a.PasswordHash, a.Role, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrDuplicate
		}
		return storeErr(err)
	}
	return nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	query := `UPDATE accounts SET password_hash = $1, updated_at = $2 WHERE email = $3`

	tag, err := r.db.Exec(ctx, query, passwordHash, r.now().UTC(), email)
	if err != nil {
		return storeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func storeErr(err error) error {
	return domain.Infrastructure(domain.ReasonAccountStore, "account store unavailable", err)
}
