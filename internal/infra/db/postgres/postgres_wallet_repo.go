package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var (
	_ repository.WalletRepository            = (*walletRepo)(nil)
	_ repository.WalletTransactionRepository = (*walletTxnRepo)(nil)
)

type walletRepo struct{ pool *pgxpool.Pool }

func NewWalletRepo(pool *pgxpool.Pool) *walletRepo {
	return &walletRepo{pool: pool}
}

const walletColumns = `id, user_id, amount, currency, created_at, updated_at`

func (r *walletRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserWallet, error) {
	q := `SELECT ` + walletColumns + ` FROM user_wallets WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanWallet(row)
}

func (r *walletRepo) FindByUserID(ctx context.Context, tx repository.Tx, userID string) (*model.UserWallet, error) {
	q := `SELECT ` + walletColumns + ` FROM user_wallets WHERE user_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	w, err := scanWallet(row)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrWalletNotFound
	}
	return w, err
}

func (r *walletRepo) Create(ctx context.Context, tx repository.Tx, w *model.UserWallet) error {
	const q = `
INSERT INTO user_wallets (id, user_id, amount, currency, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (user_id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, w.ID, w.UserID, w.Amount, w.Currency, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// ApplyDelta moves the balance in a single UPDATE. The guard in the WHERE
// clause keeps the balance non-negative even under concurrent debits; there
// is no read-modify-write window to race through.
func (r *walletRepo) ApplyDelta(ctx context.Context, tx repository.Tx, userID string, delta int64) (*model.UserWallet, error) {
	const q = `
UPDATE user_wallets
   SET amount = amount + $2, updated_at = NOW()
 WHERE user_id = $1 AND amount + $2 >= 0
RETURNING ` + walletColumns + `;`

	row, err := pickRow(ctx, r.pool, tx, q, userID, delta)
	if err != nil {
		return nil, err
	}
	w, err := scanWallet(row)
	if errors.Is(err, domain.ErrNotFound) {
		// Either no wallet or the guard rejected an overdraw; disambiguate.
		if _, ferr := r.FindByUserID(ctx, tx, userID); ferr != nil {
			return nil, ferr
		}
		return nil, domain.ErrInsufficientFunds
	}
	return w, err
}

func scanWallet(row rowScanner) (*model.UserWallet, error) {
	w := &model.UserWallet{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Amount, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return w, nil
}

type walletTxnRepo struct{ pool *pgxpool.Pool }

func NewWalletTxnRepo(pool *pgxpool.Pool) *walletTxnRepo {
	return &walletTxnRepo{pool: pool}
}

func (r *walletTxnRepo) Save(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error {
	const q = `
INSERT INTO wallet_transactions (id, wallet_id, amount, source, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.WalletID, t.Amount, t.Source, t.Status, t.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *walletTxnRepo) ListByWallet(ctx context.Context, tx repository.Tx, walletID string, offset, limit int) ([]*model.WalletTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT id, wallet_id, amount, source, status, created_at FROM wallet_transactions WHERE wallet_id=$1 ORDER BY id DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, walletID, offset, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.WalletTransaction
	for rows.Next() {
		t := &model.WalletTransaction{}
		if err := rows.Scan(&t.ID, &t.WalletID, &t.Amount, &t.Source, &t.Status, &t.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *walletTxnRepo) SumByWallet(ctx context.Context, tx repository.Tx, walletID string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM wallet_transactions WHERE wallet_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, walletID)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}
