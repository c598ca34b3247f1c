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

var _ repository.VoucherRepository = (*voucherRepo)(nil)

type voucherRepo struct{ pool *pgxpool.Pool }

func NewVoucherRepo(pool *pgxpool.Pool) *voucherRepo {
	return &voucherRepo{pool: pool}
}

const voucherColumns = `id, code, amount, is_used, used_by, is_active, created_at, updated_at`

func (r *voucherRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Voucher, error) {
	q := `SELECT ` + voucherColumns + ` FROM vouchers WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	v := &model.Voucher{}
	if err := row.Scan(&v.ID, &v.Code, &v.Amount, &v.IsUsed, &v.UsedBy, &v.IsActive, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return v, nil
}

// Claim flips is_used in a single guarded UPDATE; a voucher that is inactive
// or already claimed matches zero rows and stays untouched.
func (r *voucherRepo) Claim(ctx context.Context, tx repository.Tx, id, userID string) (bool, error) {
	const q = `
UPDATE vouchers
   SET is_used = TRUE, used_by = $2, updated_at = NOW()
 WHERE id = $1 AND is_active AND NOT is_used;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}
