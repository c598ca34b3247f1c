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

var _ repository.PromotionUsageRepository = (*promotionUsageRepo)(nil)

// The promotion_usages table carries a partial unique index on
// (user_id, promotion_code) and (user_id, referral_code) restricted to
// status='completed'. That index, not application reads, is what ultimately
// guarantees one settled reward per user and code.
type promotionUsageRepo struct{ pool *pgxpool.Pool }

func NewPromotionUsageRepo(pool *pgxpool.Pool) *promotionUsageRepo {
	return &promotionUsageRepo{pool: pool}
}

const usageColumns = `id, user_id, promotion_code, referral_code, amount, bundle_id, status, created_at`

func (r *promotionUsageRepo) Save(ctx context.Context, tx repository.Tx, u *model.PromotionUsage) error {
	const q = `
INSERT INTO promotion_usages (id, user_id, promotion_code, referral_code, amount, bundle_id, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.UserID, u.PromotionCode, u.ReferralCode, u.Amount, u.BundleID, string(u.Status), u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, "") {
			return domain.ErrPromotionAlreadyUsed
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *promotionUsageRepo) ListByUserAndPromoCode(ctx context.Context, tx repository.Tx, userID, code string, status *model.UsageStatus) ([]*model.PromotionUsage, error) {
	q := `SELECT ` + usageColumns + ` FROM promotion_usages WHERE user_id=$1 AND promotion_code=$2`
	args := []interface{}{userID, code}
	if status != nil {
		q += ` AND status=$3`
		args = append(args, string(*status))
	}
	q += `;`
	return r.list(ctx, tx, q, args...)
}

func (r *promotionUsageRepo) ListByUserAndReferralCode(ctx context.Context, tx repository.Tx, userID, code string) ([]*model.PromotionUsage, error) {
	q := `SELECT ` + usageColumns + ` FROM promotion_usages WHERE user_id=$1 AND referral_code=$2;`
	return r.list(ctx, tx, q, userID, code)
}

func (r *promotionUsageRepo) CountByReferralCode(ctx context.Context, tx repository.Tx, code string) (int, error) {
	const q = `SELECT COUNT(*) FROM promotion_usages WHERE referral_code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *promotionUsageRepo) FindPendingReferralByUser(ctx context.Context, tx repository.Tx, userID string) (*model.PromotionUsage, error) {
	q := `SELECT ` + usageColumns + ` FROM promotion_usages WHERE user_id=$1 AND referral_code IS NOT NULL AND status='pending' ORDER BY created_at ASC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanUsage(row)
}

func (r *promotionUsageRepo) ListCompletedByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.PromotionUsage, error) {
	q := `SELECT ` + usageColumns + ` FROM promotion_usages WHERE user_id=$1 AND status='completed' ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, userID)
}

func (r *promotionUsageRepo) UpdateStatusByPromoCode(ctx context.Context, tx repository.Tx, userID, code string, status model.UsageStatus) error {
	const q = `UPDATE promotion_usages SET status=$3 WHERE user_id=$1 AND promotion_code=$2 AND status='pending';`
	return r.updateStatus(ctx, tx, q, userID, code, status)
}

func (r *promotionUsageRepo) UpdateStatusByReferralCode(ctx context.Context, tx repository.Tx, userID, code string, status model.UsageStatus) error {
	const q = `UPDATE promotion_usages SET status=$3 WHERE user_id=$1 AND referral_code=$2 AND status='pending';`
	return r.updateStatus(ctx, tx, q, userID, code, status)
}

func (r *promotionUsageRepo) updateStatus(ctx context.Context, tx repository.Tx, q, userID, code string, status model.UsageStatus) error {
	_, err := execSQL(ctx, r.pool, tx, q, userID, code, string(status))
	if err != nil {
		if isUniqueViolation(err, "") {
			// A completed row for this user and code already exists.
			return domain.ErrPromotionAlreadyUsed
		}
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *promotionUsageRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PromotionUsage, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.PromotionUsage
	for rows.Next() {
		u, err := scanUsage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func scanUsage(row rowScanner) (*model.PromotionUsage, error) {
	u := &model.PromotionUsage{}
	var status string
	if err := row.Scan(&u.ID, &u.UserID, &u.PromotionCode, &u.ReferralCode, &u.Amount, &u.BundleID, &status, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	u.Status = model.UsageStatus(status)
	return u, nil
}
