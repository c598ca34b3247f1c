package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var (
	_ repository.PromotionRepository     = (*promotionRepo)(nil)
	_ repository.PromotionRuleRepository = (*promotionRuleRepo)(nil)
)

type promotionRepo struct{ pool *pgxpool.Pool }

func NewPromotionRepo(pool *pgxpool.Pool) *promotionRepo {
	return &promotionRepo{pool: pool}
}

const promotionColumns = `id, rule_id, code, name, amount, valid_from, valid_to, is_active, times_used, created_at`

func (r *promotionRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Promotion, error) {
	q := `SELECT ` + promotionColumns + ` FROM promotions WHERE code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	return scanPromotion(row)
}

func (r *promotionRepo) FindByRuleID(ctx context.Context, tx repository.Tx, ruleID string) (*model.Promotion, error) {
	q := `SELECT ` + promotionColumns + ` FROM promotions WHERE rule_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, ruleID)
	if err != nil {
		return nil, err
	}
	return scanPromotion(row)
}

// IncrementUsage bumps times_used atomically and only below the budget, so
// two concurrent redemptions of the last slot cannot both win.
func (r *promotionRepo) IncrementUsage(ctx context.Context, tx repository.Tx, code string, maxUsage int) (bool, error) {
	const q = `UPDATE promotions SET times_used = times_used + 1 WHERE code=$1 AND times_used < $2;`
	cmd, err := execSQL(ctx, r.pool, tx, q, code, maxUsage)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func scanPromotion(row rowScanner) (*model.Promotion, error) {
	p := &model.Promotion{}
	if err := row.Scan(&p.ID, &p.RuleID, &p.Code, &p.Name, &p.Amount, &p.ValidFrom, &p.ValidTo, &p.IsActive, &p.TimesUsed, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

type promotionRuleRepo struct{ pool *pgxpool.Pool }

func NewPromotionRuleRepo(pool *pgxpool.Pool) *promotionRuleRepo {
	return &promotionRuleRepo{pool: pool}
}

func (r *promotionRuleRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PromotionRule, error) {
	q := `SELECT id, action, event, beneficiary, max_usage, created_at FROM promotion_rules WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	rule := &model.PromotionRule{}
	var action, event, beneficiary string
	if err := row.Scan(&rule.ID, &action, &event, &beneficiary, &rule.MaxUsage, &rule.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rule.Action = model.RuleAction(action)
	rule.Event = model.RuleEvent(event)
	rule.Beneficiary = model.Beneficiary(beneficiary)
	return rule, nil
}

// isUniqueViolation reports a Postgres 23505 on the given constraint, or on
// any constraint when name is empty.
func isUniqueViolation(err error, name string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return name == "" || pgErr.ConstraintName == name
}
