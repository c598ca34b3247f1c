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

var _ repository.BundleRepository = (*bundleRepo)(nil)

type bundleRepo struct{ pool *pgxpool.Pool }

func NewBundleRepo(pool *pgxpool.Pool) *bundleRepo {
	return &bundleRepo{pool: pool}
}

func (r *bundleRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.Bundle, error) {
	const q = `SELECT bundle_code, bundle_info_code, bundle_name, price, currency, validity, gprs_limit_display, countries, is_stockable FROM bundles WHERE bundle_code=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, code)
	if err != nil {
		return nil, err
	}
	b := &model.Bundle{}
	if err := row.Scan(&b.Code, &b.InfoCode, &b.Name, &b.Price, &b.Currency, &b.Validity, &b.GPRSLimitDisplay, &b.Countries, &b.Stockable); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return b, nil
}
