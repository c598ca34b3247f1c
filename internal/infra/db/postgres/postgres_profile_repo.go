package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var (
	_ repository.ProfileRepository       = (*profileRepo)(nil)
	_ repository.ProfileBundleRepository = (*profileBundleRepo)(nil)
)

type profileRepo struct{ pool *pgxpool.Pool }

func NewProfileRepo(pool *pgxpool.Pool) *profileRepo {
	return &profileRepo{pool: pool}
}

const profileColumns = `id, user_id, order_id, iccid, validity, smdp_address, activation_code, allow_top_up, fulfillment_order_id, label, created_at`

func (r *profileRepo) Save(ctx context.Context, tx repository.Tx, p *model.UserProfile) error {
	const q = `
INSERT INTO user_profiles (
  id, user_id, order_id, iccid, validity, smdp_address, activation_code, allow_top_up, fulfillment_order_id, label, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET label=$10;`
	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.OrderID, p.ICCID, p.Validity, p.SMDPAddress, p.ActivationCode,
		p.AllowTopUp, p.FulfillmentOrderID, p.Label, p.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *profileRepo) FindByUserAndICCID(ctx context.Context, tx repository.Tx, userID, iccid string) (*model.UserProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id=$1 AND iccid=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, iccid)
	if err != nil {
		return nil, err
	}
	return scanProfile(row)
}

func (r *profileRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.UserProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM user_profiles WHERE order_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanProfile(row)
}

func (r *profileRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.UserProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM user_profiles WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.UserProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func scanProfile(row rowScanner) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	if err := row.Scan(&p.ID, &p.UserID, &p.OrderID, &p.ICCID, &p.Validity, &p.SMDPAddress, &p.ActivationCode,
		&p.AllowTopUp, &p.FulfillmentOrderID, &p.Label, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

type profileBundleRepo struct{ pool *pgxpool.Pool }

func NewProfileBundleRepo(pool *pgxpool.Pool) *profileBundleRepo {
	return &profileBundleRepo{pool: pool}
}

const profileBundleColumns = `id, user_id, order_id, profile_id, fulfillment_order_id, iccid, kind, plan_started, bundle_expired, bundle_data, created_at`

func (r *profileBundleRepo) Save(ctx context.Context, tx repository.Tx, b *model.UserProfileBundle) error {
	var data []byte
	if b.BundleData != nil {
		j, err := json.Marshal(b.BundleData)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		data = j
	}
	const q = `
INSERT INTO user_profile_bundles (
  id, user_id, order_id, profile_id, fulfillment_order_id, iccid, kind, plan_started, bundle_expired, bundle_data, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET plan_started=$8, bundle_expired=$9;`
	_, err := execSQL(ctx, r.pool, tx, q,
		b.ID, b.UserID, b.OrderID, b.ProfileID, b.FulfillmentOrderID, b.ICCID, string(b.Kind),
		b.PlanStarted, b.BundleExpired, data, b.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *profileBundleRepo) ListByProfile(ctx context.Context, tx repository.Tx, profileID string) ([]*model.UserProfileBundle, error) {
	q := `SELECT ` + profileBundleColumns + ` FROM user_profile_bundles WHERE profile_id=$1 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, profileID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.UserProfileBundle
	for rows.Next() {
		b := &model.UserProfileBundle{}
		var kind string
		var data []byte
		if err := rows.Scan(&b.ID, &b.UserID, &b.OrderID, &b.ProfileID, &b.FulfillmentOrderID, &b.ICCID, &kind,
			&b.PlanStarted, &b.BundleExpired, &data, &b.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		b.Kind = model.BundleKind(kind)
		if len(data) > 0 {
			bd := &model.Bundle{}
			if err := json.Unmarshal(data, bd); err != nil {
				return nil, domain.ErrReadDatabaseRow
			}
			b.BundleData = bd
		}
		out = append(out, b)
	}
	return out, nil
}

func (r *profileBundleRepo) CountByOrderID(ctx context.Context, tx repository.Tx, orderID string) (int, error) {
	const q = `SELECT COUNT(*) FROM user_profile_bundles WHERE order_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
