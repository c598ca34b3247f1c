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

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, user_id, bundle_id, order_type, amount, modified_amount, currency, payment_intent_code, payment_status, order_status, bundle_snapshot, fulfillment_order_id, promo_code, referral_code, anonymous_user_id, created_at, callback_time`

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	var snapshot []byte
	if o.BundleSnapshot != nil {
		b, err := json.Marshal(o.BundleSnapshot)
		if err != nil {
			return domain.ErrInvalidArgument
		}
		snapshot = b
	}
	const q = `
INSERT INTO orders (
  id, user_id, bundle_id, order_type, amount, modified_amount, currency, payment_intent_code, payment_status, order_status, bundle_snapshot, fulfillment_order_id, promo_code, referral_code, anonymous_user_id, created_at, callback_time
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
) ON CONFLICT (id) DO UPDATE SET
  payment_intent_code=$8, payment_status=$9, order_status=$10, fulfillment_order_id=$12, callback_time=$17;`

	_, err := execSQL(ctx, r.pool, tx, q,
		o.ID, o.UserID, o.BundleID, string(o.OrderType), o.Amount, o.ModifiedAmount, o.Currency,
		o.PaymentIntentCode, string(o.PaymentStatus), string(o.OrderStatus), snapshot,
		o.FulfillmentOrderID, o.PromoCode, o.ReferralCode, o.AnonymousUserID, o.CreatedAt, o.CallbackTime)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

func (r *orderRepo) FindByUserAndID(ctx context.Context, tx repository.Tx, userID, id string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1 AND user_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, id, userID)
	if err != nil {
		return nil, err
	}
	return scanOrder(row)
}

func (r *orderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, offset, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY created_at DESC OFFSET $2 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID, offset, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// ApplyPatch updates only the mutable columns, and only while the order is
// still pending. A terminal order never changes again; RowsAffected tells the
// caller whether anything moved.
func (r *orderRepo) ApplyPatch(ctx context.Context, tx repository.Tx, id string, patch model.OrderPatch) (bool, error) {
	var payStatus, orderStatus *string
	if patch.PaymentStatus != nil {
		s := string(*patch.PaymentStatus)
		payStatus = &s
	}
	if patch.OrderStatus != nil {
		s := string(*patch.OrderStatus)
		orderStatus = &s
	}
	const q = `
UPDATE orders
   SET payment_status = COALESCE($2, payment_status),
       order_status = COALESCE($3, order_status),
       payment_intent_code = COALESCE($4, payment_intent_code),
       fulfillment_order_id = COALESCE($5, fulfillment_order_id),
       callback_time = COALESCE($6, callback_time)
 WHERE id = $1
   AND order_status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, payStatus, orderStatus, patch.PaymentIntentCode, patch.FulfillmentOrderID, patch.CallbackTime)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*model.Order, error) {
	o := &model.Order{}
	var orderType, payStatus, orderStatus string
	var snapshot []byte
	if err := row.Scan(&o.ID, &o.UserID, &o.BundleID, &orderType, &o.Amount, &o.ModifiedAmount, &o.Currency,
		&o.PaymentIntentCode, &payStatus, &orderStatus, &snapshot,
		&o.FulfillmentOrderID, &o.PromoCode, &o.ReferralCode, &o.AnonymousUserID, &o.CreatedAt, &o.CallbackTime); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	o.OrderType = model.OrderType(orderType)
	o.PaymentStatus = model.PaymentStatus(payStatus)
	o.OrderStatus = model.OrderStatus(orderStatus)
	if len(snapshot) > 0 {
		b := &model.Bundle{}
		if err := json.Unmarshal(snapshot, b); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		o.BundleSnapshot = b
	}
	return o, nil
}
