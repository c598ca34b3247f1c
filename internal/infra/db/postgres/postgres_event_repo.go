package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var (
	_ repository.ProcessedEventRepository     = (*processedEventRepo)(nil)
	_ repository.NotificationOutboxRepository = (*notificationOutboxRepo)(nil)
)

// processedEventRepo is the webhook idempotency ledger. The primary key on
// event_id is what makes MarkProcessed a race-free claim: exactly one
// transaction inserts the row, every other one fails the conflict check.
type processedEventRepo struct{ pool *pgxpool.Pool }

func NewProcessedEventRepo(pool *pgxpool.Pool) *processedEventRepo {
	return &processedEventRepo{pool: pool}
}

func (r *processedEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, eventID string) error {
	const q = `INSERT INTO processed_events (event_id, processed_at) VALUES ($1, NOW()) ON CONFLICT (event_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, eventID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

type notificationOutboxRepo struct{ pool *pgxpool.Pool }

func NewNotificationOutboxRepo(pool *pgxpool.Pool) *notificationOutboxRepo {
	return &notificationOutboxRepo{pool: pool}
}

func (r *notificationOutboxRepo) Enqueue(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	const q = `
INSERT INTO notification_outbox (id, user_id, channel, recipient, subject, body, status, attempts, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := execSQL(ctx, r.pool, tx, q, n.ID, n.UserID, string(n.Channel), n.Recipient, n.Subject, n.Body, string(n.Status), n.Attempts, n.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// ListPending claims a batch with SKIP LOCKED so concurrent dispatchers never
// double-send the same entry.
func (r *notificationOutboxRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, user_id, channel, recipient, subject, body, status, attempts, created_at, sent_at
  FROM notification_outbox
 WHERE status = 'pending'
 ORDER BY id ASC
 LIMIT $1
 FOR UPDATE SKIP LOCKED;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		var channel, status string
		if err := rows.Scan(&n.ID, &n.UserID, &channel, &n.Recipient, &n.Subject, &n.Body, &status, &n.Attempts, &n.CreatedAt, &n.SentAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		n.Channel = model.NotificationChannel(channel)
		n.Status = model.NotificationStatus(status)
		out = append(out, n)
	}
	return out, nil
}

func (r *notificationOutboxRepo) CountPending(ctx context.Context, tx repository.Tx) (int64, error) {
	const q = `SELECT COUNT(*) FROM notification_outbox WHERE status = 'pending';`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}

func (r *notificationOutboxRepo) MarkSent(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE notification_outbox SET status='sent', sent_at=$2 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *notificationOutboxRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, attempts int, terminal bool) error {
	status := "pending"
	if terminal {
		status = "failed"
	}
	const q = `UPDATE notification_outbox SET status=$2, attempts=$3 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, status, attempts)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
