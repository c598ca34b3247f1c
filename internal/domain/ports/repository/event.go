package repository

import (
	"context"
	"time"

	"esim-reseller/internal/domain/model"
)

// ProcessedEventRepository is the idempotency ledger for webhook deliveries.
// MarkProcessed must be atomic: exactly one concurrent delivery of the same
// event id wins, every other one sees domain.ErrDuplicateEvent.
type ProcessedEventRepository interface {
	MarkProcessed(ctx context.Context, tx Tx, eventID string) error
}

type NotificationOutboxRepository interface {
	Enqueue(ctx context.Context, tx Tx, n *model.Notification) error
	ListPending(ctx context.Context, tx Tx, limit int) ([]*model.Notification, error)
	CountPending(ctx context.Context, tx Tx) (int64, error)
	MarkSent(ctx context.Context, tx Tx, id string, at time.Time) error
	MarkFailed(ctx context.Context, tx Tx, id string, attempts int, terminal bool) error
}
