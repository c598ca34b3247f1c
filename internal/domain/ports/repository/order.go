package repository

import (
	"context"

	"esim-reseller/internal/domain/model"
)

type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	FindByUserAndID(ctx context.Context, tx Tx, userID, id string) (*model.Order, error)
	ListByUser(ctx context.Context, tx Tx, userID string, offset, limit int) ([]*model.Order, error)
	// ApplyPatch updates only the mutable order fields. It refuses to touch a
	// terminal order unless the patch re-applies the identical terminal state:
	// the returned bool reports whether a row actually changed.
	ApplyPatch(ctx context.Context, tx Tx, id string, patch model.OrderPatch) (bool, error)
}
