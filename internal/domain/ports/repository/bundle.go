package repository

import (
	"context"

	"esim-reseller/internal/domain/model"
)

// BundleRepository reads the locally synced catalog. Sync itself is an
// external job; order creation only ever reads the current entry and freezes
// it into the order.
type BundleRepository interface {
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Bundle, error)
}
