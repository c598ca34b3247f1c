package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Repositories accept it as `qx any`
// style parameter and detect the concrete type implementation-side; nil means
// the non-transactional path.
type Tx interface{}

// TransactionManager executes a function within a database transaction,
// passing the underlying handle via `tx`. Keeping the interface this small
// lets use cases compose multi-repository writes (wallet delta + transaction
// row, usage update + cashback credit) without leaking pgx types upward.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
