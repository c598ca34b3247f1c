package repository

import (
	"context"

	"esim-reseller/internal/domain/model"
)

type WalletRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserWallet, error)
	FindByUserID(ctx context.Context, tx Tx, userID string) (*model.UserWallet, error)
	Create(ctx context.Context, tx Tx, w *model.UserWallet) error
	// ApplyDelta atomically adds delta to the balance. A debit that would take
	// the balance below zero changes nothing and returns
	// domain.ErrInsufficientFunds; a missing wallet returns ErrWalletNotFound.
	ApplyDelta(ctx context.Context, tx Tx, userID string, delta int64) (*model.UserWallet, error)
}

type VoucherRepository interface {
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Voucher, error)
	// Claim marks the voucher as used by userID. It reports false when the
	// voucher is inactive or already claimed, changing nothing; the guard is
	// atomic so two concurrent redemptions cannot both win.
	Claim(ctx context.Context, tx Tx, id, userID string) (bool, error)
}

type WalletTransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.WalletTransaction) error
	ListByWallet(ctx context.Context, tx Tx, walletID string, offset, limit int) ([]*model.WalletTransaction, error)
	SumByWallet(ctx context.Context, tx Tx, walletID string) (int64, error)
}
