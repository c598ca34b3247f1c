// File: internal/usecase/wallet_uc.go
package usecase

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var _ WalletUseCase = (*walletUC)(nil)

// WalletView is the balance plus recent ledger page returned to clients.
type WalletView struct {
	Wallet       *model.UserWallet
	Transactions []*model.WalletTransaction
}

type WalletUseCase interface {
	Get(ctx context.Context, userID string, offset, limit int) (*WalletView, error)
	// Credit applies a signed delta and writes the paired ledger row inside
	// the caller's transaction; tx must not be nil. The balance never goes
	// negative: an overdraw returns domain.ErrInsufficientFunds untouched.
	Credit(ctx context.Context, tx repository.Tx, userID string, amount int64, source string) (*model.UserWallet, error)
	// EnsureWallet creates an empty wallet for the user if none exists.
	EnsureWallet(ctx context.Context, tx repository.Tx, userID string) (*model.UserWallet, error)
	// RedeemVoucher claims the code and credits its amount. The claim and the
	// credit share one transaction, so a crash can never burn a voucher
	// without paying it out.
	RedeemVoucher(ctx context.Context, userID, code string) (*model.UserWallet, error)
}

type walletUC struct {
	wallets  repository.WalletRepository
	txns     repository.WalletTransactionRepository
	vouchers repository.VoucherRepository
	tm       repository.TransactionManager
	cfg      config.WalletConfig
	log      *zerolog.Logger
	entropy  *ulid.MonotonicEntropy
}

func NewWalletUseCase(
	wallets repository.WalletRepository,
	txns repository.WalletTransactionRepository,
	vouchers repository.VoucherRepository,
	tm repository.TransactionManager,
	cfg config.WalletConfig,
	logger *zerolog.Logger,
) *walletUC {
	return &walletUC{
		wallets:  wallets,
		txns:     txns,
		vouchers: vouchers,
		tm:       tm,
		cfg:      cfg,
		log:      logger,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (uc *walletUC) Get(ctx context.Context, userID string, offset, limit int) (*WalletView, error) {
	w, err := uc.wallets.FindByUserID(ctx, nil, userID)
	if errors.Is(err, domain.ErrWalletNotFound) || errors.Is(err, domain.ErrNotFound) {
		// Reads never create; an account without purchases simply has zero.
		return &WalletView{Wallet: &model.UserWallet{UserID: userID, Currency: uc.cfg.DefaultCurrency}}, nil
	}
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	txns, err := uc.txns.ListByWallet(ctx, nil, w.ID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &WalletView{Wallet: w, Transactions: txns}, nil
}

func (uc *walletUC) EnsureWallet(ctx context.Context, tx repository.Tx, userID string) (*model.UserWallet, error) {
	w, err := uc.wallets.FindByUserID(ctx, tx, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	now := time.Now()
	w = &model.UserWallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    0,
		Currency:  uc.cfg.DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.wallets.Create(ctx, tx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (uc *walletUC) Credit(ctx context.Context, tx repository.Tx, userID string, amount int64, source string) (*model.UserWallet, error) {
	if amount > 0 {
		// Credits may land on users who never had a wallet yet.
		if _, err := uc.EnsureWallet(ctx, tx, userID); err != nil {
			return nil, err
		}
	}
	w, err := uc.wallets.ApplyDelta(ctx, tx, userID, amount)
	if err != nil {
		return nil, err
	}
	t := &model.WalletTransaction{
		ID:        ulid.MustNew(ulid.Timestamp(time.Now()), uc.entropy).String(),
		WalletID:  w.ID,
		Amount:    amount,
		Source:    source,
		Status:    "completed",
		CreatedAt: time.Now(),
	}
	if err := uc.txns.Save(ctx, tx, t); err != nil {
		return nil, err
	}
	uc.log.Debug().Str("user_id", userID).Int64("delta", amount).Str("source", source).
		Int64("balance", w.Amount).Msg("wallet delta applied")
	return w, nil
}

func (uc *walletUC) RedeemVoucher(ctx context.Context, userID, code string) (*model.UserWallet, error) {
	v, err := uc.vouchers.FindByCode(ctx, nil, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrVoucherInvalid
	}
	if err != nil {
		return nil, err
	}
	if !v.IsActive || v.IsUsed {
		return nil, domain.ErrVoucherInvalid
	}

	var wallet *model.UserWallet
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		claimed, err := uc.vouchers.Claim(ctx, tx, v.ID, userID)
		if err != nil {
			return err
		}
		if !claimed {
			// Lost the race against a concurrent redemption.
			return domain.ErrVoucherInvalid
		}
		wallet, err = uc.Credit(ctx, tx, userID, v.Amount, model.WalletSourceVoucher)
		return err
	})
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("user_id", userID).Str("voucher_id", v.ID).
		Int64("amount", v.Amount).Msg("voucher redeemed")
	return wallet, nil
}
