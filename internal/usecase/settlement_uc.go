// File: internal/usecase/settlement_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var _ SettlementUseCase = (*settlementUC)(nil)

// SettlementUseCase moves PENDING usage rows to their final state once the
// triggering payment settles, and pays out cashback rewards. Both entry points
// accept the caller's transaction so the settlement commits or rolls back
// together with the payment bookkeeping; a nil tx opens its own.
type SettlementUseCase interface {
	// SettleOrderPromotion finalizes the promotion attached to an order. On a
	// COMPLETED settlement of a cashback rule, the reward lands on the buyer's
	// wallet in the same transaction.
	SettleOrderPromotion(ctx context.Context, tx repository.Tx, order *model.Order, status model.UsageStatus) error
	// SettleReferralAfterPurchase completes a deferred referral reward the
	// first time the referred user successfully pays for anything. A purchase
	// by the code owner never triggers the payout.
	SettleReferralAfterPurchase(ctx context.Context, tx repository.Tx, userID string) error
}

type settlementUC struct {
	usages   repository.PromotionUsageRepository
	promos   repository.PromotionRepository
	rules    repository.PromotionRuleRepository
	users    repository.UserRepository
	wallet   WalletUseCase
	tm       repository.TransactionManager
	referral config.ReferralConfig
	log      *zerolog.Logger
}

func NewSettlementUseCase(
	usages repository.PromotionUsageRepository,
	promos repository.PromotionRepository,
	rules repository.PromotionRuleRepository,
	users repository.UserRepository,
	wallet WalletUseCase,
	tm repository.TransactionManager,
	referral config.ReferralConfig,
	logger *zerolog.Logger,
) *settlementUC {
	return &settlementUC{usages: usages, promos: promos, rules: rules, users: users, wallet: wallet, tm: tm, referral: referral, log: logger}
}

func (uc *settlementUC) inTx(ctx context.Context, tx repository.Tx, fn func(ctx context.Context, tx repository.Tx) error) error {
	if tx != nil {
		return fn(ctx, tx)
	}
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, fn)
}

func (uc *settlementUC) SettleOrderPromotion(ctx context.Context, tx repository.Tx, order *model.Order, status model.UsageStatus) error {
	if order.PromoCode == nil {
		return nil
	}
	code := *order.PromoCode
	return uc.inTx(ctx, tx, func(ctx context.Context, tx repository.Tx) error {
		pending := model.UsageStatusPending
		rows, err := uc.usages.ListByUserAndPromoCode(ctx, tx, order.UserID, code, &pending)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := uc.usages.UpdateStatusByPromoCode(ctx, tx, order.UserID, code, status); err != nil {
			return err
		}
		if status != model.UsageStatusCompleted {
			return nil
		}
		promo, err := uc.promos.FindByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		rule, err := uc.rules.FindByID(ctx, tx, promo.RuleID)
		if err != nil {
			return err
		}
		if rule.Action != model.ActionCashbackAmount && rule.Action != model.ActionCashbackPercentage {
			return nil
		}
		for _, row := range rows {
			if _, err := uc.wallet.Credit(ctx, tx, row.UserID, row.Amount, model.WalletSourceCashback); err != nil {
				return err
			}
			uc.log.Info().Str("user_id", row.UserID).Str("code", code).
				Int64("amount", row.Amount).Msg("cashback settled")
		}
		return nil
	})
}

func (uc *settlementUC) SettleReferralAfterPurchase(ctx context.Context, tx repository.Tx, userID string) error {
	return uc.inTx(ctx, tx, func(ctx context.Context, tx repository.Tx) error {
		row, err := uc.usages.FindPendingReferralByUser(ctx, tx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		code := *row.ReferralCode
		owner, err := uc.users.FindByReferralCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if owner.ID == userID {
			// The owner's half settles when the referred party purchases.
			return nil
		}
		rule, err := uc.rules.FindByID(ctx, tx, uc.referral.DefaultRuleID)
		if err != nil {
			return err
		}
		parties := []string{userID}
		if owner.ID != userID {
			parties = append(parties, owner.ID)
		}
		for _, party := range parties {
			rows, err := uc.usages.ListByUserAndReferralCode(ctx, tx, party, code)
			if err != nil {
				return err
			}
			var pendingRows []*model.PromotionUsage
			for _, r := range rows {
				if r.Status == model.UsageStatusPending {
					pendingRows = append(pendingRows, r)
				}
			}
			if len(pendingRows) == 0 {
				continue
			}
			if err := uc.usages.UpdateStatusByReferralCode(ctx, tx, party, code, model.UsageStatusCompleted); err != nil {
				return err
			}
			if rule.Action != model.ActionCashbackAmount && rule.Action != model.ActionCashbackPercentage {
				continue
			}
			for _, r := range pendingRows {
				if _, err := uc.wallet.Credit(ctx, tx, party, r.Amount, model.WalletSourceReferral); err != nil {
					return err
				}
				uc.log.Info().Str("user_id", party).Str("code", code).
					Int64("amount", r.Amount).Msg("referral reward settled")
			}
		}
		return nil
	})
}
