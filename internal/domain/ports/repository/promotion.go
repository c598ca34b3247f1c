package repository

import (
	"context"

	"esim-reseller/internal/domain/model"
)

type PromotionRepository interface {
	FindByCode(ctx context.Context, tx Tx, code string) (*model.Promotion, error)
	FindByRuleID(ctx context.Context, tx Tx, ruleID string) (*model.Promotion, error)
	// IncrementUsage bumps times_used only while it is below maxUsage; the
	// returned bool is false when the budget is already exhausted.
	IncrementUsage(ctx context.Context, tx Tx, code string, maxUsage int) (bool, error)
}

type PromotionRuleRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.PromotionRule, error)
}

type PromotionUsageRepository interface {
	Save(ctx context.Context, tx Tx, u *model.PromotionUsage) error
	ListByUserAndPromoCode(ctx context.Context, tx Tx, userID, code string, status *model.UsageStatus) ([]*model.PromotionUsage, error)
	ListByUserAndReferralCode(ctx context.Context, tx Tx, userID, code string) ([]*model.PromotionUsage, error)
	CountByReferralCode(ctx context.Context, tx Tx, code string) (int, error)
	FindPendingReferralByUser(ctx context.Context, tx Tx, userID string) (*model.PromotionUsage, error)
	ListCompletedByUser(ctx context.Context, tx Tx, userID string) ([]*model.PromotionUsage, error)
	// UpdateStatusByPromoCode / ByReferralCode settle usage rows for one user.
	// Completing a row that collides with the (user, code, completed)
	// uniqueness guarantee returns domain.ErrPromotionAlreadyUsed.
	UpdateStatusByPromoCode(ctx context.Context, tx Tx, userID, code string, status model.UsageStatus) error
	UpdateStatusByReferralCode(ctx context.Context, tx Tx, userID, code string, status model.UsageStatus) error
}
