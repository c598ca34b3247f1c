// File: internal/usecase/promotion_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

// Compile-time check
var _ PromotionUseCase = (*promotionUC)(nil)

// RewardPreview is the outcome of evaluating a rule against a bundle price.
// ResultAmount is what the buyer is charged; Cashback is paid out after the
// order settles and never changes the charged price.
type RewardPreview struct {
	ResultAmount int64
	Cashback     int64
	Message      string
}

type PromotionUseCase interface {
	// ResolveCode classifies a code as the owner's referral code or a
	// promotion and validates eligibility for this user. Each violation maps
	// to its own sentinel error so callers can render a precise message.
	ResolveCode(ctx context.Context, code, userID string) (model.CodeType, string, error)
	// PreviewReward is the pure computation used by price-preview endpoints.
	PreviewReward(ctx context.Context, ruleID string, bundle *model.Bundle, isReferral bool) (*RewardPreview, error)
	// PreviewForBundle resolves the bundle by code first.
	PreviewForBundle(ctx context.Context, ruleID, bundleCode string, isReferral bool) (*RewardPreview, error)
	// RegisterReward performs the same computation, writes one PENDING usage
	// row per eligible beneficiary and returns the amount to charge.
	RegisterReward(ctx context.Context, ruleID, userID string, bundle *model.Bundle, code string, isReferral bool) (int64, error)
	// RedeemReferral records a referral code at signup time; the reward
	// settles only once the redeemer actually buys something.
	RedeemReferral(ctx context.Context, code, userID string) error
	History(ctx context.Context, userID string) ([]*model.PromotionUsage, error)
}

type promotionUC struct {
	promos   repository.PromotionRepository
	rules    repository.PromotionRuleRepository
	usages   repository.PromotionUsageRepository
	users    repository.UserRepository
	bundles  repository.BundleRepository
	tm       repository.TransactionManager
	referral config.ReferralConfig
	log      *zerolog.Logger
}

func NewPromotionUseCase(
	promos repository.PromotionRepository,
	rules repository.PromotionRuleRepository,
	usages repository.PromotionUsageRepository,
	users repository.UserRepository,
	bundles repository.BundleRepository,
	tm repository.TransactionManager,
	referral config.ReferralConfig,
	logger *zerolog.Logger,
) *promotionUC {
	return &promotionUC{promos: promos, rules: rules, usages: usages, users: users, bundles: bundles, tm: tm, referral: referral, log: logger}
}

func (uc *promotionUC) ResolveCode(ctx context.Context, code, userID string) (model.CodeType, string, error) {
	owner, err := uc.users.FindByReferralCode(ctx, nil, code)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return "", "", err
	}
	if err == nil {
		return uc.resolveReferral(ctx, owner, code, userID)
	}

	promo, err := uc.promos.FindByCode(ctx, nil, code)
	if errors.Is(err, domain.ErrNotFound) {
		return "", "", domain.ErrPromotionNotFound
	}
	if err != nil {
		return "", "", err
	}
	if !promo.IsActive {
		return "", "", domain.ErrPromotionInactive
	}
	// Half-open window: valid at ValidFrom, already expired at ValidTo.
	now := time.Now()
	if now.Before(promo.ValidFrom) || !now.Before(promo.ValidTo) {
		return "", "", domain.ErrPromotionExpired
	}
	rule, err := uc.rules.FindByID(ctx, nil, promo.RuleID)
	if err != nil {
		return "", "", err
	}
	if promo.TimesUsed >= rule.MaxUsage {
		return "", "", domain.ErrPromotionExhausted
	}
	completed := model.UsageStatusCompleted
	prior, err := uc.usages.ListByUserAndPromoCode(ctx, nil, userID, code, &completed)
	if err != nil {
		return "", "", err
	}
	if len(prior) > 0 {
		return "", "", domain.ErrPromotionAlreadyUsed
	}
	return model.CodeTypePromotion, promo.RuleID, nil
}

func (uc *promotionUC) resolveReferral(ctx context.Context, owner *model.User, code, userID string) (model.CodeType, string, error) {
	if owner.ID == userID {
		return "", "", domain.ErrSelfReferral
	}
	// Any prior row, regardless of status, blocks a second redemption.
	prior, err := uc.usages.ListByUserAndReferralCode(ctx, nil, userID, code)
	if err != nil {
		return "", "", err
	}
	if len(prior) > 0 {
		return "", "", domain.ErrPromotionAlreadyUsed
	}
	rule, err := uc.rules.FindByID(ctx, nil, uc.referral.DefaultRuleID)
	if err != nil {
		return "", "", err
	}
	total, err := uc.usages.CountByReferralCode(ctx, nil, code)
	if err != nil {
		return "", "", err
	}
	if total >= rule.MaxUsage {
		return "", "", domain.ErrPromotionExhausted
	}
	return model.CodeTypeReferral, rule.ID, nil
}

func (uc *promotionUC) PreviewReward(ctx context.Context, ruleID string, bundle *model.Bundle, isReferral bool) (*RewardPreview, error) {
	rule, err := uc.rules.FindByID(ctx, nil, ruleID)
	if err != nil {
		return nil, err
	}
	if err := validateRuleConstraints(rule, bundle, isReferral); err != nil {
		return nil, err
	}
	amount, err := uc.rewardAmount(ctx, ruleID, isReferral)
	if err != nil {
		return nil, err
	}
	var price int64
	if bundle != nil {
		price = bundle.Price
	}
	return computeReward(rule.Action, price, amount), nil
}

func (uc *promotionUC) PreviewForBundle(ctx context.Context, ruleID, bundleCode string, isReferral bool) (*RewardPreview, error) {
	bundle, err := uc.bundles.FindByCode(ctx, nil, bundleCode)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown bundle %s", domain.ErrInvalidArgument, bundleCode)
	}
	if err != nil {
		return nil, err
	}
	return uc.PreviewReward(ctx, ruleID, bundle, isReferral)
}

func (uc *promotionUC) RegisterReward(ctx context.Context, ruleID, userID string, bundle *model.Bundle, code string, isReferral bool) (int64, error) {
	rule, err := uc.rules.FindByID(ctx, nil, ruleID)
	if err != nil {
		return 0, err
	}
	if err := validateRuleConstraints(rule, bundle, isReferral); err != nil {
		return 0, err
	}
	amount, err := uc.rewardAmount(ctx, ruleID, isReferral)
	if err != nil {
		return 0, err
	}
	var price int64
	if bundle != nil {
		price = bundle.Price
	}
	preview := computeReward(rule.Action, price, amount)
	rewardValue := preview.Cashback
	if rewardValue == 0 {
		rewardValue = price - preview.ResultAmount // discount magnitude
	}

	var ownerID string
	if isReferral {
		owner, err := uc.users.FindByReferralCode(ctx, nil, code)
		if err != nil {
			return 0, err
		}
		ownerID = owner.ID
	}

	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, beneficiary := range beneficiaryUsers(rule.Beneficiary, userID, ownerID, isReferral) {
			if err := uc.insertUsage(ctx, tx, beneficiary, rewardValue, code, isReferral, bundle); err != nil {
				return err
			}
		}
		if !isReferral {
			ok, err := uc.promos.IncrementUsage(ctx, tx, code, rule.MaxUsage)
			if err != nil {
				return err
			}
			if !ok {
				return domain.ErrPromotionExhausted
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	uc.log.Info().Str("code", code).Str("rule_id", ruleID).Str("user_id", userID).
		Int64("charged", preview.ResultAmount).Msg("reward registered")
	return preview.ResultAmount, nil
}

func (uc *promotionUC) RedeemReferral(ctx context.Context, code, userID string) error {
	codeType, ruleID, err := uc.ResolveCode(ctx, code, userID)
	if err != nil {
		return err
	}
	if codeType != model.CodeTypeReferral {
		return fmt.Errorf("%w: %q is not a referral code", domain.ErrInvalidArgument, code)
	}
	_, err = uc.RegisterReward(ctx, ruleID, userID, nil, code, true)
	return err
}

func (uc *promotionUC) History(ctx context.Context, userID string) ([]*model.PromotionUsage, error) {
	return uc.usages.ListCompletedByUser(ctx, nil, userID)
}

func (uc *promotionUC) rewardAmount(ctx context.Context, ruleID string, isReferral bool) (int64, error) {
	if isReferral {
		return uc.referral.RewardAmount, nil
	}
	promo, err := uc.promos.FindByRuleID(ctx, nil, ruleID)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("%w: promotion rule %s has no promotion", domain.ErrInvalidArgument, ruleID)
	}
	if err != nil {
		return 0, err
	}
	return promo.Amount, nil
}

func (uc *promotionUC) insertUsage(ctx context.Context, tx repository.Tx, userID string, amount int64, code string, isReferral bool, bundle *model.Bundle) error {
	u := &model.PromotionUsage{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Status:    model.UsageStatusPending,
		CreatedAt: time.Now(),
	}
	if isReferral {
		u.ReferralCode = &code
	} else {
		u.PromotionCode = &code
	}
	if bundle != nil {
		bundleID := bundle.Code
		u.BundleID = &bundleID
	}
	return uc.usages.Save(ctx, tx, u)
}

// beneficiaryUsers maps the rule's beneficiary policy to concrete user ids.
// For a plain promotion the redeemer is the only party.
func beneficiaryUsers(b model.Beneficiary, redeemerID, ownerID string, isReferral bool) []string {
	if !isReferral {
		return []string{redeemerID}
	}
	switch b {
	case model.BeneficiaryReferred:
		return []string{redeemerID}
	case model.BeneficiaryReferrer:
		return []string{ownerID}
	default:
		return []string{redeemerID, ownerID}
	}
}

func validateRuleConstraints(rule *model.PromotionRule, bundle *model.Bundle, isReferral bool) error {
	if rule.Event == model.EventCreateOrder && bundle == nil {
		return fmt.Errorf("%w: rule requires an order context", domain.ErrRuleConstraint)
	}
	if rule.Action != model.ActionCashbackAmount && bundle == nil {
		return fmt.Errorf("%w: rule action %s requires a bundle", domain.ErrRuleConstraint, rule.Action)
	}
	if rule.Event == model.EventCreateAccount && rule.Action != model.ActionCashbackAmount {
		return fmt.Errorf("%w: account events support fixed cashback only", domain.ErrRuleConstraint)
	}
	if !isReferral && rule.Beneficiary != model.BeneficiaryReferrer {
		return fmt.Errorf("%w: promotion rules cannot reward the referred party", domain.ErrRuleConstraint)
	}
	return nil
}

// computeReward evaluates a rule action against a minor-unit price.
// Discounts change the charged amount; cashback never does. A fixed discount
// larger than the price clamps the charge at zero.
func computeReward(action model.RuleAction, price, amount int64) *RewardPreview {
	switch action {
	case model.ActionDiscountAmount:
		result := price - amount
		if result < 0 {
			result = 0
		}
		return &RewardPreview{ResultAmount: result, Message: fmt.Sprintf("Discount Amount %d", price-result)}
	case model.ActionDiscountPercentage:
		discount := (price*amount + 50) / 100 // round half-up to the minor unit
		return &RewardPreview{ResultAmount: price - discount, Message: fmt.Sprintf("Discount Amount %d", discount)}
	case model.ActionCashbackAmount:
		return &RewardPreview{ResultAmount: price, Cashback: amount, Message: fmt.Sprintf("Cash Back Amount %d", amount)}
	case model.ActionCashbackPercentage:
		cashback := (price*amount + 50) / 100
		return &RewardPreview{ResultAmount: price, Cashback: cashback, Message: fmt.Sprintf("Cash Back Amount %d", cashback)}
	}
	return &RewardPreview{ResultAmount: price}
}
