//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
)

func TestPromotionUC_ResolveCode(t *testing.T) {
	ctx := context.Background()

	t.Run("should resolve a valid promotion code", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("SUMMER20", "rule-1", model.ActionDiscountPercentage, 20, 100)

		codeType, ruleID, err := e.promoUC.ResolveCode(ctx, "SUMMER20", "user-1")
		if err != nil {
			t.Fatalf("ResolveCode failed: %v", err)
		}
		if codeType != model.CodeTypePromotion || ruleID != "rule-1" {
			t.Errorf("got (%s, %s), want (PROMOTION, rule-1)", codeType, ruleID)
		}
	})

	t.Run("should reject an unknown code", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")

		_, _, err := e.promoUC.ResolveCode(ctx, "NOPE", "user-1")
		if !errors.Is(err, domain.ErrPromotionNotFound) {
			t.Errorf("expected ErrPromotionNotFound, got %v", err)
		}
	})

	t.Run("should reject an inactive promotion", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("OFF", "rule-1", model.ActionDiscountAmount, 500, 10)
		p, _ := e.promos.FindByCode(ctx, nil, "OFF")
		p.IsActive = false
		e.promos.Add(p)

		_, _, err := e.promoUC.ResolveCode(ctx, "OFF", "user-1")
		if !errors.Is(err, domain.ErrPromotionInactive) {
			t.Errorf("expected ErrPromotionInactive, got %v", err)
		}
	})

	t.Run("should reject a promotion outside its validity window", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("OLD", "rule-1", model.ActionDiscountAmount, 500, 10)
		p, _ := e.promos.FindByCode(ctx, nil, "OLD")
		p.ValidTo = time.Now().Add(-time.Minute)
		e.promos.Add(p)

		_, _, err := e.promoUC.ResolveCode(ctx, "OLD", "user-1")
		if !errors.Is(err, domain.ErrPromotionExpired) {
			t.Errorf("expected ErrPromotionExpired, got %v", err)
		}
	})

	t.Run("should reject an exhausted promotion", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("FULL", "rule-1", model.ActionDiscountAmount, 500, 1)
		p, _ := e.promos.FindByCode(ctx, nil, "FULL")
		p.TimesUsed = 1
		e.promos.Add(p)

		_, _, err := e.promoUC.ResolveCode(ctx, "FULL", "user-1")
		if !errors.Is(err, domain.ErrPromotionExhausted) {
			t.Errorf("expected ErrPromotionExhausted, got %v", err)
		}
	})

	t.Run("should reject a promotion the user already settled", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("ONCE", "rule-1", model.ActionDiscountAmount, 500, 10)
		code := "ONCE"
		_ = e.usages.Save(ctx, nil, &model.PromotionUsage{
			ID: "u1", UserID: "user-1", PromotionCode: &code,
			Status: model.UsageStatusCompleted, CreatedAt: time.Now(),
		})

		_, _, err := e.promoUC.ResolveCode(ctx, "ONCE", "user-1")
		if !errors.Is(err, domain.ErrPromotionAlreadyUsed) {
			t.Errorf("expected ErrPromotionAlreadyUsed, got %v", err)
		}
	})

	t.Run("should reject redeeming one's own referral code", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("owner", "REF-OWNER")
		e.seedReferralRule(model.ActionCashbackAmount, model.BeneficiaryBoth, 100)

		_, _, err := e.promoUC.ResolveCode(ctx, "REF-OWNER", "owner")
		if !errors.Is(err, domain.ErrSelfReferral) {
			t.Errorf("expected ErrSelfReferral, got %v", err)
		}
	})

	t.Run("should resolve a referral code for another user", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("owner", "REF-OWNER")
		e.seedUser("friend", "REF-FRIEND")
		e.seedReferralRule(model.ActionCashbackAmount, model.BeneficiaryBoth, 100)

		codeType, ruleID, err := e.promoUC.ResolveCode(ctx, "REF-OWNER", "friend")
		if err != nil {
			t.Fatalf("ResolveCode failed: %v", err)
		}
		if codeType != model.CodeTypeReferral || ruleID != "referral-rule" {
			t.Errorf("got (%s, %s), want (REFERRAL, referral-rule)", codeType, ruleID)
		}
	})

	t.Run("a prior referral row blocks a second redemption regardless of status", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("owner", "REF-OWNER")
		e.seedUser("friend", "REF-FRIEND")
		e.seedReferralRule(model.ActionCashbackAmount, model.BeneficiaryBoth, 100)
		code := "REF-OWNER"
		_ = e.usages.Save(ctx, nil, &model.PromotionUsage{
			ID: "u1", UserID: "friend", ReferralCode: &code,
			Status: model.UsageStatusFailed, CreatedAt: time.Now(),
		})

		_, _, err := e.promoUC.ResolveCode(ctx, "REF-OWNER", "friend")
		if !errors.Is(err, domain.ErrPromotionAlreadyUsed) {
			t.Errorf("expected ErrPromotionAlreadyUsed, got %v", err)
		}
	})
}

func TestPromotionUC_Preview(t *testing.T) {
	ctx := context.Background()

	t.Run("percentage discount rounds half-up and reduces the charge", func(t *testing.T) {
		e := newTestEnv()
		e.seedBundle("EU-5GB-30D", 10000)
		e.seedPromotion("SUMMER20", "rule-1", model.ActionDiscountPercentage, 20, 100)

		preview, err := e.promoUC.PreviewForBundle(ctx, "rule-1", "EU-5GB-30D", false)
		if err != nil {
			t.Fatalf("PreviewForBundle failed: %v", err)
		}
		if preview.ResultAmount != 8000 {
			t.Errorf("ResultAmount = %d, want 8000", preview.ResultAmount)
		}
		if preview.Cashback != 0 {
			t.Errorf("a discount must not produce cashback, got %d", preview.Cashback)
		}
	})

	t.Run("fractional percentage rounds to the nearest minor unit", func(t *testing.T) {
		e := newTestEnv()
		// 15% of 999 = 149.85, rounds to 150.
		e.seedBundle("TINY", 999)
		e.seedPromotion("P15", "rule-1", model.ActionDiscountPercentage, 15, 100)

		preview, err := e.promoUC.PreviewForBundle(ctx, "rule-1", "TINY", false)
		if err != nil {
			t.Fatalf("PreviewForBundle failed: %v", err)
		}
		if preview.ResultAmount != 849 {
			t.Errorf("ResultAmount = %d, want 849", preview.ResultAmount)
		}
	})

	t.Run("fixed discount larger than the price clamps at zero", func(t *testing.T) {
		e := newTestEnv()
		e.seedBundle("CHEAP", 300)
		e.seedPromotion("BIG", "rule-1", model.ActionDiscountAmount, 500, 100)

		preview, err := e.promoUC.PreviewForBundle(ctx, "rule-1", "CHEAP", false)
		if err != nil {
			t.Fatalf("PreviewForBundle failed: %v", err)
		}
		if preview.ResultAmount != 0 {
			t.Errorf("ResultAmount = %d, want 0", preview.ResultAmount)
		}
	})

	t.Run("cashback never changes the charged amount", func(t *testing.T) {
		e := newTestEnv()
		e.seedBundle("EU-5GB-30D", 10000)
		e.seedPromotion("CB10", "rule-1", model.ActionCashbackPercentage, 10, 100)

		preview, err := e.promoUC.PreviewForBundle(ctx, "rule-1", "EU-5GB-30D", false)
		if err != nil {
			t.Fatalf("PreviewForBundle failed: %v", err)
		}
		if preview.ResultAmount != 10000 {
			t.Errorf("ResultAmount = %d, want the full price", preview.ResultAmount)
		}
		if preview.Cashback != 1000 {
			t.Errorf("Cashback = %d, want 1000", preview.Cashback)
		}
	})

	t.Run("unknown bundle maps to an invalid-argument error", func(t *testing.T) {
		e := newTestEnv()
		e.seedPromotion("SUMMER20", "rule-1", model.ActionDiscountPercentage, 20, 100)

		_, err := e.promoUC.PreviewForBundle(ctx, "rule-1", "GHOST", false)
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPromotionUC_RegisterReward(t *testing.T) {
	ctx := context.Background()

	t.Run("should write a pending usage and consume one usage slot", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		bundle := e.seedBundle("EU-5GB-30D", 10000)
		e.seedPromotion("SUMMER20", "rule-1", model.ActionDiscountPercentage, 20, 100)

		charged, err := e.promoUC.RegisterReward(ctx, "rule-1", "user-1", bundle, "SUMMER20", false)
		if err != nil {
			t.Fatalf("RegisterReward failed: %v", err)
		}
		if charged != 8000 {
			t.Errorf("charged = %d, want 8000", charged)
		}

		rows, _ := e.usages.ListByUserAndPromoCode(ctx, nil, "user-1", "SUMMER20", nil)
		if len(rows) != 1 || rows[0].Status != model.UsageStatusPending {
			t.Fatalf("expected one pending usage row, got %+v", rows)
		}
		if rows[0].Amount != 2000 {
			t.Errorf("usage amount = %d, want the discount magnitude 2000", rows[0].Amount)
		}
		p, _ := e.promos.FindByCode(ctx, nil, "SUMMER20")
		if p.TimesUsed != 1 {
			t.Errorf("times_used = %d, want 1", p.TimesUsed)
		}
	})

	t.Run("should fail when the usage budget races to exhaustion", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		bundle := e.seedBundle("EU-5GB-30D", 10000)
		e.seedPromotion("LAST", "rule-1", model.ActionDiscountPercentage, 20, 1)
		p, _ := e.promos.FindByCode(ctx, nil, "LAST")
		p.TimesUsed = 1
		e.promos.Add(p)

		_, err := e.promoUC.RegisterReward(ctx, "rule-1", "user-1", bundle, "LAST", false)
		if !errors.Is(err, domain.ErrPromotionExhausted) {
			t.Errorf("expected ErrPromotionExhausted, got %v", err)
		}
	})

	t.Run("referral redemption writes one pending row per beneficiary", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("owner", "REF-OWNER")
		e.seedUser("friend", "REF-FRIEND")
		e.seedReferralRule(model.ActionCashbackAmount, model.BeneficiaryBoth, 100)

		if err := e.promoUC.RedeemReferral(ctx, "REF-OWNER", "friend"); err != nil {
			t.Fatalf("RedeemReferral failed: %v", err)
		}

		for _, userID := range []string{"friend", "owner"} {
			rows, _ := e.usages.ListByUserAndReferralCode(ctx, nil, userID, "REF-OWNER")
			if len(rows) != 1 || rows[0].Status != model.UsageStatusPending {
				t.Fatalf("expected one pending row for %s, got %+v", userID, rows)
			}
			if rows[0].Amount != 500 {
				t.Errorf("reward for %s = %d, want the configured 500", userID, rows[0].Amount)
			}
		}
	})

	t.Run("redeeming a plain promotion code as a referral is rejected", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("SUMMER20", "rule-1", model.ActionDiscountPercentage, 20, 100)

		err := e.promoUC.RedeemReferral(ctx, "SUMMER20", "user-1")
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("order-scoped rule without a bundle violates its constraints", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("SUMMER20", "rule-1", model.ActionDiscountPercentage, 20, 100)

		_, err := e.promoUC.RegisterReward(ctx, "rule-1", "user-1", nil, "SUMMER20", false)
		if !errors.Is(err, domain.ErrRuleConstraint) {
			t.Errorf("expected ErrRuleConstraint, got %v", err)
		}
	})
}
