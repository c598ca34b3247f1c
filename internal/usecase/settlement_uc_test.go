//go:build !integration

package usecase_test

import (
	"context"
	"testing"
	"time"

	"esim-reseller/internal/domain/model"
)

func TestSettlementUC_SettleOrderPromotion(t *testing.T) {
	ctx := context.Background()

	seedUsage := func(e *testEnv, userID, code string, amount int64) {
		_ = e.usages.Save(ctx, nil, &model.PromotionUsage{
			ID: "usage-" + userID, UserID: userID, PromotionCode: &code,
			Amount: amount, Status: model.UsageStatusPending, CreatedAt: time.Now(),
		})
	}

	t.Run("an order without a promotion is a no-op", func(t *testing.T) {
		e := newTestEnv()
		order := &model.Order{ID: "order-1", UserID: "user-1"}
		if err := e.settlementUC.SettleOrderPromotion(ctx, nil, order, model.UsageStatusCompleted); err != nil {
			t.Fatalf("SettleOrderPromotion failed: %v", err)
		}
	})

	t.Run("completing a cashback usage credits the buyer", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("CB", "rule-1", model.ActionCashbackAmount, 700, 100)
		seedUsage(e, "user-1", "CB", 700)
		code := "CB"
		order := &model.Order{ID: "order-1", UserID: "user-1", PromoCode: &code}

		if err := e.settlementUC.SettleOrderPromotion(ctx, nil, order, model.UsageStatusCompleted); err != nil {
			t.Fatalf("SettleOrderPromotion failed: %v", err)
		}
		if got := e.walletBalance("user-1"); got != 700 {
			t.Errorf("balance = %d, want 700", got)
		}
	})

	t.Run("completing a discount usage never touches the wallet", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("OFF", "rule-1", model.ActionDiscountAmount, 700, 100)
		seedUsage(e, "user-1", "OFF", 700)
		code := "OFF"
		order := &model.Order{ID: "order-1", UserID: "user-1", PromoCode: &code}

		if err := e.settlementUC.SettleOrderPromotion(ctx, nil, order, model.UsageStatusCompleted); err != nil {
			t.Fatalf("SettleOrderPromotion failed: %v", err)
		}
		if got := e.walletBalance("user-1"); got != 0 {
			t.Errorf("a discount must not create a payout, balance %d", got)
		}
		rows, _ := e.usages.ListByUserAndPromoCode(ctx, nil, "user-1", "OFF", nil)
		if rows[0].Status != model.UsageStatusCompleted {
			t.Errorf("usage status = %s, want completed", rows[0].Status)
		}
	})

	t.Run("failing a usage pays nothing and records the failure", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("CB", "rule-1", model.ActionCashbackAmount, 700, 100)
		seedUsage(e, "user-1", "CB", 700)
		code := "CB"
		order := &model.Order{ID: "order-1", UserID: "user-1", PromoCode: &code}

		if err := e.settlementUC.SettleOrderPromotion(ctx, nil, order, model.UsageStatusFailed); err != nil {
			t.Fatalf("SettleOrderPromotion failed: %v", err)
		}
		if got := e.walletBalance("user-1"); got != 0 {
			t.Errorf("a failed settlement must not pay out, balance %d", got)
		}
	})

	t.Run("settling twice is a no-op once no rows are pending", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		e.seedPromotion("CB", "rule-1", model.ActionCashbackAmount, 700, 100)
		seedUsage(e, "user-1", "CB", 700)
		code := "CB"
		order := &model.Order{ID: "order-1", UserID: "user-1", PromoCode: &code}

		if err := e.settlementUC.SettleOrderPromotion(ctx, nil, order, model.UsageStatusCompleted); err != nil {
			t.Fatalf("first settlement failed: %v", err)
		}
		if err := e.settlementUC.SettleOrderPromotion(ctx, nil, order, model.UsageStatusCompleted); err != nil {
			t.Fatalf("second settlement failed: %v", err)
		}
		if got := e.walletBalance("user-1"); got != 700 {
			t.Errorf("balance = %d, want a single 700 payout", got)
		}
	})
}

func TestSettlementUC_SettleReferralAfterPurchase(t *testing.T) {
	ctx := context.Background()

	redeem := func(e *testEnv, t *testing.T) {
		t.Helper()
		e.seedUser("owner", "REF-OWNER")
		e.seedUser("friend", "REF-FRIEND")
		e.seedReferralRule(model.ActionCashbackAmount, model.BeneficiaryBoth, 100)
		if err := e.promoUC.RedeemReferral(ctx, "REF-OWNER", "friend"); err != nil {
			t.Fatalf("RedeemReferral failed: %v", err)
		}
	}

	t.Run("a user without a pending referral settles nothing", func(t *testing.T) {
		e := newTestEnv()
		e.seedUser("user-1", "REF-USER1")
		if err := e.settlementUC.SettleReferralAfterPurchase(ctx, nil, "user-1"); err != nil {
			t.Fatalf("SettleReferralAfterPurchase failed: %v", err)
		}
	})

	t.Run("the referred user's purchase pays both parties", func(t *testing.T) {
		e := newTestEnv()
		redeem(e, t)

		if err := e.settlementUC.SettleReferralAfterPurchase(ctx, nil, "friend"); err != nil {
			t.Fatalf("SettleReferralAfterPurchase failed: %v", err)
		}
		if got := e.walletBalance("friend"); got != 500 {
			t.Errorf("referred balance = %d, want 500", got)
		}
		if got := e.walletBalance("owner"); got != 500 {
			t.Errorf("referrer balance = %d, want 500", got)
		}
		for _, userID := range []string{"friend", "owner"} {
			rows, _ := e.usages.ListByUserAndReferralCode(ctx, nil, userID, "REF-OWNER")
			if rows[0].Status != model.UsageStatusCompleted {
				t.Errorf("usage for %s = %s, want completed", userID, rows[0].Status)
			}
		}
	})

	t.Run("a purchase by the code owner pays nobody", func(t *testing.T) {
		e := newTestEnv()
		redeem(e, t)

		if err := e.settlementUC.SettleReferralAfterPurchase(ctx, nil, "owner"); err != nil {
			t.Fatalf("SettleReferralAfterPurchase failed: %v", err)
		}
		if e.walletBalance("owner") != 0 || e.walletBalance("friend") != 0 {
			t.Error("the owner's own purchase must not trigger the payout")
		}
	})

	t.Run("a second purchase settles nothing further", func(t *testing.T) {
		e := newTestEnv()
		redeem(e, t)
		if err := e.settlementUC.SettleReferralAfterPurchase(ctx, nil, "friend"); err != nil {
			t.Fatalf("first settlement failed: %v", err)
		}

		if err := e.settlementUC.SettleReferralAfterPurchase(ctx, nil, "friend"); err != nil {
			t.Fatalf("second settlement failed: %v", err)
		}
		if got := e.walletBalance("friend"); got != 500 {
			t.Errorf("referred balance = %d, want a single 500 payout", got)
		}
	})
}
