// File: internal/usecase/order_uc.go
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
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/domain/ports/repository"
)

var _ OrderUseCase = (*orderUC)(nil)

// AssignResult is what a purchase endpoint returns synchronously. Either the
// client gets a PaymentIntent to confirm, or PaidFromWallet is true and the
// order already settled against the wallet balance.
type AssignResult struct {
	OrderID        string
	Amount         int64
	ModifiedAmount int64
	Currency       string
	PaymentIntent  *adapter.PaymentIntent
	PaidFromWallet bool
}

// AssignParams collects the purchase inputs shared by first-time assignment
// and bundle top-up.
type AssignParams struct {
	UserID        string
	CustomerEmail string
	BundleCode    string
	ICCID         string // top-up only
	PromoCode     string
	PayFromWallet bool
	PayWithDCB    bool
	MSISDN        string // carrier billing only
}

// CarrierConfirmParams completes a carrier billing purchase with the OTP the
// subscriber received. ICCID is only needed for top-up orders, where the
// profile has to be resolved again.
type CarrierConfirmParams struct {
	UserID  string
	OrderID string
	OTP     string
	ICCID   string
}

type OrderUseCase interface {
	// Assign starts a first-time bundle purchase: price the bundle, apply an
	// optional promotion, freeze a snapshot and open the payment leg.
	Assign(ctx context.Context, p AssignParams) (*AssignResult, error)
	// AssignTopUp starts a top-up purchase for an eSIM the user already owns.
	AssignTopUp(ctx context.Context, p AssignParams) (*AssignResult, error)
	// TopUpWallet opens a card payment whose settlement credits the wallet.
	TopUpWallet(ctx context.Context, userID, customerEmail string, amount int64) (*AssignResult, error)
	// ConfirmCarrierCharge captures an open carrier billing transaction with
	// the subscriber's OTP, then settles and provisions the order in the same
	// way a wallet payment does.
	ConfirmCarrierCharge(ctx context.Context, p CarrierConfirmParams) (*AssignResult, error)
	// Cancel voids a still-pending order and its payment intent.
	Cancel(ctx context.Context, userID, orderID string) error
	// Transition applies a patch and enforces terminal-state immutability:
	// re-applying the identical terminal state is a no-op, a conflicting one
	// returns domain.ErrConflictingSettlement.
	Transition(ctx context.Context, tx repository.Tx, orderID string, patch model.OrderPatch) error
	GetByID(ctx context.Context, userID, orderID string) (*model.Order, error)
	History(ctx context.Context, userID string, offset, limit int) ([]*model.Order, error)
}

type orderUC struct {
	orders       repository.OrderRepository
	bundles      repository.BundleRepository
	profiles     repository.ProfileRepository
	promotion    PromotionUseCase
	settlement   SettlementUseCase
	wallet       WalletUseCase
	provisioning ProvisioningUseCase
	gateway      adapter.PaymentGateway
	carrier      adapter.CarrierBillingGateway
	fulfillment  adapter.FulfillmentClient
	tm           repository.TransactionManager
	payCfg       config.PaymentConfig
	log          *zerolog.Logger
}

func NewOrderUseCase(
	orders repository.OrderRepository,
	bundles repository.BundleRepository,
	profiles repository.ProfileRepository,
	promotion PromotionUseCase,
	settlement SettlementUseCase,
	wallet WalletUseCase,
	provisioning ProvisioningUseCase,
	gateway adapter.PaymentGateway,
	carrier adapter.CarrierBillingGateway,
	fulfillment adapter.FulfillmentClient,
	tm repository.TransactionManager,
	payCfg config.PaymentConfig,
	logger *zerolog.Logger,
) *orderUC {
	return &orderUC{
		orders: orders, bundles: bundles, profiles: profiles,
		promotion: promotion, settlement: settlement, wallet: wallet,
		provisioning: provisioning, gateway: gateway, carrier: carrier,
		fulfillment: fulfillment, tm: tm, payCfg: payCfg, log: logger,
	}
}

func (uc *orderUC) Assign(ctx context.Context, p AssignParams) (*AssignResult, error) {
	return uc.assign(ctx, p, model.OrderTypeAssign, nil)
}

func (uc *orderUC) AssignTopUp(ctx context.Context, p AssignParams) (*AssignResult, error) {
	if p.ICCID == "" {
		return nil, fmt.Errorf("%w: iccid is required for a top-up", domain.ErrInvalidArgument)
	}
	profile, err := uc.profiles.FindByUserAndICCID(ctx, nil, p.UserID, p.ICCID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrIccidNotLinked
	}
	if err != nil {
		return nil, err
	}
	if !profile.AllowTopUp {
		return nil, fmt.Errorf("%w: profile %s does not allow top-ups", domain.ErrInvalidArgument, p.ICCID)
	}
	return uc.assign(ctx, p, model.OrderTypeBundleTopUp, profile)
}

func (uc *orderUC) assign(ctx context.Context, p AssignParams, orderType model.OrderType, profile *model.UserProfile) (*AssignResult, error) {
	bundle, err := uc.bundles.FindByCode(ctx, nil, p.BundleCode)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown bundle %s", domain.ErrInvalidArgument, p.BundleCode)
	}
	if err != nil {
		return nil, err
	}
	if !bundle.Stockable {
		ok, err := uc.fulfillment.CheckBundleAvailable(ctx, bundle.InfoCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.ErrBundleNotAvailable
		}
	}

	charged := bundle.Price
	var promoCode, referralCode *string
	if p.PromoCode != "" {
		codeType, ruleID, err := uc.promotion.ResolveCode(ctx, p.PromoCode, p.UserID)
		if err != nil {
			return nil, err
		}
		charged, err = uc.promotion.RegisterReward(ctx, ruleID, p.UserID, bundle, p.PromoCode, codeType == model.CodeTypeReferral)
		if err != nil {
			return nil, err
		}
		if codeType == model.CodeTypeReferral {
			referralCode = &p.PromoCode
		} else {
			promoCode = &p.PromoCode
		}
	}

	order := &model.Order{
		ID:             uuid.NewString(),
		UserID:         p.UserID,
		BundleID:       &bundle.Code,
		OrderType:      orderType,
		Amount:         bundle.Price,
		ModifiedAmount: charged,
		Currency:       bundle.Currency,
		PaymentStatus:  model.PaymentStatusPending,
		OrderStatus:    model.OrderStatusPending,
		BundleSnapshot: bundle,
		PromoCode:      promoCode,
		ReferralCode:   referralCode,
		CreatedAt:      time.Now(),
	}

	if p.PayFromWallet || charged == 0 {
		return uc.payFromWallet(ctx, order, bundle, profile, charged)
	}
	if p.PayWithDCB {
		return uc.openCarrierCharge(ctx, order, charged, p.MSISDN)
	}

	meta := uc.intentMetadata(order)
	if profile != nil {
		meta["iccid"] = profile.ICCID
	}
	intent, err := uc.gateway.CreateIntent(ctx, charged, order.Currency, p.CustomerEmail, meta)
	if err != nil {
		return nil, err
	}
	order.PaymentIntentCode = intent.ID
	if err := uc.orders.Save(ctx, nil, order); err != nil {
		return nil, err
	}
	uc.log.Info().Str("order_id", order.ID).Str("bundle", bundle.Code).
		Int64("charged", charged).Str("intent", intent.ID).Msg("order opened")
	return &AssignResult{
		OrderID:        order.ID,
		Amount:         order.Amount,
		ModifiedAmount: charged,
		Currency:       order.Currency,
		PaymentIntent:  intent,
	}, nil
}

// payFromWallet settles the order against the wallet balance synchronously.
// The debit, order write and promotion settlement share one transaction;
// provisioning runs after commit, like the webhook path.
func (uc *orderUC) payFromWallet(ctx context.Context, order *model.Order, bundle *model.Bundle, profile *model.UserProfile, charged int64) (*AssignResult, error) {
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if charged > 0 {
			if _, err := uc.wallet.Credit(ctx, tx, order.UserID, -charged, model.WalletSourceAssignBundle); err != nil {
				return err
			}
		}
		order.PaymentStatus = model.PaymentStatusSuccess
		if err := uc.orders.Save(ctx, tx, order); err != nil {
			return err
		}
		if err := uc.settlement.SettleOrderPromotion(ctx, tx, order, model.UsageStatusCompleted); err != nil {
			return err
		}
		return uc.settlement.SettleReferralAfterPurchase(ctx, tx, order.UserID)
	})
	if err != nil {
		return nil, err
	}

	if order.OrderType == model.OrderTypeBundleTopUp {
		err = uc.provisioning.TopUpBundle(ctx, order, bundle, profile)
	} else {
		err = uc.provisioning.BuyBundle(ctx, order, bundle)
	}
	if err != nil {
		return nil, err
	}
	return &AssignResult{
		OrderID:        order.ID,
		Amount:         order.Amount,
		ModifiedAmount: charged,
		Currency:       order.Currency,
		PaidFromWallet: true,
	}, nil
}

// openCarrierCharge saves the order pending and asks the carrier to open the
// billing transaction, which sends the OTP to the subscriber. Settlement
// happens in ConfirmCarrierCharge once the client returns with the OTP. The
// payment intent code stays empty, so a later compensating refund lands on
// the wallet like a wallet payment's would.
func (uc *orderUC) openCarrierCharge(ctx context.Context, order *model.Order, charged int64, msisdn string) (*AssignResult, error) {
	if msisdn == "" {
		return nil, fmt.Errorf("%w: msisdn is required for carrier billing", domain.ErrInvalidArgument)
	}
	if err := uc.orders.Save(ctx, nil, order); err != nil {
		return nil, err
	}
	if err := uc.carrier.RequestCharge(ctx, msisdn, charged, order.ID); err != nil {
		return nil, err
	}
	uc.log.Info().Str("order_id", order.ID).Int64("charged", charged).
		Msg("carrier charge opened, awaiting otp")
	return &AssignResult{
		OrderID:        order.ID,
		Amount:         order.Amount,
		ModifiedAmount: charged,
		Currency:       order.Currency,
	}, nil
}

func (uc *orderUC) ConfirmCarrierCharge(ctx context.Context, p CarrierConfirmParams) (*AssignResult, error) {
	if p.OTP == "" {
		return nil, fmt.Errorf("%w: otp is required", domain.ErrInvalidArgument)
	}
	order, err := uc.orders.FindByUserAndID(ctx, nil, p.UserID, p.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Terminal() || order.PaymentStatus == model.PaymentStatusSuccess {
		return nil, domain.ErrConflictingSettlement
	}
	bundle := order.BundleSnapshot
	if bundle == nil {
		return nil, fmt.Errorf("%w: order %s has no bundle snapshot", domain.ErrInvalidArgument, order.ID)
	}
	var profile *model.UserProfile
	if order.OrderType == model.OrderTypeBundleTopUp {
		if p.ICCID == "" {
			return nil, fmt.Errorf("%w: iccid is required to confirm a top-up", domain.ErrInvalidArgument)
		}
		profile, err = uc.profiles.FindByUserAndICCID(ctx, nil, p.UserID, p.ICCID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrIccidNotLinked
		}
		if err != nil {
			return nil, err
		}
	}

	if err := uc.carrier.ConfirmCharge(ctx, p.OTP, order.ID); err != nil {
		return nil, err
	}

	// The carrier captured the money; from here the order settles exactly
	// like a wallet payment, with provisioning after commit.
	paySt := model.PaymentStatusSuccess
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.Transition(ctx, tx, order.ID, model.OrderPatch{PaymentStatus: &paySt}); err != nil {
			return err
		}
		if err := uc.settlement.SettleOrderPromotion(ctx, tx, order, model.UsageStatusCompleted); err != nil {
			return err
		}
		return uc.settlement.SettleReferralAfterPurchase(ctx, tx, order.UserID)
	})
	if err != nil {
		return nil, err
	}

	if order.OrderType == model.OrderTypeBundleTopUp {
		err = uc.provisioning.TopUpBundle(ctx, order, bundle, profile)
	} else {
		err = uc.provisioning.BuyBundle(ctx, order, bundle)
	}
	if err != nil {
		return nil, err
	}
	return &AssignResult{
		OrderID:        order.ID,
		Amount:         order.Amount,
		ModifiedAmount: order.ModifiedAmount,
		Currency:       order.Currency,
	}, nil
}

func (uc *orderUC) TopUpWallet(ctx context.Context, userID, customerEmail string, amount int64) (*AssignResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: top-up amount must be positive", domain.ErrInvalidArgument)
	}
	wallet, err := uc.wallet.EnsureWallet(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	order := &model.Order{
		ID:             uuid.NewString(),
		UserID:         userID,
		OrderType:      model.OrderTypeWalletTopUp,
		Amount:         amount,
		ModifiedAmount: amount,
		Currency:       wallet.Currency,
		PaymentStatus:  model.PaymentStatusPending,
		OrderStatus:    model.OrderStatusPending,
		CreatedAt:      time.Now(),
	}
	meta := uc.intentMetadata(order)
	meta["user_wallet_id"] = wallet.ID
	intent, err := uc.gateway.CreateIntent(ctx, amount, order.Currency, customerEmail, meta)
	if err != nil {
		return nil, err
	}
	order.PaymentIntentCode = intent.ID
	if err := uc.orders.Save(ctx, nil, order); err != nil {
		return nil, err
	}
	return &AssignResult{
		OrderID:        order.ID,
		Amount:         amount,
		ModifiedAmount: amount,
		Currency:       order.Currency,
		PaymentIntent:  intent,
	}, nil
}

func (uc *orderUC) Cancel(ctx context.Context, userID, orderID string) error {
	order, err := uc.orders.FindByUserAndID(ctx, nil, userID, orderID)
	if err != nil {
		return err
	}
	if order.Terminal() || order.PaymentStatus == model.PaymentStatusSuccess {
		return domain.ErrOrderNotCancelable
	}
	if order.PaymentIntentCode != "" {
		if err := uc.gateway.CancelIntent(ctx, order.PaymentIntentCode); err != nil {
			return err
		}
	}
	canceled := model.OrderStatusCanceled
	failed := model.PaymentStatusFailure
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.Transition(ctx, tx, orderID, model.OrderPatch{
			OrderStatus:   &canceled,
			PaymentStatus: &failed,
		}); err != nil {
			return err
		}
		return uc.settlement.SettleOrderPromotion(ctx, tx, order, model.UsageStatusFailed)
	})
}

func (uc *orderUC) Transition(ctx context.Context, tx repository.Tx, orderID string, patch model.OrderPatch) error {
	changed, err := uc.orders.ApplyPatch(ctx, tx, orderID, patch)
	if err != nil {
		return err
	}
	if changed {
		return nil
	}
	// Nothing moved: either a replay of the same terminal state, or a
	// conflicting attempt to rewrite history.
	current, err := uc.orders.FindByID(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if !current.Terminal() {
		return nil
	}
	if patch.OrderStatus != nil && *patch.OrderStatus != current.OrderStatus {
		return domain.ErrConflictingSettlement
	}
	if patch.PaymentStatus != nil && *patch.PaymentStatus != current.PaymentStatus {
		return domain.ErrConflictingSettlement
	}
	return nil
}

func (uc *orderUC) GetByID(ctx context.Context, userID, orderID string) (*model.Order, error) {
	return uc.orders.FindByUserAndID(ctx, nil, userID, orderID)
}

func (uc *orderUC) History(ctx context.Context, userID string, offset, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	return uc.orders.ListByUser(ctx, nil, userID, offset, limit)
}

func (uc *orderUC) intentMetadata(o *model.Order) map[string]string {
	meta := map[string]string{
		"order_id":   o.ID,
		"user_id":    o.UserID,
		"order_type": string(o.OrderType),
		"env":        uc.payCfg.Environment,
	}
	if o.BundleID != nil {
		meta["bundle_code"] = *o.BundleID
	}
	return meta
}
