// File: internal/usecase/provisioning_uc.go
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/domain/ports/repository"
)

var _ ProvisioningUseCase = (*provisioningUC)(nil)

// ProvisioningUseCase drives the fulfillment leg after the money settled.
// It is deliberately decoupled from payment capture: a captured payment with
// failed provisioning ends in a FAILED order plus a compensating refund, never
// in a charge without an eSIM.
type ProvisioningUseCase interface {
	// BuyBundle provisions a fresh eSIM for a paid ASSIGN order. Calling it
	// again for a terminal order is a no-op.
	BuyBundle(ctx context.Context, order *model.Order, bundle *model.Bundle) error
	// TopUpBundle applies a paid top-up to an existing profile.
	TopUpBundle(ctx context.Context, order *model.Order, bundle *model.Bundle, profile *model.UserProfile) error
}

type provisioningUC struct {
	fulfillment adapter.FulfillmentClient
	orders      repository.OrderRepository
	profiles    repository.ProfileRepository
	bundles     repository.ProfileBundleRepository
	wallet      WalletUseCase
	gateway     adapter.PaymentGateway
	notifier    NotifierUseCase
	tm          repository.TransactionManager
	log         *zerolog.Logger
}

func NewProvisioningUseCase(
	fulfillment adapter.FulfillmentClient,
	orders repository.OrderRepository,
	profiles repository.ProfileRepository,
	bundles repository.ProfileBundleRepository,
	wallet WalletUseCase,
	gateway adapter.PaymentGateway,
	notifier NotifierUseCase,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *provisioningUC {
	return &provisioningUC{
		fulfillment: fulfillment, orders: orders, profiles: profiles,
		bundles: bundles, wallet: wallet, gateway: gateway,
		notifier: notifier, tm: tm, log: logger,
	}
}

func (uc *provisioningUC) BuyBundle(ctx context.Context, order *model.Order, bundle *model.Bundle) error {
	current, err := uc.orders.FindByID(ctx, nil, order.ID)
	if err != nil {
		return err
	}
	if current.Terminal() {
		uc.log.Debug().Str("order_id", order.ID).Msg("provisioning skipped, order already terminal")
		return nil
	}

	fo, err := uc.fulfillment.CreateOrder(ctx, bundle.Code, order.ID)
	if err != nil {
		uc.log.Error().Err(err).Str("order_id", order.ID).Msg("fulfillment create failed")
		return uc.failAndRefund(ctx, order, "fulfillment create failed")
	}

	now := time.Now()
	profile := &model.UserProfile{
		ID:                 uuid.NewString(),
		UserID:             order.UserID,
		OrderID:            order.ID,
		ICCID:              fo.ICCID,
		Validity:           fo.Validity,
		SMDPAddress:        fo.SMDPAddress,
		ActivationCode:     fo.ActivationCode,
		AllowTopUp:         fo.AllowTopUp,
		FulfillmentOrderID: fo.OrderID,
		CreatedAt:          now,
	}
	success := model.OrderStatusSuccess
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := uc.orders.ApplyPatch(ctx, tx, order.ID, model.OrderPatch{
			OrderStatus:        &success,
			FulfillmentOrderID: &fo.OrderID,
			CallbackTime:       &now,
		}); err != nil {
			return err
		}
		if err := uc.profiles.Save(ctx, tx, profile); err != nil {
			return err
		}
		if err := uc.bundles.Save(ctx, tx, &model.UserProfileBundle{
			ID:                 uuid.NewString(),
			UserID:             order.UserID,
			OrderID:            order.ID,
			ProfileID:          profile.ID,
			FulfillmentOrderID: fo.OrderID,
			ICCID:              fo.ICCID,
			Kind:               model.BundlePrimary,
			BundleData:         bundle,
			CreatedAt:          now,
		}); err != nil {
			return err
		}
		if err := uc.notifier.EnqueuePush(ctx, tx, order.UserID, "Your eSIM is ready", fmt.Sprintf("Bundle %s is active on %s.", bundle.Name, fo.ICCID)); err != nil {
			return err
		}
		return uc.notifier.EnqueueEmail(ctx, tx, order.UserID, "", "Your eSIM is ready",
			fmt.Sprintf("Scan the activation QR to install your eSIM.\n\n%s", profile.ActivationPayload()))
	})
	if err != nil {
		return err
	}
	uc.log.Info().Str("order_id", order.ID).Str("iccid", fo.ICCID).
		Str("fulfillment_order_id", fo.OrderID).Msg("esim provisioned")
	return nil
}

func (uc *provisioningUC) TopUpBundle(ctx context.Context, order *model.Order, bundle *model.Bundle, profile *model.UserProfile) error {
	current, err := uc.orders.FindByID(ctx, nil, order.ID)
	if err != nil {
		return err
	}
	if current.Terminal() {
		uc.log.Debug().Str("order_id", order.ID).Msg("top-up skipped, order already terminal")
		return nil
	}

	fo, err := uc.fulfillment.CreateTopUp(ctx, bundle.Code, profile.FulfillmentOrderID, order.ID)
	if err != nil {
		uc.log.Error().Err(err).Str("order_id", order.ID).Msg("fulfillment top-up failed")
		return uc.failAndRefund(ctx, order, "fulfillment top-up failed")
	}

	now := time.Now()
	success := model.OrderStatusSuccess
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := uc.orders.ApplyPatch(ctx, tx, order.ID, model.OrderPatch{
			OrderStatus:        &success,
			FulfillmentOrderID: &fo.OrderID,
			CallbackTime:       &now,
		}); err != nil {
			return err
		}
		if err := uc.bundles.Save(ctx, tx, &model.UserProfileBundle{
			ID:                 uuid.NewString(),
			UserID:             order.UserID,
			OrderID:            order.ID,
			ProfileID:          profile.ID,
			FulfillmentOrderID: fo.OrderID,
			ICCID:              profile.ICCID,
			Kind:               model.BundleTopUp,
			BundleData:         bundle,
			CreatedAt:          now,
		}); err != nil {
			return err
		}
		return uc.notifier.EnqueuePush(ctx, tx, order.UserID, "Top-up applied",
			fmt.Sprintf("Bundle %s was added to %s.", bundle.Name, profile.ICCID))
	})
	if err != nil {
		return err
	}
	uc.log.Info().Str("order_id", order.ID).Str("iccid", profile.ICCID).Msg("top-up provisioned")
	return nil
}

// failAndRefund compensates a captured payment whose fulfillment leg failed.
// Card payments are refunded at the gateway; wallet payments are credited
// back. The order ends FAILED either way and the caller acknowledges the
// event, because a retry against a dead fulfillment order cannot succeed.
func (uc *provisioningUC) failAndRefund(ctx context.Context, order *model.Order, reason string) error {
	failed := model.OrderStatusFailure
	now := time.Now()
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := uc.orders.ApplyPatch(ctx, tx, order.ID, model.OrderPatch{
			OrderStatus:  &failed,
			CallbackTime: &now,
		}); err != nil {
			return err
		}
		if order.PaymentIntentCode == "" && order.ModifiedAmount > 0 {
			if _, err := uc.wallet.Credit(ctx, tx, order.UserID, order.ModifiedAmount, model.WalletSourceRefund); err != nil {
				return err
			}
		}
		return uc.notifier.EnqueuePush(ctx, tx, order.UserID, "Order failed",
			"We could not provision your eSIM. Your payment has been refunded.")
	})
	if err != nil {
		return err
	}
	if order.PaymentIntentCode != "" && order.ModifiedAmount > 0 {
		if err := uc.gateway.RefundPayment(ctx, order.PaymentIntentCode, order.ModifiedAmount, reason); err != nil {
			// The order is already FAILED; the refund needs manual follow-up.
			uc.log.Error().Err(err).Str("order_id", order.ID).
				Str("intent", order.PaymentIntentCode).Msg("refund failed")
			return err
		}
	}
	uc.log.Warn().Str("order_id", order.ID).Str("reason", reason).Msg("order failed and refunded")
	return nil
}
