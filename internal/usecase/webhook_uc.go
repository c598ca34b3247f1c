// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/domain/ports/repository"
)

var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase turns a verified gateway event into order, wallet and reward
// state. Processing is idempotent per event id: the idempotency mark, the
// order transition and the reward settlement commit in one database
// transaction, so a transient failure rolls everything back and the gateway's
// retry starts clean. Only provisioning, which talks to an external system,
// runs after commit.
type WebhookUseCase interface {
	// Process handles one delivery. A nil return acknowledges the event;
	// domain.ErrInvalidArgument marks a malformed payload the gateway should
	// not retry; any other error asks for a retry.
	Process(ctx context.Context, ev *adapter.WebhookEvent) error
}

type webhookUC struct {
	events       repository.ProcessedEventRepository
	orders       repository.OrderRepository
	profiles     repository.ProfileRepository
	orderUC      OrderUseCase
	settlement   SettlementUseCase
	wallet       WalletUseCase
	provisioning ProvisioningUseCase
	notifier     NotifierUseCase
	tm           repository.TransactionManager
	payCfg       config.PaymentConfig
	log          *zerolog.Logger
}

func NewWebhookUseCase(
	events repository.ProcessedEventRepository,
	orders repository.OrderRepository,
	profiles repository.ProfileRepository,
	orderUC OrderUseCase,
	settlement SettlementUseCase,
	wallet WalletUseCase,
	provisioning ProvisioningUseCase,
	notifier NotifierUseCase,
	tm repository.TransactionManager,
	payCfg config.PaymentConfig,
	logger *zerolog.Logger,
) *webhookUC {
	return &webhookUC{
		events: events, orders: orders, profiles: profiles,
		orderUC: orderUC, settlement: settlement, wallet: wallet,
		provisioning: provisioning, notifier: notifier,
		tm: tm, payCfg: payCfg, log: logger,
	}
}

func (uc *webhookUC) Process(ctx context.Context, ev *adapter.WebhookEvent) error {
	if ev.Type != adapter.EventPaymentSucceeded && ev.Type != adapter.EventPaymentFailed {
		uc.log.Debug().Str("event_id", ev.ID).Str("type", ev.Type).Msg("webhook type ignored")
		return nil
	}
	if env := ev.Metadata["env"]; env != uc.payCfg.Environment {
		// A shared gateway account delivers every environment's events to
		// every endpoint; foreign ones are acknowledged untouched.
		uc.log.Debug().Str("event_id", ev.ID).Str("env", env).Msg("webhook for foreign environment ignored")
		return nil
	}

	var err error
	if ev.Metadata["user_wallet_id"] != "" {
		err = uc.processWalletTopUp(ctx, ev)
	} else {
		err = uc.processOrder(ctx, ev)
	}
	if errors.Is(err, domain.ErrDuplicateEvent) {
		uc.log.Info().Str("event_id", ev.ID).Msg("webhook replay acknowledged")
		return nil
	}
	return err
}

func (uc *webhookUC) processWalletTopUp(ctx context.Context, ev *adapter.WebhookEvent) error {
	orderID := ev.Metadata["order_id"]
	if orderID == "" {
		return fmt.Errorf("%w: wallet webhook without order_id", domain.ErrInvalidArgument)
	}
	order, err := uc.orders.FindByID(ctx, nil, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unknown order %s", domain.ErrInvalidArgument, orderID)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.events.MarkProcessed(ctx, tx, ev.ID); err != nil {
			return err
		}
		paySt, orderSt := model.PaymentStatusSuccess, model.OrderStatusSuccess
		if ev.Type == adapter.EventPaymentFailed {
			paySt, orderSt = model.PaymentStatusFailure, model.OrderStatusFailure
		}
		if err := uc.orderUC.Transition(ctx, tx, order.ID, model.OrderPatch{
			PaymentStatus: &paySt,
			OrderStatus:   &orderSt,
			CallbackTime:  &now,
		}); err != nil {
			return err
		}
		if ev.Type == adapter.EventPaymentSucceeded {
			if _, err := uc.wallet.Credit(ctx, tx, order.UserID, order.Amount, model.WalletSourceTopUp); err != nil {
				return err
			}
			return nil
		}
		return uc.notifier.EnqueuePush(ctx, tx, order.UserID, "Wallet top-up failed",
			"Your wallet top-up payment did not go through. No money was taken.")
	})
}

func (uc *webhookUC) processOrder(ctx context.Context, ev *adapter.WebhookEvent) error {
	orderID := ev.Metadata["order_id"]
	if orderID == "" || ev.Metadata["user_id"] == "" || ev.Metadata["bundle_code"] == "" {
		return fmt.Errorf("%w: order webhook missing order_id, user_id or bundle_code", domain.ErrInvalidArgument)
	}
	order, err := uc.orders.FindByID(ctx, nil, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: unknown order %s", domain.ErrInvalidArgument, orderID)
	}
	if err != nil {
		return err
	}

	if ev.Type == adapter.EventPaymentFailed {
		now := time.Now()
		return uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := uc.events.MarkProcessed(ctx, tx, ev.ID); err != nil {
				return err
			}
			paySt, orderSt := model.PaymentStatusFailure, model.OrderStatusFailure
			if err := uc.orderUC.Transition(ctx, tx, order.ID, model.OrderPatch{
				PaymentStatus: &paySt,
				OrderStatus:   &orderSt,
				CallbackTime:  &now,
			}); err != nil {
				return err
			}
			return uc.settlement.SettleOrderPromotion(ctx, tx, order, model.UsageStatusFailed)
		})
	}

	// Success: settle money and rewards in one transaction, then provision.
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.events.MarkProcessed(ctx, tx, ev.ID); err != nil {
			return err
		}
		paySt := model.PaymentStatusSuccess
		if err := uc.orderUC.Transition(ctx, tx, order.ID, model.OrderPatch{
			PaymentStatus: &paySt,
		}); err != nil {
			return err
		}
		if err := uc.settlement.SettleOrderPromotion(ctx, tx, order, model.UsageStatusCompleted); err != nil {
			return err
		}
		return uc.settlement.SettleReferralAfterPurchase(ctx, tx, order.UserID)
	})
	switch {
	case errors.Is(err, domain.ErrDuplicateEvent):
		// The settlement committed on an earlier delivery. If that attempt
		// died before provisioning finished, the order is still pending with a
		// captured payment; this retry must resume the dispatch rather than
		// acknowledge a half-done purchase.
		current, ferr := uc.orders.FindByID(ctx, nil, order.ID)
		if ferr != nil {
			return ferr
		}
		if current.PaymentStatus != model.PaymentStatusSuccess || current.Terminal() {
			return err
		}
		order = current
		uc.log.Info().Str("event_id", ev.ID).Str("order_id", order.ID).
			Msg("resuming provisioning on webhook retry")
	case err != nil:
		return err
	}

	bundle := order.BundleSnapshot
	if bundle == nil {
		return fmt.Errorf("%w: order %s has no bundle snapshot", domain.ErrInvalidArgument, order.ID)
	}
	if order.OrderType == model.OrderTypeBundleTopUp {
		iccid := ev.Metadata["iccid"]
		profile, err := uc.profiles.FindByUserAndICCID(ctx, nil, order.UserID, iccid)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: iccid %s is not linked to user %s", domain.ErrInvalidArgument, iccid, order.UserID)
		}
		if err != nil {
			return err
		}
		return uc.provisioning.TopUpBundle(ctx, order, bundle, profile)
	}
	return uc.provisioning.BuyBundle(ctx, order, bundle)
}
