// File: internal/usecase/notifier_uc.go
package usecase

import (
	"context"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/repository"
)

var _ NotifierUseCase = (*notifierUC)(nil)

// NotifierUseCase enqueues user-facing notifications into the durable outbox.
// It never talks to the push or mail backends itself; dispatch belongs to the
// background worker so that enqueue can share the caller's transaction.
type NotifierUseCase interface {
	EnqueuePush(ctx context.Context, tx repository.Tx, userID, subject, body string) error
	EnqueueEmail(ctx context.Context, tx repository.Tx, userID, recipient, subject, body string) error
}

type notifierUC struct {
	outbox  repository.NotificationOutboxRepository
	users   repository.UserRepository
	log     *zerolog.Logger
	entropy *ulid.MonotonicEntropy
}

func NewNotifierUseCase(outbox repository.NotificationOutboxRepository, users repository.UserRepository, logger *zerolog.Logger) *notifierUC {
	return &notifierUC{
		outbox:  outbox,
		users:   users,
		log:     logger,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

func (uc *notifierUC) EnqueuePush(ctx context.Context, tx repository.Tx, userID, subject, body string) error {
	return uc.enqueue(ctx, tx, &model.Notification{
		UserID:  userID,
		Channel: model.ChannelPush,
		// Push recipients resolve at dispatch time; device tokens churn too
		// fast to freeze here.
		Recipient: userID,
		Subject:   subject,
		Body:      body,
	})
}

func (uc *notifierUC) EnqueueEmail(ctx context.Context, tx repository.Tx, userID, recipient, subject, body string) error {
	if recipient == "" {
		u, err := uc.users.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		recipient = u.Email
	}
	if recipient == "" {
		// Anonymous users have no address; skipping is not an error.
		uc.log.Debug().Str("user_id", userID).Msg("email skipped, no recipient")
		return nil
	}
	return uc.enqueue(ctx, tx, &model.Notification{
		UserID:    userID,
		Channel:   model.ChannelEmail,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
}

func (uc *notifierUC) enqueue(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	n.ID = ulid.MustNew(ulid.Timestamp(time.Now()), uc.entropy).String()
	n.Status = model.NotificationPending
	n.CreatedAt = time.Now()
	return uc.outbox.Enqueue(ctx, tx, n)
}
