package sched

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"esim-reseller/internal/config"
	"esim-reseller/internal/domain/model"
	"esim-reseller/internal/domain/ports/adapter"
	"esim-reseller/internal/domain/ports/repository"
	"esim-reseller/internal/infra/metrics"
	"esim-reseller/internal/infra/worker"
)

// OutboxWorker drains the notification outbox. Each drain claims a batch with
// row locks (SKIP LOCKED on the repository side), dispatches, and marks rows
// inside the same transaction, so concurrent instances never double-send.
type OutboxWorker struct {
	cfg    config.OutboxConfig
	outbox repository.NotificationOutboxRepository
	tm     repository.TransactionManager
	push   adapter.PushSender
	email  adapter.EmailSender
	pool   *worker.Pool
	log    *zerolog.Logger
}

func NewOutboxWorker(
	cfg config.OutboxConfig,
	outbox repository.NotificationOutboxRepository,
	tm repository.TransactionManager,
	push adapter.PushSender,
	email adapter.EmailSender,
	pool *worker.Pool,
	logger *zerolog.Logger,
) *OutboxWorker {
	compLog := logger.With().Str("component", "OutboxWorker").Logger()
	return &OutboxWorker{
		cfg:    cfg,
		outbox: outbox,
		tm:     tm,
		push:   push,
		email:  email,
		pool:   pool,
		log:    &compLog,
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.cfg.PollInterval).Msg("starting outbox worker")
	w.drain(ctx)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping outbox worker")
			return ctx.Err()
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain loops until a claim comes back smaller than the batch size, so a
// backlog clears without waiting for the next tick.
func (w *OutboxWorker) drain(ctx context.Context) {
	for {
		n, err := w.drainOnce(ctx)
		if err != nil {
			w.log.Error().Err(err).Msg("outbox drain failed")
			return
		}
		if pending, err := w.outbox.CountPending(ctx, nil); err == nil {
			metrics.SetOutboxPending(int(pending))
		}
		if n < w.cfg.BatchSize {
			return
		}
	}
}

type dispatchResult struct {
	n   *model.Notification
	err error
}

func (w *OutboxWorker) drainOnce(ctx context.Context) (int, error) {
	var claimed int
	err := w.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		pending, err := w.outbox.ListPending(ctx, tx, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		claimed = len(pending)
		if claimed == 0 {
			return nil
		}

		// Deliveries fan out on the pool; marks run back on this goroutine
		// because the pgx transaction is not safe for concurrent use.
		results := make(chan dispatchResult, claimed)
		var wg sync.WaitGroup
		for _, n := range pending {
			n := n
			wg.Add(1)
			task := func(ctx context.Context) error {
				defer wg.Done()
				results <- dispatchResult{n: n, err: w.dispatch(ctx, n)}
				return nil
			}
			if w.pool == nil || w.pool.Submit(task) != nil {
				_ = task(ctx)
			}
		}
		wg.Wait()
		close(results)

		now := time.Now()
		for res := range results {
			if res.err == nil {
				if err := w.outbox.MarkSent(ctx, tx, res.n.ID, now); err != nil {
					return err
				}
				metrics.IncNotification(string(res.n.Channel), "sent")
				continue
			}
			attempts := res.n.Attempts + 1
			terminal := attempts >= w.cfg.MaxAttempts
			w.log.Warn().Err(res.err).
				Str("notification_id", res.n.ID).
				Str("channel", string(res.n.Channel)).
				Int("attempts", attempts).
				Bool("terminal", terminal).
				Msg("notification delivery failed")
			if err := w.outbox.MarkFailed(ctx, tx, res.n.ID, attempts, terminal); err != nil {
				return err
			}
			if terminal {
				metrics.IncNotification(string(res.n.Channel), "failed")
			}
		}
		return nil
	})
	return claimed, err
}

func (w *OutboxWorker) dispatch(ctx context.Context, n *model.Notification) error {
	switch n.Channel {
	case model.ChannelPush:
		return w.push.SendToUser(ctx, n.Recipient, n.Subject, n.Body)
	case model.ChannelEmail:
		return w.email.Send(ctx, n.Recipient, n.Subject, n.Body)
	default:
		w.log.Error().Str("channel", string(n.Channel)).Msg("unknown notification channel")
		return nil
	}
}
