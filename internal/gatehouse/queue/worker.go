package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/quayside/gatehouse/internal/gatehouse/mail"
)

// Worker drains the queue and hands tasks to the mailer, throttled so a
// burst of sign-ins cannot flood the relay.
type Worker struct {
	Queue    Queue
	Mailer   mail.Mailer
	Throttle *rate.Limiter
	Logger   *slog.Logger

	// PollTimeout bounds each blocking dequeue so shutdown is prompt.
	PollTimeout time.Duration
}

// Run processes tasks until the context is cancelled. Delivery failures are
// logged and the task is dropped; outbound email is best-effort.
func (w *Worker) Run(ctx context.Context) {
	timeout := w.PollTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return
		}

		task, err := w.Queue.Dequeue(ctx, timeout)
		if err != nil {
			if errors.Is(err, ErrEmpty) || ctx.Err() != nil {
				continue
			}
			w.Logger.Error("task dequeue failed", "err", err)
			continue
		}

		if w.Throttle != nil {
			if err := w.Throttle.Wait(ctx); err != nil {
				return
			}
		}

		if err := w.Mailer.Send(ctx, task.Message); err != nil {
			w.Logger.Error("mail delivery failed",
				"task_id", task.ID,
				"to", task.Message.To,
				"err", err,
			)
			continue
		}

		w.Logger.Info("mail delivered",
			"task_id", task.ID,
			"queue_latency_ms", time.Since(task.EnqueuedAt).Milliseconds(),
		)
	}
}
