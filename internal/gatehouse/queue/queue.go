package queue

import (
	"context"
	"errors"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/mail"
)

// ErrEmpty reports that no task was available within the poll timeout.
var ErrEmpty = errors.New("queue: empty")

// Task is one unit of deferred work: an email to deliver.
type Task struct {
	ID         string       `json:"id"`
	Message    mail.Message `json:"message"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// Queue is the narrow enqueue/dequeue contract request handlers depend on.
// Handlers only ever enqueue; the worker owns the other end.
type Queue interface {
	Enqueue(ctx context.Context, msg mail.Message) error
	Dequeue(ctx context.Context, timeout time.Duration) (Task, error)
}
