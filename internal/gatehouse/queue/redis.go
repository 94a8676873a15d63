package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quayside/gatehouse/internal/gatehouse/mail"
)

// Redis is a list-backed queue: LPUSH to enqueue, BRPOP to drain, so tasks
// come out in enqueue order.
type Redis struct {
	client redis.UniversalClient
	list   string

	// Now stamps EnqueuedAt. Defaults to time.Now.
	Now func() time.Time
}

func NewRedis(client redis.UniversalClient, list string) *Redis {
	return &Redis{client: client, list: list}
}

func (q *Redis) now() time.Time {
	if q.Now != nil {
		return q.Now()
	}
	return time.Now()
}

func (q *Redis) Enqueue(ctx context.Context, msg mail.Message) error {
	task := Task{
		ID:         uuid.NewString(),
		Message:    msg,
		EnqueuedAt: q.now().UTC(),
	}

	encoded, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.list, encoded).Err(); err != nil {
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

func (q *Redis) Dequeue(ctx context.Context, timeout time.Duration) (Task, error) {
	res, err := q.client.BRPop(ctx, timeout, q.list).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Task{}, ErrEmpty
		}
		return Task{}, fmt.Errorf("queue: dequeue: %w", err)
	}

	// BRPOP returns [list, value].
	var task Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		return Task{}, fmt.Errorf("queue: decode task: %w", err)
	}
	return task, nil
}
