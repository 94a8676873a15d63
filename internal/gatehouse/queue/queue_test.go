package queue

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quayside/gatehouse/internal/gatehouse/mail"
)

func testQueue(t *testing.T) *Redis {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, "test:mail")
}

func TestQueueRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := testQueue(t)

	first := mail.Message{To: "a@example.com", Subject: "first", Body: "one"}
	second := mail.Message{To: "b@example.com", Subject: "second", Body: "two"}

	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	got, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, first, got.Message, "tasks come out in enqueue order")
	require.NotEmpty(t, got.ID)
	require.False(t, got.EnqueuedAt.IsZero())

	got, err = q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, second, got.Message)
}

func TestQueueEmpty(t *testing.T) {
	t.Parallel()

	q := testQueue(t)

	_, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	require.ErrorIs(t, err, ErrEmpty)
}

// recordingMailer captures sent messages for assertions.
type recordingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	done chan struct{} // closed once the expected count arrives
	want int
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	if len(m.sent) == m.want {
		close(m.done)
	}
	return nil
}

func TestWorkerDeliversQueuedMail(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := testQueue(t)
	mailer := &recordingMailer{want: 2, done: make(chan struct{})}

	worker := &Worker{
		Queue:       q,
		Mailer:      mailer,
		Logger:      slog.New(slog.DiscardHandler),
		PollTimeout: 50 * time.Millisecond,
	}

	require.NoError(t, q.Enqueue(ctx, mail.Message{To: "a@example.com", Subject: "hi"}))
	require.NoError(t, q.Enqueue(ctx, mail.Message{To: "b@example.com", Subject: "ho"}))

	go worker.Run(ctx)

	select {
	case <-mailer.done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not deliver queued mail in time")
	}

	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	require.Len(t, mailer.sent, 2)
	require.Equal(t, "a@example.com", mailer.sent[0].To)
	require.Equal(t, "b@example.com", mailer.sent[1].To)
}
