package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when processing succeeded and the offset may be
// committed. A non-nil error is retried until it succeeds or ctx is done.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer routes each message to a fixed worker lane picked by key, so
// messages for one key are handled in fetch order.
type Consumer struct {
	r       reader
	workers int
	lanes   []int
	hash    *kafka.Hash
	backoff func() backoff.BackOff
	logger  *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, logger.With(zap.String("topic", topic), zap.String("group", group)))
}

func newConsumer(r reader, workers int, logger *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	lanes := make([]int, workers)
	for i := range lanes {
		lanes[i] = i
	}
	return &Consumer{
		r:       r,
		workers: workers,
		lanes:   lanes,
		hash:    &kafka.Hash{},
		backoff: retryPolicy,
		logger:  logger,
	}
}

func retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// Start fetches messages and hands them to the worker lanes until ctx is
// cancelled. Workers are drained before Start returns.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	offsets := newCommitLog(c.r)
	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if err := c.handle(ctx, id, h, m); err != nil {
					return
				}
				if err := offsets.ack(ctx, m); err != nil {
					c.logger.Warn("commit failed", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
				}
			}
		}(i, lanes[i])
	}
	defer wg.Wait()
	defer func() {
		for _, l := range lanes {
			close(l)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		offsets.fetched(m)
		select {
		case lanes[c.lane(m)] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// lane keeps unkeyed messages with their partition.
func (c *Consumer) lane(m kafka.Message) int {
	if len(m.Key) == 0 {
		return m.Partition % c.workers
	}
	return c.hash.Balance(m, c.lanes...)
}

func (c *Consumer) handle(ctx context.Context, lane int, h Handler, m kafka.Message) error {
	return backoff.RetryNotify(
		func() error { return h(ctx, m) },
		backoff.WithContext(c.backoff(), ctx),
		func(err error, wait time.Duration) {
			c.logger.Error("handler failed, retrying",
				zap.Int("worker", lane),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	)
}

// commitLog commits an offset only once it and every offset fetched before
// it on the same partition have been handled.
type commitLog struct {
	r       reader
	mu      sync.Mutex
	pending map[int][]kafka.Message
	handled map[int]map[int64]bool
}

func newCommitLog(r reader) *commitLog {
	return &commitLog{
		r:       r,
		pending: map[int][]kafka.Message{},
		handled: map[int]map[int64]bool{},
	}
}

func (l *commitLog) fetched(m kafka.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[m.Partition] = append(l.pending[m.Partition], m)
}

func (l *commitLog) ack(ctx context.Context, m kafka.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	done := l.handled[m.Partition]
	if done == nil {
		done = map[int64]bool{}
		l.handled[m.Partition] = done
	}
	done[m.Offset] = true

	q := l.pending[m.Partition]
	var last kafka.Message
	advanced := false
	for len(q) > 0 && done[q[0].Offset] {
		last = q[0]
		delete(done, q[0].Offset)
		q = q[1:]
		advanced = true
	}
	l.pending[m.Partition] = q
	if !advanced {
		return nil
	}
	return l.r.CommitMessages(ctx, last)
}
