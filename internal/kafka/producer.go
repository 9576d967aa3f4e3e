package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer buffers messages in an inbox drained by one goroutine. The inbox
// is never closed; Close signals stop instead, so a late Publish is dropped
// rather than panicking.
type Producer struct {
	w        *kafka.Writer
	inbox    chan kafka.Message
	stop     chan struct{}
	stopOnce sync.Once
	closeCh  chan struct{}
	logger   *zap.Logger
}

func NewProducer(brokers []string, topic string, buf int, logger *zap.Logger) *Producer {
	p := &Producer{
		inbox:   make(chan kafka.Message, buf),
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
		logger:  logger.With(zap.String("topic", topic)),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				p.logger.Error("kafka write failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return p
}

// Start runs the drain loop until Close is called or ctx is done; either
// way the buffered messages are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				p.drain()
				return
			case <-p.stop:
				p.drain()
				return
			case m := <-p.inbox:
				p.write(m)
			}
		}
	}()
}

// Publish queues a message. After Close it drops the message and logs.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case <-p.stop:
		p.dropped(m)
		return
	default:
	}
	select {
	case p.inbox <- m:
	case <-p.stop:
		p.dropped(m)
	}
}

// Close stops accepting messages; the loop flushes what is left and exits.
// It is safe to call more than once.
func (p *Producer) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// WaitClosed blocks until the drain loop has exited.
func (p *Producer) WaitClosed() { <-p.closeCh }

func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			p.closeWriter()
			return
		}
	}
}

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.logger.Error("kafka enqueue failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

func (p *Producer) dropped(m kafka.Message) {
	p.logger.Warn("producer closed, message dropped", zap.ByteString("key", m.Key))
}

func (p *Producer) closeWriter() {
	if err := p.w.Close(); err != nil {
		p.logger.Warn("kafka writer close", zap.Error(err))
	}
}
