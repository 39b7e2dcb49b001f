package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

var ErrProducerClosed = errors.New("kafka producer closed")

// Producer buffers messages for one topic and writes them from a single goroutine.
type Producer struct {
	w       *kafka.Writer
	topic   string
	inbox   chan kafka.Message
	stop    chan struct{}
	closeCh chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

func NewProducer(brokers []string, topic string, buf int, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Producer{
		topic:   topic,
		inbox:   make(chan kafka.Message, buf),
		stop:    make(chan struct{}),
		closeCh: make(chan struct{}),
		logger:  logger,
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion:   p.completion,
	}
	return p
}

func (p *Producer) completion(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	for _, m := range msgs {
		p.logger.Error("kafka write failed", "topic", p.topic, "key", string(m.Key), "err", err)
	}
}

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

func (p *Producer) write(m kafka.Message) {
	if err := p.w.WriteMessages(context.Background(), m); err != nil {
		p.logger.Error("kafka enqueue failed", "topic", p.topic, "key", string(m.Key), "err", err)
	}
}

func (p *Producer) drain() {
	for {
		select {
		case m := <-p.inbox:
			p.write(m)
		default:
			if err := p.w.Close(); err != nil {
				p.logger.Warn("kafka writer close", "topic", p.topic, "err", err)
			}
			return
		}
	}
}

// Publish queues a message; it blocks while the buffer is full.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	select {
	case <-p.stop:
		return ErrProducerClosed
	default:
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.stop:
		return ErrProducerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages; the writer flushes what is queued and exits.
func (p *Producer) Close() { p.once.Do(func() { close(p.stop) }) }

func (p *Producer) WaitClosed() { <-p.closeCh }

// Router sends each event type to the producer of its topic.
type Router struct {
	routes map[string]*Producer
}

func NewRouter() *Router { return &Router{routes: map[string]*Producer{}} }

func (r *Router) Route(eventType string, p *Producer) *Router {
	r.routes[eventType] = p
	return r
}

func (r *Router) PublishEvent(ctx context.Context, key []byte, eventType string, value []byte) error {
	p, ok := r.routes[eventType]
	if !ok {
		return errors.New("no topic for event type " + eventType)
	}
	return p.Publish(ctx, key, value, kafka.Header{Key: "event_type", Value: []byte(eventType)})
}
