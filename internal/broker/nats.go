// Package broker implements the work-dispatch queue described by the
// system design: three logical queues (analysis, dataset, report), each
// with bounded length, a per-message delivery-count limit, and
// acknowledged delivery, backed by NATS JetStream work-queue streams.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Queue names match the three roles pulling from the broker.
const (
	QueueAnalysis = "analysis"
	QueueDataset  = "dataset"
	QueueReport   = "report"
)

// Message is the envelope handed to a subscriber. Ack commits the
// delivery (terminal outcome, never redelivered); Nack abandons the
// delivery attempt without preventing redelivery (infrastructure
// failure); Term permanently drops the message (deterministic failure,
// e.g. malformed payload).
type Message struct {
	Payload []byte
	ack     func() error
	nack    func() error
	term    func(reason string) error
}

func (m *Message) Ack() error            { return m.ack() }
func (m *Message) Nack() error           { return m.nack() }
func (m *Message) Term(reason string) error { return m.term(reason) }

// Broker is the capability the API and workers consume: publish a work
// item, subscribe with manual acknowledgement, and inspect queue depth
// for backpressure decisions.
type Broker struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger

	maxDeliver map[string]int
	ackWait    map[string]time.Duration
}

// New connects to NATS and enables JetStream.
func New(url string) (*Broker, error) {
	logger := slog.Default().With("component", "broker")

	opts := []nats.Option{
		nats.Name("gsa-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("broker disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("broker reconnected", "url", nc.ConnectedUrl())
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("broker: jetstream init: %w", err)
	}

	return &Broker{
		conn:   nc,
		js:     js,
		logger: logger,
		maxDeliver: map[string]int{
			QueueAnalysis: 5,
			QueueDataset:  3,
			QueueReport:   5,
		},
		ackWait: map[string]time.Duration{
			QueueAnalysis: 30 * time.Second,
			QueueDataset:  30 * time.Second,
			QueueReport:   30 * time.Second,
		},
	}, nil
}

// Close drains pending publishes and disconnects.
func (b *Broker) Close() {
	if b.conn != nil {
		_ = b.conn.Drain()
	}
}

// EnsureQueues provisions the three work-queue streams, one subject per
// logical queue, retained until consumed (WorkQueuePolicy — no fan-out,
// exactly one subscriber group drains each message).
func (b *Broker) EnsureQueues(ctx context.Context, maxQueueLength int) error {
	for _, name := range []string{QueueAnalysis, QueueDataset, QueueReport} {
		cfg := jetstream.StreamConfig{
			Name:        streamName(name),
			Description: fmt.Sprintf("%s work queue", name),
			Subjects:    []string{subject(name)},
			Retention:   jetstream.WorkQueuePolicy,
			MaxMsgs:     int64(maxQueueLength),
			Storage:     jetstream.FileStorage,
			Replicas:    1,
			Discard:     jetstream.DiscardNew, // reject new publishes once at the ceiling, never silently drop queued work
		}
		if _, err := b.js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("broker: ensure queue %s: %w", name, err)
		}
		b.logger.Info("queue ready", "queue", name, "max_length", maxQueueLength)
	}
	return nil
}

func streamName(queue string) string { return "Q_" + queue }
func subject(queue string) string    { return "gsa." + queue }

// Publish enqueues v as a persistent message on queue. It returns an
// error (including a queue-at-capacity rejection surfaced by
// DiscardNew) that the caller retries per MAX_MESSAGE_TRIES before
// giving up with a 503.
func (b *Broker) Publish(ctx context.Context, queue string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("broker: marshal for %s: %w", queue, err)
	}
	if _, err := b.js.Publish(ctx, subject(queue), data); err != nil {
		return fmt.Errorf("broker: publish to %s: %w", queue, err)
	}
	return nil
}

// Length reports the current number of messages pending on queue.
func (b *Broker) Length(ctx context.Context, queue string) (int64, error) {
	info, err := b.js.Stream(ctx, streamName(queue))
	if err != nil {
		return 0, fmt.Errorf("broker: stream info for %s: %w", queue, err)
	}
	state, err := info.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("broker: stream state for %s: %w", queue, err)
	}
	return int64(state.State.Msgs), nil
}

// Handler processes one message. A non-nil error with no explicit
// Ack/Term call results in the message being left unacknowledged so
// JetStream's redelivery/delivery-limit machinery takes over — the
// InfrastructureError path from the design's error taxonomy.
type Handler func(ctx context.Context, msg *Message)

// Subscribe creates (or reattaches to) a durable, prefetch=1 consumer
// for queue and invokes handler for each delivery. One instance
// prefetching a single message at a time is what the concurrency model
// calls for to keep horizontal scaling fair; handler may still choose
// to process asynchronously provided it calls Ack/Nack/Term exactly once.
func (b *Broker) Subscribe(ctx context.Context, queue string, handler Handler) error {
	durable := "worker-" + queue

	cons, err := b.js.CreateOrUpdateConsumer(ctx, streamName(queue), jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject(queue),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    b.maxDeliver[queue],
		AckWait:       b.ackWait[queue],
		MaxAckPending: 1,
	})
	if err != nil {
		return fmt.Errorf("broker: create consumer for %s: %w", queue, err)
	}

	_, err = cons.Consume(func(m jetstream.Msg) {
		msg := &Message{
			Payload: m.Data(),
			ack:     m.Ack,
			nack:    func() error { return m.Nak() },
			term:    func(reason string) error { return m.TermWithReason(reason) },
		}
		handler(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("broker: consume %s: %w", queue, err)
	}

	b.logger.Info("subscribed", "queue", queue, "durable", durable)
	return nil
}

// Ping verifies the broker connection and JetStream account are reachable.
func (b *Broker) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("broker: not connected")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := b.js.AccountInfo(ctx); err != nil {
		return fmt.Errorf("broker: account info: %w", err)
	}
	return nil
}
