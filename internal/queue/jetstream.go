package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/ternarybob/arbor"
)

// StreamConfig describes the retention/limits for one work-queue stream.
type StreamConfig struct {
	Name              string
	Subjects          []string
	MaxAge            time.Duration
	DuplicateWindow   time.Duration
	MaxBytes          int64 // 0 == unlimited
}

// Queue wraps a JetStream connection shared by the dispatcher and workers.
type Queue struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger arbor.ILogger
}

// Connect dials the NATS server and obtains a JetStream context.
func Connect(ctx context.Context, url string, logger arbor.ILogger) (*Queue, error) {
	nc, err := nats.Connect(url, nats.Name("dorch"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	return &Queue{nc: nc, js: js, logger: logger}, nil
}

// EnsureStream creates the stream if absent, or updates it in place,
// with work-queue retention, file storage, and discard-oldest.
func (q *Queue) EnsureStream(ctx context.Context, cfg StreamConfig) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:       cfg.Name,
		Subjects:   cfg.Subjects,
		Retention:  jetstream.WorkQueuePolicy,
		Storage:    jetstream.FileStorage,
		Discard:    jetstream.DiscardOld,
		MaxAge:     cfg.MaxAge,
		Duplicates: cfg.DuplicateWindow,
	}
	if cfg.MaxBytes > 0 {
		streamCfg.MaxBytes = cfg.MaxBytes
	}

	if _, err := q.js.Stream(ctx, cfg.Name); err == nil {
		return q.js.UpdateStream(ctx, streamCfg)
	}
	return q.js.CreateStream(ctx, streamCfg)
}

// Publish publishes data to subject with a bounded timeout and an optional
// dedupe message ID (Nats-Msg-Id header).
func (q *Queue) Publish(ctx context.Context, subject string, data []byte, msgID string, timeout time.Duration) error {
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []jetstream.PublishOpt{}
	if msgID != "" {
		opts = append(opts, jetstream.WithMsgID(msgID))
	}

	_, err := q.js.Publish(pctx, subject, data, opts...)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}

// ConsumerConfig configures a durable pull consumer.
type ConsumerConfig struct {
	StreamName    string
	DurableName   string
	FilterSubject string
	MaxDeliver    int
}

// Consumer is a durable pull consumer bound to one stream.
type Consumer struct {
	cons jetstream.Consumer
}

// EnsureConsumer creates (or reuses) a durable pull consumer.
func (q *Queue) EnsureConsumer(ctx context.Context, cfg ConsumerConfig) (*Consumer, error) {
	cons, err := q.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       cfg.DurableName,
		FilterSubject: cfg.FilterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    cfg.MaxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring consumer %s: %w", cfg.DurableName, err)
	}
	return &Consumer{cons: cons}, nil
}

// Message wraps a fetched JetStream message with the accessors the worker
// loop needs (subject, delivery count, ACK/NAK).
type Message struct {
	msg jetstream.Msg
}

func (m *Message) Subject() string { return m.msg.Subject() }
func (m *Message) Data() []byte    { return m.msg.Data() }

// DeliveryCount returns how many times this message has been delivered.
func (m *Message) DeliveryCount() int {
	meta, err := m.msg.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}

func (m *Message) Ack() error { return m.msg.Ack() }
func (m *Message) Nak() error { return m.msg.Nak() }

// Fetch pulls up to batch messages, waiting at most timeout. A fetch
// timeout with zero messages is a normal, non-error condition.
func (c *Consumer) Fetch(ctx context.Context, batch int, timeout time.Duration) ([]*Message, error) {
	msgs, err := c.cons.Fetch(batch, jetstream.FetchMaxWait(timeout))
	if err != nil {
		return nil, fmt.Errorf("fetching batch: %w", err)
	}

	var out []*Message
	for m := range msgs.Messages() {
		out = append(out, &Message{msg: m})
	}
	if err := msgs.Error(); err != nil && len(out) == 0 {
		return nil, nil // timeout with nothing delivered is normal
	}
	return out, nil
}

// Flush performs a bounded flush of any buffered outbound traffic, used on
// the fast-exit shutdown path.
func (q *Queue) Flush(timeout time.Duration) error {
	return q.nc.FlushTimeout(timeout)
}

// Drain gracefully unsubscribes and waits for in-flight acks to settle,
// used on the graceful shutdown path.
func (q *Queue) Drain() error {
	return q.nc.Drain()
}

// Close closes the underlying connection immediately.
func (q *Queue) Close() {
	q.nc.Close()
}
