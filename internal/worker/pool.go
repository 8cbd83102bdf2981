// Package worker implements the durable pull-consumer runtime: fetch in
// small batches, dispatch each message to a handler on its own goroutine,
// race it against the shared shutdown signal, and ACK/NAK by the result.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/beebs-dev/dorch/internal/appconfig"
	"github.com/beebs-dev/dorch/internal/domain"
	"github.com/beebs-dev/dorch/internal/metrics"
	"github.com/beebs-dev/dorch/internal/queue"
	"github.com/beebs-dev/dorch/internal/shutdown"
	"github.com/beebs-dev/dorch/internal/workerutil"
)

// Handler processes one decoded job envelope. Its error MUST resolve via
// errors.Is to domain.ErrRetryable, domain.ErrPoison, or domain.ErrNoMaps so
// the pool can decide ACK vs NAK without inspecting error strings.
type Handler func(ctx context.Context, env domain.JobEnvelope) error

// Decode turns a raw message payload into a JobEnvelope. Meta and image
// consumers use different validation (sha1 vs. wad_id), so it's supplied
// by the caller rather than fixed inside the pool.
type Decode func(data []byte) (domain.JobEnvelope, error)

// Pool runs the fetch/dispatch/ack loop for one consumer.
type Pool struct {
	consumer *queue.Consumer
	cfg      appconfig.WorkerConfig
	signal   *shutdown.Signaler
	logger   arbor.ILogger
	handler  Handler
	decode   Decode
	kind     string // "meta" or "img"; labels the metrics this pool emits

	wg sync.WaitGroup

	mu        sync.Mutex
	processed int
	failed    int
}

// New builds a Pool bound to an already-provisioned durable consumer. kind
// labels the prometheus series this pool emits ("meta" or "img").
func New(consumer *queue.Consumer, cfg appconfig.WorkerConfig, signal *shutdown.Signaler, logger arbor.ILogger, kind string, decode Decode, handler Handler) *Pool {
	return &Pool{consumer: consumer, cfg: cfg, signal: signal, logger: logger, kind: kind, decode: decode, handler: handler}
}

// Stats is a snapshot of processed/failed counters for metrics reporting.
type Stats struct {
	Processed int
	Failed    int
}

// Stats returns the current processed/failed counts.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Processed: p.processed, Failed: p.failed}
}

// Run is the outer fetch loop. It returns when ctx is done and all
// in-flight jobs have settled.
func (p *Pool) Run(ctx context.Context) {
	defer p.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("worker pool shutting down")
			return
		default:
		}

		msgs, err := p.consumer.Fetch(ctx, p.cfg.Batch, p.cfg.FetchTimeout())
		if err != nil {
			p.logger.Warn().Err(err).Msg("fetch failed")
			continue
		}
		if len(msgs) == 0 {
			metrics.FetchTimeouts.WithLabelValues(p.kind).Inc()
			continue // fetch timeout is normal
		}

		for _, msg := range msgs {
			p.handleOne(ctx, msg)
		}
	}
}

// handleOne dispatches a single message to the handler on its own
// goroutine and waits on (work, shutdown) concurrently, per the
// per-job cooperative-cancellation contract.
func (p *Pool) handleOne(ctx context.Context, msg *queue.Message) {
	p.wg.Add(1)
	defer p.wg.Done()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	workerutil.SafeGo(p.logger, "job:"+msg.Subject(), func() {
		// Sent from a defer so done is written even when the handler panics.
		result := error(&domain.RetryableError{Cause: errors.New("job handler panicked")})
		defer func() { done <- result }()

		env, err := p.decodeWithSubjectOverride(msg)
		if err != nil {
			result = err
			return
		}
		result = p.handler(jobCtx, env)
	})

	select {
	case err := <-done:
		metrics.JobDuration.WithLabelValues(p.kind).Observe(time.Since(start).Seconds())
		p.settle(msg, err)
	case <-p.signal.Done():
		p.logger.Info().Str("subject", msg.Subject()).Msg("shutdown mid-job; nak for prompt redelivery")
		if err := msg.Nak(); err != nil {
			p.logger.Warn().Err(err).Msg("nak failed during shutdown")
		}
		cancel()
		<-done // drain the goroutine; its result is discarded
	}
}

// decodeWithSubjectOverride decodes the envelope and prefers the subject's
// embedded identifier as the source of truth when it disagrees with the
// payload. For meta jobs that identifier is the sha1; for image jobs it's
// the catalog wad_id.
func (p *Pool) decodeWithSubjectOverride(msg *queue.Message) (domain.JobEnvelope, error) {
	env, err := p.decode(msg.Data())
	if err != nil {
		return domain.JobEnvelope{}, err
	}

	subjectID, kind, ok := queue.ParseSubject(msg.Subject())
	if !ok {
		return env, nil
	}

	switch kind {
	case "meta":
		if subjectID != env.SHA1 {
			p.logger.Warn().Str("subject_hash", subjectID).Str("payload_hash", env.SHA1).
				Msg("subject/payload hash mismatch; trusting subject")
			env.SHA1 = subjectID
		}
	case "img":
		if subjectID != env.WadID {
			p.logger.Warn().Str("subject_wad_id", subjectID).Str("payload_wad_id", env.WadID).
				Msg("subject/payload wad_id mismatch; trusting subject")
			env.WadID = subjectID
		}
	}
	return env, nil
}

func (p *Pool) settle(msg *queue.Message, err error) {
	if err == nil {
		p.mu.Lock()
		p.processed++
		p.mu.Unlock()
		metrics.JobsProcessed.WithLabelValues(p.kind).Inc()
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Error().Err(ackErr).Msg("ack failed")
		}
		return
	}

	p.mu.Lock()
	p.failed++
	p.mu.Unlock()
	p.logger.Error().Err(err).Str("subject", msg.Subject()).Msg("job failed")
	metrics.JobsFailed.WithLabelValues(p.kind, errorClass(err)).Inc()

	if isNonRetryable(err) {
		// Poison payloads and no-op renderer outcomes are dropped, not retried.
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Error().Err(ackErr).Msg("ack failed for non-retryable error")
		}
		return
	}

	if msg.DeliveryCount() >= p.cfg.MaxDeliveries {
		p.logger.Warn().Str("subject", msg.Subject()).Int("deliveries", msg.DeliveryCount()).
			Msg("delivery cap reached; acking to prevent poison retention")
		if ackErr := msg.Ack(); ackErr != nil {
			p.logger.Error().Err(ackErr).Msg("ack failed at delivery cap")
		}
		return
	}

	if nakErr := msg.Nak(); nakErr != nil {
		p.logger.Error().Err(nakErr).Msg("nak failed")
	}
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrPoison):
		return "poison"
	case errors.Is(err, domain.ErrNoMaps):
		return "no_maps"
	case errors.Is(err, domain.ErrRetryable):
		return "retryable"
	default:
		return "unknown"
	}
}

func isNonRetryable(err error) bool {
	return errors.Is(err, domain.ErrPoison) || errors.Is(err, domain.ErrNoMaps)
}
