package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"venueattend/internal/queue"
)

// Forwarder delivers one queued message downstream.
type Forwarder interface {
	Forward(ctx context.Context, msg queue.Message) error
}

// RelayRecorder observes forwarding results. Satisfied by *metrics.Metrics.
type RelayRecorder interface {
	EventForwarded()
	NotifyFailed()
}

// Relay drains the event queue into a Forwarder.
type Relay struct {
	q        queue.Queue
	fwd      Forwarder
	logger   *slog.Logger
	recorder RelayRecorder
	attempts uint64
	backoff  time.Duration
}

type RelayOption func(*Relay)

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRelayRecorder(rec RelayRecorder) RelayOption {
	return func(r *Relay) { r.recorder = rec }
}

// WithRetry sets how many extra attempts a message gets and the initial backoff.
func WithRetry(attempts uint64, backoff time.Duration) RelayOption {
	return func(r *Relay) {
		r.attempts = attempts
		if backoff > 0 {
			r.backoff = backoff
		}
	}
}

func NewRelay(q queue.Queue, fwd Forwarder, opts ...RelayOption) *Relay {
	r := &Relay{
		q:        q,
		fwd:      fwd,
		logger:   slog.Default(),
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run forwards messages until ctx is cancelled. A message that still fails
// after its retries is logged and dropped.
func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.q.Consume(ctx)
	if err != nil {
		return err
	}
	r.logger.Info("relay started")
	for msg := range msgs {
		r.handle(ctx, msg)
	}
	r.logger.Info("relay stopped")
	return ctx.Err()
}

func (r *Relay) handle(ctx context.Context, msg queue.Message) {
	b := retry.WithMaxRetries(r.attempts, retry.NewExponential(r.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := r.fwd.Forward(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("forward event failed", "type", msg.Type, "error", err)
		if r.recorder != nil {
			r.recorder.NotifyFailed()
		}
		return
	}
	if r.recorder != nil {
		r.recorder.EventForwarded()
	}
}
