// Package events carries domain events to durable queues and projects them
// for downstream consumers. Delivery is at-least-once: the publisher retries
// with exponential backoff and dead-letters what it cannot deliver, and
// consumers dedupe by event ID.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/voltgrid/chargeflow/internal/adapter/queue"
	"github.com/voltgrid/chargeflow/internal/domain"
	"github.com/voltgrid/chargeflow/internal/observability/telemetry"
	"github.com/voltgrid/chargeflow/internal/ports"
)

// RetryPolicy bounds the publish retries. The defaults follow the delivery
// contract: 1s initial interval, doubling, three attempts total, then the
// event moves to the per-type dead-letter queue.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     8 * time.Second,
		Multiplier:      2,
		MaxAttempts:     3,
	}
}

type Publisher struct {
	mq     queue.MessageQueue
	policy RetryPolicy
	log    *zap.Logger
}

func NewPublisher(mq queue.MessageQueue, policy RetryPolicy, log *zap.Logger) ports.EventPublisher {
	if policy.MaxAttempts == 0 {
		policy = DefaultRetryPolicy()
	}
	return &Publisher{
		mq:     mq,
		policy: policy,
		log:    log,
	}
}

// Publish delivers one event to its type's durable queue. Exhausted retries
// dead-letter the event and return an error, which callers treat as an
// infrastructure problem: logged, counted, never a reason to unwind a
// committed saga step.
func (p *Publisher) Publish(ctx context.Context, evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", evt.EventID, err)
	}

	subject := evt.Type.Subject()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.policy.InitialInterval
	bo.MaxInterval = p.policy.MaxInterval
	bo.Multiplier = p.policy.Multiplier

	attempt := 0
	operation := func() error {
		attempt++
		if err := p.mq.Publish(subject, data); err != nil {
			telemetry.EventPublishRetriesTotal.Inc()
			p.log.Warn("Event publish attempt failed",
				zap.String("event_id", evt.EventID),
				zap.String("subject", subject),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, p.policy.MaxAttempts-1), ctx))
	if err == nil {
		return nil
	}

	p.deadLetter(evt, data, err)
	return fmt.Errorf("publish %s after %d attempts: %w", subject, attempt, err)
}

func (p *Publisher) deadLetter(evt domain.Event, data []byte, cause error) {
	telemetry.EventsDeadLetteredTotal.WithLabelValues(string(evt.Type)).Inc()

	dlq := evt.Type.DeadLetterSubject()
	if err := p.mq.Publish(dlq, data); err != nil {
		// Both the queue and its DLQ are unreachable; the log line is the
		// last trace of this event.
		p.log.Error("Failed to dead-letter event",
			zap.String("event_id", evt.EventID),
			zap.String("dlq", dlq),
			zap.NamedError("publish_error", cause),
			zap.Error(err),
		)
		return
	}

	p.log.Error("Event dead-lettered after exhausted retries",
		zap.String("event_id", evt.EventID),
		zap.String("dlq", dlq),
		zap.Error(cause),
	)
}
