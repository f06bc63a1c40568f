// Package ingress is the entry point for inbound events. It validates each
// event, assigns its sequence key, drops duplicates, applies admission
// control to new orders and hands the envelope to a per-subject shard.
//
// Only ErrMalformedEvent and ports.ErrAdmissionRejected are returned for
// events that reach the service. What happens to an event after it is queued
// is logged, never reported back to the producer.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orderdispatch/internal/core/domain/model/event"
	"orderdispatch/internal/core/ports"
	"orderdispatch/internal/pkg/errs"
	"orderdispatch/internal/pkg/metrics"

	"github.com/go-playground/validator/v10"
)

// Queue accepts normalized envelopes for asynchronous processing.
type Queue interface {
	Enqueue(ctx context.Context, env event.Envelope) error
}

// Receipt tells the producer what happened to its event.
type Receipt struct {
	EventID   string `json:"event_id"`
	Sequence  int64  `json:"sequence"`
	Duplicate bool   `json:"duplicate"`
}

type Ingress struct {
	validate  *validator.Validate
	dedup     ports.DedupWindow
	admission ports.AdmissionController
	sequences ports.SequenceAuthority
	queue     Queue
	clock     ports.Clock
	logger    *slog.Logger
}

func NewIngress(
	dedup ports.DedupWindow,
	admission ports.AdmissionController,
	sequences ports.SequenceAuthority,
	queue Queue,
	clock ports.Clock,
	logger *slog.Logger,
) (*Ingress, error) {
	if dedup == nil || admission == nil || sequences == nil || queue == nil || clock == nil {
		return nil, errs.NewValueIsRequiredError("ingress dependency")
	}

	return &Ingress{
		validate:  NewValidator(),
		dedup:     dedup,
		admission: admission,
		sequences: sequences,
		queue:     queue,
		clock:     clock,
		logger:    logger.With("component", "ingress"),
	}, nil
}

// Submit accepts one event. Duplicates inside the dedup window are acknowledged
// with Receipt.Duplicate set and are not applied again.
//
// Coordination store failures are returned wrapped so the producer can retry;
// the event has not been queued in that case and its dedup key is released.
func (i *Ingress) Submit(ctx context.Context, raw RawEvent) (Receipt, error) {
	env, err := normalize(i.validate, raw, i.clock.Now())
	if err != nil {
		metrics.EventsDroppedTotal.WithLabelValues("malformed").Inc()
		i.logger.InfoContext(ctx, "malformed event rejected", "type", raw.Type, "subject", raw.SubjectID, "error", err)
		return Receipt{}, err
	}

	receipt := Receipt{EventID: env.ID.String(), Sequence: env.Sequence}

	// Producer retries carry the same source key, so dedup works on that key
	// even when the authority moves the event to a different one.
	dedupKey := ""
	if env.Sequence > 0 {
		dedupKey = env.DedupKey()
		seen, seenErr := i.dedup.Seen(ctx, dedupKey)
		if seenErr != nil {
			return Receipt{}, seenErr
		}
		if seen {
			return i.duplicate(ctx, env, dedupKey, receipt), nil
		}
	}

	if env.Type == event.OrderPlaced {
		if err = i.admission.Admit(ctx, ports.AdmissionIngest, env.Payload.MerchantID.String()); err != nil {
			if errors.Is(err, ports.ErrAdmissionRejected) {
				metrics.EventsDroppedTotal.WithLabelValues("rejected").Inc()
				i.logger.InfoContext(ctx, "order placement throttled",
					"merchant_id", env.Payload.MerchantID.String(), "order_id", env.Subject.String())
			}
			return Receipt{}, err
		}
	}

	source := env.Sequence
	if source > 0 {
		env.Sequence, err = i.sequences.Observe(ctx, env.Subject, source)
	} else {
		env.Sequence, err = i.sequences.Next(ctx, env.Subject)
	}
	if err != nil {
		return Receipt{}, fmt.Errorf("sequence for %s: %w", env.Subject, err)
	}
	if source > 0 && env.Sequence != source {
		i.logger.InfoContext(ctx, "source key already issued by the service, re-based",
			"subject", env.Subject.String(), "source_sequence", source, "sequence", env.Sequence)
	}
	receipt.Sequence = env.Sequence

	if dedupKey != "" {
		first, claimErr := i.dedup.Claim(ctx, dedupKey)
		if claimErr != nil {
			return Receipt{}, claimErr
		}
		if !first {
			return i.duplicate(ctx, env, dedupKey, receipt), nil
		}
	}

	if err = i.queue.Enqueue(ctx, env); err != nil {
		if dedupKey != "" {
			if releaseErr := i.dedup.Release(ctx, dedupKey); releaseErr != nil {
				i.logger.ErrorContext(ctx, "failed to release dedup key, producer retries will be dropped",
					"dedup_key", dedupKey, "error", releaseErr)
			}
		}
		return Receipt{}, fmt.Errorf("enqueue %s: %w", env.ID, err)
	}
	return receipt, nil
}

func (i *Ingress) duplicate(ctx context.Context, env event.Envelope, dedupKey string, receipt Receipt) Receipt {
	metrics.EventsDroppedTotal.WithLabelValues("duplicate").Inc()
	i.logger.DebugContext(ctx, "duplicate event dropped", "dedup_key", dedupKey, "type", string(env.Type))
	receipt.Duplicate = true
	return receipt
}
