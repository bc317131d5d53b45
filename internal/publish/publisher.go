package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/23skdu/longbow-lens/internal/results"
)

// ErrCircuitOpen is returned when the breaker rejects a publish.
var ErrCircuitOpen = errors.New("circuit breaker open")

var (
	rowsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lens_publish_rows_total",
		Help: "Total number of summary rows sent to Longbow",
	})

	publishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lens_publish_errors_total",
		Help: "Total number of failed or rejected publishes",
	}, []string{"reason"})
)

var tracer = otel.Tracer("lens-publish")

// Client is the upload side of a FlightClient.
type Client interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
}

// Publisher sends summary tables to a Longbow dataset.
type Publisher struct {
	Client  Client
	Breaker *CircuitBreaker
	Dataset string
	Alloc   memory.Allocator
}

// Publish uploads records as one summary batch. An empty slice is a no-op.
func (p *Publisher) Publish(ctx context.Context, records []results.Record) error {
	if len(records) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "publish.Publish", trace.WithAttributes(
		attribute.String("dataset", p.Dataset),
		attribute.Int("rows", len(records)),
	))
	defer span.End()

	if p.Breaker != nil && !p.Breaker.Allow() {
		publishErrors.WithLabelValues("circuit_open").Inc()
		return ErrCircuitOpen
	}

	alloc := p.Alloc
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	rec := results.BuildSummary(alloc, records)
	defer rec.Release()

	if err := p.Client.DoPut(ctx, p.Dataset, rec); err != nil {
		if p.Breaker != nil {
			p.Breaker.Failure()
		}
		publishErrors.WithLabelValues("do_put").Inc()
		span.RecordError(err)
		return fmt.Errorf("publish to %s: %w", p.Dataset, err)
	}
	if p.Breaker != nil {
		p.Breaker.Success()
	}
	rowsPublished.Add(float64(len(records)))
	log.Info().Str("dataset", p.Dataset).Int("rows", len(records)).Msg("Published analysis summary to Longbow")
	return nil
}

// PublishWithRetry calls Publish up to attempts times, sharing p.Breaker across
// attempts. The nth retry waits n*backoff. It stops early on success, on
// context cancellation, or once the breaker opens.
func (p *Publisher) PublishWithRetry(ctx context.Context, records []results.Record, attempts int, backoff time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("publish to %s: %w", p.Dataset, ctx.Err())
			case <-time.After(time.Duration(i) * backoff):
			}
		}
		err := p.Publish(ctx, records)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			if lastErr != nil {
				return fmt.Errorf("%w: %w", ErrCircuitOpen, lastErr)
			}
			return err
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i+1).Int("attempts", attempts).Msg("Publish failed")
	}
	return lastErr
}
