package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/domain"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/metrics"
	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/neo4j"
)

// GraphWriteRepository commits batches of query events to the graph database.
// All statements of a batch run in a single write transaction; parameter
// lists are chunked to a bounded size, and transient failures retry the whole
// batch with exponential backoff.
type GraphWriteRepository struct {
	client       neo4j.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics
	chunkSize    int
	maxRetries   int
	retryBackoff time.Duration
}

func NewGraphWriteRepository(
	logger *slog.Logger,
	client neo4j.Client,
	m *metrics.Metrics,
	chunkSize int,
	maxRetries int,
	retryBackoff time.Duration,
) *GraphWriteRepository {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &GraphWriteRepository{
		client:       client,
		logger:       logger,
		metrics:      m,
		chunkSize:    chunkSize,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
	}
}

// WriteBatch runs the ordered query events through the batch state machine:
// SUBMITTED, then COMMITTED, RETRYING or FAILED. The returned error is
// classified as transient (retries exhausted) or permanent.
func (r *GraphWriteRepository) WriteBatch(ctx context.Context, events []domain.QueryEvents) error {
	statements := r.chunk(events)
	if len(statements) == 0 {
		return nil
	}

	r.logger.Debug("Batch submitted", "statements", len(statements))

	attempt := 0
	operation := func() error {
		attempt++
		err := r.client.ExecuteBatch(ctx, statements)
		if err == nil {
			return nil
		}
		if neo4j.IsTransient(err) {
			if r.metrics != nil {
				r.metrics.BatchRetries.Inc()
			}
			r.logger.Warn("Batch retrying after transient failure",
				"attempt", attempt,
				"error", err)
			return err
		}
		return backoff.Permanent(err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.retryBackoff
	expo.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(r.maxRetries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if neo4j.IsTransient(err) {
			r.logger.Error("Batch failed after exhausting retries", "attempts", attempt, "error", err)
			return fmt.Errorf("%w: %v", domain.ErrTransientDriver, err)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		r.logger.Error("Batch failed permanently", "attempts", attempt, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrPermanentDriver, err)
	}

	if r.metrics != nil {
		r.metrics.BatchesCommitted.Inc()
	}
	r.logger.Debug("Batch committed", "statements", len(statements), "attempts", attempt)
	return nil
}

// chunk splits each statement's parameter list into bounded invocations,
// preserving statement and parameter order.
func (r *GraphWriteRepository) chunk(events []domain.QueryEvents) []neo4j.Statement {
	var statements []neo4j.Statement
	for _, qe := range events {
		if len(qe.Events) == 0 {
			continue
		}
		for start := 0; start < len(qe.Events); start += r.chunkSize {
			end := start + r.chunkSize
			if end > len(qe.Events) {
				end = len(qe.Events)
			}
			statements = append(statements, neo4j.Statement{
				Cypher: qe.Statement,
				Params: map[string]any{"events": qe.Events[start:end]},
			})
		}
	}
	return statements
}
