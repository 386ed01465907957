package source

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dhrudevalia/neo4j-kafka-connector/src/infra/neo4j"
)

// CursorStore persists the poller's position so restarts resume where the
// previous run left off.
type CursorStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// QueryPoller tails the graph database by running a parameterized query on an
// interval. The query receives the last persisted cursor as $lastCheck
// (milliseconds); rows advance the cursor through the configured streaming
// field, or to the poll time when the field is absent.
type QueryPoller struct {
	logger         *slog.Logger
	client         neo4j.Client
	publisher      *RecordPublisher
	cursor         CursorStore
	cursorKey      string
	query          string
	interval       time.Duration
	streamingField string
}

func NewQueryPoller(
	logger *slog.Logger,
	client neo4j.Client,
	publisher *RecordPublisher,
	cursor CursorStore,
	cursorKey string,
	query string,
	interval time.Duration,
	streamingField string,
) *QueryPoller {
	return &QueryPoller{
		logger:         logger,
		client:         client,
		publisher:      publisher,
		cursor:         cursor,
		cursorKey:      cursorKey,
		query:          query,
		interval:       interval,
		streamingField: streamingField,
	}
}

// Start polls until the context is cancelled. Poll failures are logged and
// retried on the next tick; the cursor only advances after a successful
// publish, so rows are delivered at least once.
func (p *QueryPoller) Start(ctx context.Context) error {
	p.logger.Info("Starting source poller",
		"interval", p.interval,
		"streaming_field", p.streamingField)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Source poller stopped")
			return nil
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *QueryPoller) poll(ctx context.Context) {
	lastCheck := p.readCursor(ctx)

	rows, err := p.client.ExecuteRead(ctx, p.query, map[string]any{"lastCheck": lastCheck})
	if err != nil {
		p.logger.Error("Source poll query failed", "error", err, "last_check", lastCheck)
		return
	}
	if len(rows) == 0 {
		return
	}

	if err := p.publisher.PublishRows(rows); err != nil {
		p.logger.Error("Source publish failed, cursor not advanced", "error", err)
		return
	}

	next := p.nextCursor(rows)
	if err := p.cursor.Set(ctx, p.cursorKey, strconv.FormatInt(next, 10)); err != nil {
		p.logger.Error("Failed to persist source cursor", "error", err, "cursor", next)
		return
	}

	p.logger.Debug("Source poll completed", "rows", len(rows), "cursor", next)
}

func (p *QueryPoller) readCursor(ctx context.Context) int64 {
	value, err := p.cursor.Get(ctx, p.cursorKey)
	if err != nil {
		p.logger.Warn("Failed to read source cursor, starting from zero", "error", err)
		return 0
	}
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		p.logger.Warn("Invalid source cursor, starting from zero", "value", value)
		return 0
	}
	return parsed
}

// nextCursor returns the largest streaming-field value seen, falling back to
// the poll time when no row carries the field.
func (p *QueryPoller) nextCursor(rows []map[string]any) int64 {
	next := int64(0)
	for _, row := range rows {
		if raw, ok := row[p.streamingField]; ok {
			if ts := asInt64(raw); ts > next {
				next = ts
			}
		}
	}
	if next == 0 {
		next = time.Now().UnixMilli()
	}
	return next
}

func asInt64(value any) int64 {
	switch v := value.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
