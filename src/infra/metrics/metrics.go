package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "neo4j_connector"

// Metrics holds the connector's Prometheus collectors. The dropped-events
// counter keeps the CDC-Schema strategy's silent drops visible.
type Metrics struct {
	registry *prometheus.Registry

	RecordsConsumed  *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	BatchesCommitted prometheus.Counter
	BatchRetries     prometheus.Counter
	DeadLetters      *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		RecordsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_consumed_total",
			Help:      "Records consumed from the broker, per topic.",
		}, []string{"topic"}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped by a strategy, per topic and reason.",
		}, []string{"topic", "reason"}),
		BatchesCommitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Batches committed to the graph database.",
		}),
		BatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_retries_total",
			Help:      "Transient batch failures that triggered a retry.",
		}),
		DeadLetters: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dead_letters_total",
			Help:      "Records routed to the dead-letter topic, per topic.",
		}, []string{"topic"}),
	}
}

// Server exposes the registry over HTTP at /metrics.
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer starts the metrics listener in the background. An empty address
// disables the listener and returns a nil server.
func NewServer(logger *slog.Logger, m *Metrics, addr string) *Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &Server{
		logger:     logger,
		httpServer: &http.Server{Addr: addr, Handler: mux},
	}

	go func() {
		logger.Info("Metrics listener started", "addr", addr)
		if err := server.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics listener failed", "error", err)
		}
	}()

	return server
}

// Close shuts the listener down, waiting briefly for in-flight scrapes.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
