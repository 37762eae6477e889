// Package metrics exposes Prometheus counters for the assistant core.
// Counters are registered on a package-private registry so tests never
// collide with the default global one.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"nexus/internal/logging"
)

var (
	registry = prometheus.NewRegistry()

	// RetrievalTierHits counts which tier answered a context retrieval.
	// The label holds "short_term", "long_term", "web" or "none".
	RetrievalTierHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_retrieval_tier_hits_total",
		Help: "Context retrievals answered, by tier.",
	}, []string{"tier"})

	// MessagesRecorded counts messages written into the context store.
	MessagesRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nexus_messages_recorded_total",
		Help: "Messages recorded into the context store, by role.",
	}, []string{"role"})

	// CheckpointsWritten counts checkpoints persisted.
	CheckpointsWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_checkpoints_written_total",
		Help: "Checkpoints written by the snapshot manager.",
	})

	// CheckpointsPruned counts checkpoints and backups removed by retention.
	CheckpointsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_checkpoints_pruned_total",
		Help: "Checkpoint and backup files removed by pruning.",
	})

	// ProviderErrors counts failed language-model calls.
	ProviderErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nexus_provider_errors_total",
		Help: "Language-model provider calls that returned an error.",
	})
)

func init() {
	registry.MustRegister(
		RetrievalTierHits,
		MessagesRecorded,
		CheckpointsWritten,
		CheckpointsPruned,
		ProviderErrors,
	)
}

// Serve exposes /metrics on addr until ctx is cancelled. Errors are logged,
// never fatal; metrics are an optional surface.
func Serve(ctx context.Context, addr string) {
	log := logging.L("metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
