package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	// TurnsTotal counts handled turns by route (image, audio, text).
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediachat_turns_total",
		Help: "Chat turns handled, by route",
	}, []string{"route"})

	// TurnErrorsTotal counts failed turns by error kind.
	TurnErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediachat_turn_errors_total",
		Help: "Chat turns that ended in an error, by kind",
	}, []string{"kind"})

	TurnDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediachat_turn_duration_seconds",
		Help:    "Time to answer a chat turn",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"route"})

	// RAGFallbacksTotal counts RAG turns answered without context.
	RAGFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediachat_rag_fallbacks_total",
		Help: "RAG turns that fell back to a plain backend call",
	})

	IndexedChunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediachat_indexed_chunks_total",
		Help: "Chunks processed by the vector store, by outcome",
	}, []string{"outcome"})

	TranscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediachat_transcriptions_total",
		Help: "Audio transcriptions, by result",
	}, []string{"result"})
)

// ObserveTurn records one finished turn.
func ObserveTurn(route string, took time.Duration, errKind string) {
	TurnsTotal.WithLabelValues(route).Inc()
	TurnDuration.WithLabelValues(route).Observe(took.Seconds())
	if errKind != "" {
		TurnErrorsTotal.WithLabelValues(errKind).Inc()
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}
