package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	EmailsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "Отправленные письма по типу и статусу",
	}, []string{"kind", "status"})

	PostsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "posts_rejected_total",
		Help: "Новости, отклонённые по дневному лимиту",
	})

	PostsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_published_total",
		Help: "Опубликованные посты по типу",
	}, []string{"type"})

	JobsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Обработанные фоновые задачи",
	}, []string{"kind", "outcome"})

	DigestRunSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "digest_run_seconds",
		Help:    "Длительность еженедельной рассылки",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	DigestRunsSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "digest_runs_skipped_total",
		Help: "Запуски рассылки, пропущенные из-за уже идущего запуска",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		EmailsSentTotal,
		PostsRejectedTotal,
		PostsPublishedTotal,
		JobsProcessedTotal,
		DigestRunSeconds,
		DigestRunsSkippedTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveEmail учитывает попытку отправки письма.
func ObserveEmail(kind string, err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	EmailsSentTotal.WithLabelValues(kind, status).Inc()
}

// ObserveJob учитывает результат обработки задачи.
func ObserveJob(kind, outcome string) {
	JobsProcessedTotal.WithLabelValues(kind, outcome).Inc()
}

// IncPostPublished увеличивает счётчик опубликованных постов.
func IncPostPublished(postType string) {
	PostsPublishedTotal.WithLabelValues(postType).Inc()
}

// IncPostRejected увеличивает счётчик отклонённых по лимиту новостей.
func IncPostRejected() {
	PostsRejectedTotal.Inc()
}

// ObserveDigestRun записывает длительность рассылки.
func ObserveDigestRun(d time.Duration) {
	DigestRunSeconds.Observe(d.Seconds())
}

// IncDigestSkipped учитывает пропущенный из-за пересечения запуск.
func IncDigestSkipped() {
	DigestRunsSkippedTotal.Inc()
}
