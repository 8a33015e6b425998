// Package metrics собирает счетчики конвейера загрузки для Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slack-calendar/internal/domain"
)

const namespace = "slackcal"

// Outcome запуска в метках.
const (
	OutcomeSuccess  = "success"
	OutcomeDegraded = "degraded"
	OutcomeFailed   = "failed"
	OutcomeCached   = "cached"
)

// Metrics хранит собственный реестр, чтобы тесты и несколько серверов
// в одном процессе не конфликтовали при регистрации.
type Metrics struct {
	registry *prometheus.Registry

	runs              *prometheus.CounterVec
	messagesParsed    prometheus.Counter
	messagesRetained  prometheus.Counter
	messagesStored    prometheus.Counter
	eventsExtracted   prometheus.Counter
	eventsInserted    prometheus.Counter
	eventsSkipped     prometheus.Counter
	fileFailures      prometheus.Counter
	failedBatches     prometheus.Counter
	runDuration       *prometheus.HistogramVec
	lastSuccessfulRun *prometheus.GaugeVec
}

// New создает и регистрирует метрики.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingestion_runs_total",
		Help:      "Ingestion runs by flow and outcome",
	}, []string{"flow", "outcome"})
	m.messagesParsed = counter("messages_parsed_total", "Messages parsed from archives")
	m.messagesRetained = counter("messages_retained_total", "Messages kept after the recency filter")
	m.messagesStored = counter("messages_stored_total", "Messages written to the store")
	m.eventsExtracted = counter("events_extracted_total", "Event candidates extracted from messages")
	m.eventsInserted = counter("events_inserted_total", "Events inserted into the store")
	m.eventsSkipped = counter("events_skipped_total", "Events skipped as duplicates")
	m.fileFailures = counter("file_failures_total", "Channel files skipped during the walk")
	m.failedBatches = counter("extraction_failed_batches_total", "Extraction batches that failed")
	m.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingestion_duration_seconds",
		Help:      "Ingestion run duration",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"flow"})
	m.lastSuccessfulRun = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_successful_run_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	}, []string{"flow"})

	m.registry.MustRegister(
		m.runs, m.messagesParsed, m.messagesRetained, m.messagesStored,
		m.eventsExtracted, m.eventsInserted, m.eventsSkipped,
		m.fileFailures, m.failedBatches, m.runDuration, m.lastSuccessfulRun,
		collectors.NewGoCollector(),
	)
	return m
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
}

// Outcome возвращает метку исхода для отчета.
func Outcome(r domain.IngestionReport) string {
	switch {
	case r.Cached:
		return OutcomeCached
	case !r.Success:
		return OutcomeFailed
	case r.Degraded:
		return OutcomeDegraded
	default:
		return OutcomeSuccess
	}
}

// ObserveReport учитывает итог одного запуска. Безопасен для nil.
func (m *Metrics) ObserveReport(r domain.IngestionReport) {
	if m == nil {
		return
	}
	flow := string(r.Flow)
	m.runs.WithLabelValues(flow, Outcome(r)).Inc()
	if r.Cached {
		return
	}

	m.messagesParsed.Add(float64(r.MessagesParsed))
	m.messagesRetained.Add(float64(r.MessagesRetained))
	m.messagesStored.Add(float64(r.MessagesStored))
	m.eventsExtracted.Add(float64(r.EventsExtracted))
	m.eventsInserted.Add(float64(r.EventsInserted))
	m.eventsSkipped.Add(float64(r.EventsSkipped))
	m.fileFailures.Add(float64(len(r.FileFailures)))
	m.failedBatches.Add(float64(r.FailedBatches))

	if !r.StartedAt.IsZero() && r.FinishedAt.After(r.StartedAt) {
		m.runDuration.WithLabelValues(flow).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	}
	if r.Success {
		m.lastSuccessfulRun.WithLabelValues(flow).Set(float64(r.FinishedAt.Unix()))
	}
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler отдает метрики в текстовом формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
