package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/ticketdesk/orderbot/types"
)

// PipelineMetrics records submission pipeline telemetry in Prometheus.
type PipelineMetrics struct {
	submissions       *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	worksheetFallback *prometheus.CounterVec
	dateFallback      prometheus.Counter
	ocrFragments      *prometheus.CounterVec
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)
	return &PipelineMetrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbot_submissions_total",
			Help: "Finished pipeline runs by outcome and reason",
		}, []string{"outcome", "reason"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orderbot_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		worksheetFallback: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbot_worksheet_fallback_total",
			Help: "Rows routed to the default worksheet",
		}, []string{"cause"}),
		dateFallback: factory.NewCounter(prometheus.CounterOpts{
			Name: "orderbot_date_fallback_total",
			Help: "Rows whose event date could not be parsed and used the routing time",
		}),
		ocrFragments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderbot_ocr_fragments_total",
			Help: "Attachments seen during fusion by result",
		}, []string{"result"}),
	}
}

func (m *PipelineMetrics) ObserveStage(stage types.PipelineState, d time.Duration) {
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (m *PipelineMetrics) SubmissionFinished(outcome, reason string) {
	m.submissions.WithLabelValues(outcome, reason).Inc()
}

func (m *PipelineMetrics) WorksheetFallback(cause string) {
	m.worksheetFallback.WithLabelValues(cause).Inc()
}

func (m *PipelineMetrics) DateFallback() {
	m.dateFallback.Inc()
}

func (m *PipelineMetrics) OCRFragment(result string) {
	m.ocrFragments.WithLabelValues(result).Inc()
}
