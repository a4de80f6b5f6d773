package services

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/ticketdesk/orderbot/types"
)

func TestPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)

	m.SubmissionFinished("accepted", "")
	m.SubmissionFinished("aborted", "TOO_INCOMPLETE:")
	m.SubmissionFinished("aborted", "TOO_INCOMPLETE:")
	m.WorksheetFallback("no_rule")
	m.DateFallback()
	m.OCRFragment("ok")
	m.OCRFragment("not_image")
	m.ObserveStage(types.StateExtracting, 1500*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.submissions.WithLabelValues("accepted", "")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.submissions.WithLabelValues("aborted", "TOO_INCOMPLETE:")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.worksheetFallback.WithLabelValues("no_rule")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dateFallback))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ocrFragments.WithLabelValues("not_image")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stageDuration))
}
