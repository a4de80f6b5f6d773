package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/resend/resend-go/v2"
	"github.com/ticketdesk/orderbot/config"
	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/types"
)

type AlertMetrics struct {
	sendLatency prometheus.Histogram
	errorCount  prometheus.Counter
	sentCount   prometheus.Counter
}

// AlertService emails operators when an accepted record could not be written
// to its destination sheet.
type AlertService struct {
	config  *config.EmailConfig
	client  *resend.Client
	metrics *AlertMetrics
	tmpl    *template.Template
}

func NewAlertService(cfg *config.EmailConfig) *AlertService {
	return NewAlertServiceWithRegistry(cfg, prometheus.DefaultRegisterer)
}

func NewAlertServiceWithRegistry(cfg *config.EmailConfig, reg prometheus.Registerer) *AlertService {
	logger.GetLogger().Infow("Initializing alert service",
		"from", cfg.FromAddress,
		"recipients", len(cfg.OpsRecipients),
		"apikey", logger.MaskSensitiveString(cfg.ResendAPIKey, 3, 2))
	client := resend.NewClient(cfg.ResendAPIKey)
	metrics := &AlertMetrics{
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderbot_alert_send_duration_seconds",
			Help:    "Time taken to send operator alerts",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		errorCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderbot_alert_errors_total",
			Help: "Total number of operator alert sending errors",
		}),
		sentCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderbot_alerts_sent_total",
			Help: "Total number of operator alerts sent",
		}),
	}

	reg.MustRegister(metrics.sendLatency)
	reg.MustRegister(metrics.errorCount)
	reg.MustRegister(metrics.sentCount)

	return &AlertService{
		config:  cfg,
		client:  client,
		metrics: metrics,
		tmpl:    template.Must(template.New("routing_failure").Parse(routingFailureTemplate)),
	}
}

type routingFailureData struct {
	SubmissionID string
	Submitter    string
	Origin       string
	Spreadsheet  string
	Worksheet    string
	Kind         string
	Detail       string
	EventName    string
	FinishedAt   string
}

// AlertRoutingFailure sends one alert for a RoutingFailed outcome. Outcomes of
// any other kind are ignored. Account credentials never reach the message.
func (s *AlertService) AlertRoutingFailure(ctx context.Context, outcome types.Outcome) error {
	appErr, ok := apperrors.As(outcome.Err)
	if !ok || appErr.Type != apperrors.RoutingFailedError {
		return nil
	}

	startTime := time.Now()
	log := logger.FromContext(ctx)
	defer func() {
		s.metrics.sendLatency.Observe(time.Since(startTime).Seconds())
	}()

	data := routingFailureData{
		SubmissionID: outcome.Submission.ID.String(),
		Submitter:    outcome.Submission.Submitter,
		Origin:       outcome.Submission.Origin,
		Kind:         appErr.Code,
		Detail:       appErr.Detail,
		EventName:    outcome.Record.Value(types.FieldEventName),
		FinishedAt:   outcome.FinishedAt.UTC().Format(time.RFC3339),
	}
	if outcome.Decision != nil {
		data.Spreadsheet = outcome.Decision.Spreadsheet
		data.Worksheet = outcome.Decision.Worksheet
	}

	var htmlContent bytes.Buffer
	if err := s.tmpl.Execute(&htmlContent, data); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to execute alert template", "error", err)
		return fmt.Errorf("failed to execute template: %w", err)
	}

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromAddress),
		To:      s.config.OpsRecipients,
		Subject: fmt.Sprintf("Order not logged: %s (%s)", data.Worksheet, data.Kind),
		Html:    htmlContent.String(),
	}

	if _, err := s.client.Emails.SendWithContext(ctx, params); err != nil {
		s.metrics.errorCount.Inc()
		log.Errorw("Failed to send routing alert",
			"error", err,
			"worksheet", data.Worksheet,
			"kind", data.Kind)
		return fmt.Errorf("alert send failed: %w", err)
	}

	s.metrics.sentCount.Inc()
	log.Infow("Routing alert sent",
		"recipients", len(s.config.OpsRecipients),
		"worksheet", data.Worksheet)
	return nil
}

const routingFailureTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Order not logged</title>
    <style>
        body { font-family: sans-serif; color: #333333; padding: 20px; }
        table { border-collapse: collapse; }
        td { padding: 4px 12px 4px 0; vertical-align: top; }
        td.label { color: #777777; }
    </style>
</head>
<body>
    <h2>An accepted order could not be written</h2>
    <table>
        <tr><td class="label">Submission</td><td>{{.SubmissionID}}</td></tr>
        <tr><td class="label">Submitter</td><td>{{.Submitter}}</td></tr>
        <tr><td class="label">Origin</td><td>{{.Origin}}</td></tr>
        <tr><td class="label">Destination</td><td>{{.Spreadsheet}} / {{.Worksheet}}</td></tr>
        <tr><td class="label">Event</td><td>{{.EventName}}</td></tr>
        <tr><td class="label">Failure</td><td>{{.Kind}}: {{.Detail}}</td></tr>
        <tr><td class="label">Finished</td><td>{{.FinishedAt}}</td></tr>
    </table>
    <p>The submitter was told the order was not logged.</p>
</body>
</html>`
