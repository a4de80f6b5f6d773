package order

import (
	"context"
	"time"

	"github.com/ticketdesk/orderbot/pkg/sheets"
	"github.com/ticketdesk/orderbot/types"
)

// Collaborators of the submission pipeline. Implementations live in services/,
// pkg/ and handlers/.

type AttachmentFetcher interface {
	Fetch(ctx context.Context, att types.Attachment) (*types.LocalAttachment, error)
}

type TextRecognizer interface {
	Recognize(ctx context.Context, image *types.LocalAttachment) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, input types.FusedInput) (*types.OrderRecord, error)
}

type SpreadsheetStore interface {
	Worksheet(ctx context.Context, ref sheets.Ref, title string) (sheets.Worksheet, error)
	AppendRow(ctx context.Context, ws sheets.Worksheet, values []interface{}) (int, error)
	FormatDateColumns(ctx context.Context, ws sheets.Worksheet, row int, columns []int) error
}

type TaskCreator interface {
	CreateOrderTask(ctx context.Context, input types.TaskInput) (string, error)
}

type Notifier interface {
	Notify(ctx context.Context, outcome types.Outcome) error
}

type OutcomeRecorder interface {
	Record(ctx context.Context, outcome types.Outcome) error
}

type Alerter interface {
	AlertRoutingFailure(ctx context.Context, outcome types.Outcome) error
}

// Metrics receives pipeline telemetry.
type Metrics interface {
	ObserveStage(stage types.PipelineState, d time.Duration)
	SubmissionFinished(outcome, reason string)
	WorksheetFallback(cause string)
	DateFallback()
	OCRFragment(result string)
}

// NopMetrics discards all telemetry.
type NopMetrics struct{}

func (NopMetrics) ObserveStage(types.PipelineState, time.Duration) {}
func (NopMetrics) SubmissionFinished(string, string)               {}
func (NopMetrics) WorksheetFallback(string)                        {}
func (NopMetrics) DateFallback()                                   {}
func (NopMetrics) OCRFragment(string)                              {}
