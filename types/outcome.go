package types

import "time"

// PipelineState is a state of one submission's pipeline run.
type PipelineState string

const (
	StateReceived   PipelineState = "RECEIVED"
	StateFusing     PipelineState = "FUSING"
	StateExtracting PipelineState = "EXTRACTING"
	StateValidating PipelineState = "VALIDATING"
	StateRouting    PipelineState = "ROUTING"
	StateNotifying  PipelineState = "NOTIFYING"
	StateDone       PipelineState = "DONE"
	StateAborted    PipelineState = "ABORTED"
)

// RoutingDecision is the resolved destination for a submission. It is derived
// from origin alone and recomputed per submission.
type RoutingDecision struct {
	Spreadsheet string
	Worksheet   string
	// Matched is false when no origin rule applied and the default worksheet was chosen.
	Matched bool
	Rule    string
	Schema  RowSchema
}

// RowSchema is the fixed, versioned column order of a worksheet.
type RowSchema struct {
	Version int      `yaml:"version"`
	Columns []string `yaml:"columns"`
}

// RowWritten describes a successful append.
type RowWritten struct {
	Spreadsheet   string
	Worksheet     string
	RowNumber     int
	SchemaVersion int
	// Columns are the schema column ids, parallel to Values.
	Columns []string
	Values  []interface{}
	// WorksheetFallback is set when the decision's worksheet was missing and the default was used.
	WorksheetFallback bool
	// DateFallback is set when the event date could not be parsed and the routing time was used.
	DateFallback bool
}

// TaskResult records what happened with the optional task-tracker write.
type TaskResult struct {
	Attempted bool
	TaskID    string
	Skipped   string
	Err       error
}

// TaskInput carries what the task tracker needs for one accepted order.
type TaskInput struct {
	SubmissionID  string
	Submitter     string
	TeamTag       string
	TeamRoutingID string
	SubmittedAt   time.Time
	Quantity      int
}

// Outcome is the single terminal result of a pipeline run.
type Outcome struct {
	Submission    Submission
	State         PipelineState
	AbortedAt     PipelineState
	Err           error
	Record        *OrderRecord
	Decision      *RoutingDecision
	Row           *RowWritten
	Task          TaskResult
	ImagesSkipped int
	FinishedAt    time.Time
}

// Accepted reports whether the record was durably written.
func (o Outcome) Accepted() bool {
	return o.Err == nil && o.Row != nil
}
