// Package db persists submission outcomes to PostgreSQL.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/types"
)

// Execer is satisfied by *pgxpool.Pool and pgxmock pools.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const insertOutcomeSQL = `
INSERT INTO submission_outcomes (
	submission_id, message_id, submitter, origin, state, aborted_at,
	error_type, error_kind, spreadsheet, worksheet, routing_rule, rule_matched,
	row_number, worksheet_fallback, date_fallback, images_skipped,
	task_id, task_skipped, submitted_at, finished_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (submission_id) DO NOTHING`

// OutcomeStore is an append-only ledger of terminal pipeline outcomes. It never
// stores extracted field values.
type OutcomeStore struct {
	db Execer
}

func NewOutcomeStore(db Execer) *OutcomeStore {
	return &OutcomeStore{db: db}
}

// Record inserts one row per submission. Re-recording the same submission is a no-op.
func (s *OutcomeStore) Record(ctx context.Context, outcome types.Outcome) error {
	sub := outcome.Submission

	var (
		errType, errKind             *string
		spreadsheet, worksheet, rule *string
		matched                      *bool
		rowNumber                    *int
		taskID, taskSkipped          *string
		abortedAt                    *string
	)
	if outcome.Err != nil {
		t := string(apperrors.TypeOf(outcome.Err))
		errType = &t
		if k := apperrors.KindOf(outcome.Err); k != "" {
			errKind = &k
		}
	}
	if outcome.AbortedAt != "" {
		a := string(outcome.AbortedAt)
		abortedAt = &a
	}
	if d := outcome.Decision; d != nil {
		spreadsheet, worksheet = &d.Spreadsheet, &d.Worksheet
		rule, matched = &d.Rule, &d.Matched
	}
	worksheetFallback, dateFallback := false, false
	if r := outcome.Row; r != nil {
		rowNumber = &r.RowNumber
		worksheet = &r.Worksheet
		worksheetFallback, dateFallback = r.WorksheetFallback, r.DateFallback
	}
	if outcome.Task.TaskID != "" {
		taskID = &outcome.Task.TaskID
	}
	if outcome.Task.Skipped != "" {
		taskSkipped = &outcome.Task.Skipped
	}

	finishedAt := outcome.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	_, err := s.db.Exec(ctx, insertOutcomeSQL,
		sub.ID, sub.MessageID, sub.Submitter, sub.Origin, string(outcome.State), abortedAt,
		errType, errKind, spreadsheet, worksheet, rule, matched,
		rowNumber, worksheetFallback, dateFallback, outcome.ImagesSkipped,
		taskID, taskSkipped, sub.CreatedAt, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for submission %s: %w", sub.ID, err)
	}
	return nil
}
