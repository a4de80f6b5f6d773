package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/types"
)

func createMockPool(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func testSubmission() types.Submission {
	return types.Submission{
		ID:        uuid.MustParse("6f1c7a52-8d4e-4c4b-9b7e-0b2d5c3e8a11"),
		MessageID: "1190",
		Submitter: "tiyu321",
		Origin:    "Resale Hub",
		CreatedAt: time.Date(2024, 5, 3, 14, 0, 0, 0, time.UTC),
	}
}

func TestOutcomeStore_RecordAccepted(t *testing.T) {
	mock := createMockPool(t)
	store := NewOutcomeStore(mock)

	finished := time.Date(2024, 5, 3, 14, 0, 5, 0, time.UTC)
	outcome := types.Outcome{
		Submission: testSubmission(),
		State:      types.StateDone,
		Decision:   &types.RoutingDecision{Spreadsheet: "sheet-1", Worksheet: "Resale", Matched: true, Rule: "resale"},
		Row:        &types.RowWritten{Worksheet: "Resale", RowNumber: 42, DateFallback: true},
		Task:       types.TaskResult{Attempted: true, TaskID: "86abc"},
		FinishedAt: finished,
	}

	mock.ExpectExec("INSERT INTO submission_outcomes").
		WithArgs(
			outcome.Submission.ID, "1190", "tiyu321", "Resale Hub", "DONE", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), false, true, 0,
			pgxmock.AnyArg(), pgxmock.AnyArg(), outcome.Submission.CreatedAt, finished,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Record(context.Background(), outcome))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeStore_RecordAborted(t *testing.T) {
	mock := createMockPool(t)
	store := NewOutcomeStore(mock)

	outcome := types.Outcome{
		Submission:    testSubmission(),
		State:         types.StateAborted,
		AbortedAt:     types.StateValidating,
		Err:           apperrors.TooIncomplete([]string{"event_name", "section", "price", "quantity"}),
		ImagesSkipped: 1,
		FinishedAt:    time.Now(),
	}

	mock.ExpectExec("INSERT INTO submission_outcomes").
		WithArgs(
			outcome.Submission.ID, "1190", "tiyu321", "Resale Hub", "ABORTED", pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), false, false, 1,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Record(context.Background(), outcome))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutcomeStore_RecordError(t *testing.T) {
	mock := createMockPool(t)
	store := NewOutcomeStore(mock)

	mock.ExpectExec("INSERT INTO submission_outcomes").
		WillReturnError(errors.New("connection reset"))

	err := store.Record(context.Background(), types.Outcome{Submission: testSubmission(), State: types.StateDone})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "6f1c7a52-8d4e-4c4b-9b7e-0b2d5c3e8a11")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertToPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost/db", convertToPgx5URL("postgres://u:p@localhost/db"))
	assert.Equal(t, "pgx5://u:p@localhost/db", convertToPgx5URL("postgresql://u:p@localhost/db"))
	assert.Equal(t, "pgx5://already", convertToPgx5URL("pgx5://already"))
}
