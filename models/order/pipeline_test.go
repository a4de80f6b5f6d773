package order

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	apperrors "github.com/ticketdesk/orderbot/errors"
	"github.com/ticketdesk/orderbot/tests/mocks"
	"github.com/ticketdesk/orderbot/types"
)

type pipelineFixture struct {
	fetcher    *mocks.MockAttachmentFetcher
	recognizer *mocks.MockTextRecognizer
	extractor  *mocks.MockExtractor
	store      *mocks.MockSpreadsheetStore
	tasks      *mocks.MockTaskCreator
	notifier   *mocks.MockNotifier
	ledger     *mocks.MockOutcomeRecorder
	alerter    *mocks.MockAlerter
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T, maxMissing int) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		fetcher:    &mocks.MockAttachmentFetcher{},
		recognizer: &mocks.MockTextRecognizer{},
		extractor:  &mocks.MockExtractor{},
		store:      &mocks.MockSpreadsheetStore{},
		tasks:      &mocks.MockTaskCreator{},
		notifier:   &mocks.MockNotifier{},
		ledger:     &mocks.MockOutcomeRecorder{},
		alerter:    &mocks.MockAlerter{},
	}
	metrics := mocks.NewPermissiveMetrics()
	mapper := NewFieldMapper(testTables(t), metrics)
	router := NewRouter(f.store, mapper, metrics, WithClock(func() time.Time { return fixedNow }))

	f.pipeline = NewPipeline(Deps{
		Fetcher:       f.fetcher,
		Recognizer:    f.recognizer,
		Extractor:     f.extractor,
		Validator:     NewValidator(types.DefaultRequiredFields, maxMissing),
		Mapper:        mapper,
		Router:        router,
		Tasks:         f.tasks,
		Notifier:      f.notifier,
		Ledger:        f.ledger,
		Alerter:       f.alerter,
		Metrics:       metrics,
		Clock:         func() time.Time { return fixedNow },
		NotifyTimeout: time.Second,
	})
	f.ledger.On("Record", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func (f *pipelineFixture) expectSheet1Append(row int) *[]interface{} {
	var appended []interface{}
	f.store.On("Worksheet", mock.Anything, byName, "Sheet1").Return(sheet1, nil)
	f.store.On("AppendRow", mock.Anything, sheet1, mock.Anything).
		Run(func(args mock.Arguments) { appended = args.Get(2).([]interface{}) }).
		Return(row, nil)
	f.store.On("FormatDateColumns", mock.Anything, sheet1, row, mock.Anything).Return(nil)
	return &appended
}

func (f *pipelineFixture) assertNoExternalCalls(t *testing.T) {
	t.Helper()
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	f.recognizer.AssertNotCalled(t, "Recognize", mock.Anything, mock.Anything)
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "Worksheet", mock.Anything, mock.Anything, mock.Anything)
	f.store.AssertNotCalled(t, "AppendRow", mock.Anything, mock.Anything, mock.Anything)
	f.tasks.AssertNotCalled(t, "CreateOrderTask", mock.Anything, mock.Anything)
}

func tempImage(t *testing.T, att types.Attachment) *types.LocalAttachment {
	t.Helper()
	path := filepath.Join(t.TempDir(), att.Filename)
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n"), 0o600))
	return types.NewLocalAttachment(att, path, "image/png", 8)
}

func TestPipeline_EmptySubmission(t *testing.T) {
	f := newPipelineFixture(t, 3)
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(o types.Outcome) bool {
		return o.State == types.StateAborted && apperrors.IsType(o.Err, apperrors.EmptyInputError)
	})).Return(nil).Once()

	sub := types.NewSubmission("m1", "c1", "tiyu321", "Ticket Buyers", "   ", nil, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	assert.Equal(t, types.StateAborted, out.State)
	assert.Equal(t, types.StateReceived, out.AbortedAt)
	assert.True(t, apperrors.IsType(out.Err, apperrors.EmptyInputError))
	f.assertNoExternalCalls(t)
	f.notifier.AssertExpectations(t)
}

func TestPipeline_ImageOnlySubmission(t *testing.T) {
	f := newPipelineFixture(t, 3)

	imgA := types.Attachment{URL: "https://cdn.example/imgA.png", Filename: "imgA.png", ContentType: "image/png"}
	local := tempImage(t, imgA)
	f.fetcher.On("Fetch", mock.Anything, imgA).Return(local, nil)
	f.recognizer.On("Recognize", mock.Anything, local).Return("qty 4 ... $120", nil)
	f.extractor.On("Extract", mock.Anything, types.FusedInput{RawText: "", OCRFragments: []string{"qty 4 ... $120"}}).
		Return(fullRecord(), nil)
	appended := f.expectSheet1Append(7)
	f.tasks.On("CreateOrderTask", mock.Anything, mock.MatchedBy(func(in types.TaskInput) bool {
		return in.TeamTag == "Tiyu" && in.Quantity == 4 && in.Submitter == "tiyu321"
	})).Return("task-1", nil)
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(o types.Outcome) bool { return o.Accepted() })).Return(nil).Once()

	sub := types.NewSubmission("m2", "c1", "tiyu321", "Ticket Buyers", "", []types.Attachment{imgA}, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	require.NoError(t, out.Err)
	assert.Equal(t, types.StateDone, out.State)
	assert.True(t, out.Accepted())
	assert.Equal(t, 7, out.Row.RowNumber)
	assert.Equal(t, "task-1", out.Task.TaskID)

	row := *appended
	require.Len(t, row, 10)
	assert.Equal(t, 4, row[8], "quantity column is an integer")
	assert.Equal(t, "$120", row[9], "price column keeps the extracted string")

	_, err := os.Stat(local.Path)
	assert.True(t, os.IsNotExist(err), "downloaded image is deleted")
	f.notifier.AssertExpectations(t)
	f.ledger.AssertCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestPipeline_NotAnOrder(t *testing.T) {
	f := newPipelineFixture(t, 3)
	f.extractor.On("Extract", mock.Anything, mock.Anything).
		Return(nil, apperrors.ExtractionFailed(apperrors.KindNotAnOrder, "sentinel returned", nil))
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	sub := types.NewSubmission("m3", "c1", "tiyu321", "Ticket Buyers", "gm everyone", nil, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	assert.Equal(t, types.StateAborted, out.State)
	assert.Equal(t, types.StateExtracting, out.AbortedAt)
	assert.True(t, apperrors.IsKind(out.Err, apperrors.ExtractionFailedError, apperrors.KindNotAnOrder))
	assert.Nil(t, out.Row)
	f.store.AssertNotCalled(t, "AppendRow", mock.Anything, mock.Anything, mock.Anything)
	f.tasks.AssertNotCalled(t, "CreateOrderTask", mock.Anything, mock.Anything)
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestPipeline_ForeignExtractorErrorIsServiceUnavailable(t *testing.T) {
	f := newPipelineFixture(t, 3)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	sub := types.NewSubmission("m4", "c1", "tiyu321", "Ticket Buyers", "order text", nil, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)
	assert.True(t, apperrors.IsKind(out.Err, apperrors.ExtractionFailedError, apperrors.KindServiceUnavailable))
}

func TestPipeline_TooIncomplete(t *testing.T) {
	f := newPipelineFixture(t, 3)
	rec := fullRecord()
	rec.AccountEmail, rec.EventDate, rec.Location, rec.TotalPrice = nil, nil, nil, nil
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(rec, nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	sub := types.NewSubmission("m5", "c1", "tiyu321", "Ticket Buyers", "Foo Fest x4", nil, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	assert.Equal(t, types.StateValidating, out.AbortedAt)
	appErr, ok := apperrors.As(out.Err)
	require.True(t, ok)
	assert.Equal(t, apperrors.TooIncompleteError, appErr.Type)
	assert.Equal(t, []string{"Account Email", "Event Date", "Location", "Total Price"}, appErr.Missing)
	f.store.AssertNotCalled(t, "Worksheet", mock.Anything, mock.Anything, mock.Anything)
}

func TestPipeline_OCRFailuresAreSoft(t *testing.T) {
	f := newPipelineFixture(t, 3)

	bad := types.Attachment{URL: "https://cdn.example/bad.png", Filename: "bad.png", ContentType: "image/png"}
	good := types.Attachment{URL: "https://cdn.example/good.jpg", Filename: "good.jpg", ContentType: "image/jpeg"}
	pdf := types.Attachment{URL: "https://cdn.example/receipt.pdf", Filename: "receipt.pdf", ContentType: "application/pdf"}
	unreadable := types.Attachment{URL: "https://cdn.example/blur.png", Filename: "blur.png", ContentType: "image/png"}
	goodLocal := tempImage(t, good)
	blurLocal := tempImage(t, unreadable)

	f.fetcher.On("Fetch", mock.Anything, bad).Return(nil, fmt.Errorf("status 403"))
	f.fetcher.On("Fetch", mock.Anything, good).Return(goodLocal, nil)
	f.fetcher.On("Fetch", mock.Anything, unreadable).Return(blurLocal, nil)
	f.recognizer.On("Recognize", mock.Anything, goodLocal).Return("Foo Fest 4 tickets", nil)
	f.recognizer.On("Recognize", mock.Anything, blurLocal).Return("", fmt.Errorf("no text recognised"))
	f.extractor.On("Extract", mock.Anything, types.FusedInput{RawText: "qty 4", OCRFragments: []string{"Foo Fest 4 tickets"}}).
		Return(fullRecord(), nil)
	f.expectSheet1Append(3)
	f.tasks.On("CreateOrderTask", mock.Anything, mock.Anything).Return("task-2", nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	sub := types.NewSubmission("m6", "c1", "tiyu321", "Ticket Buyers", "qty 4", []types.Attachment{bad, pdf, good, unreadable}, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.ImagesSkipped)
	f.fetcher.AssertNotCalled(t, "Fetch", mock.Anything, pdf)
	for _, local := range []*types.LocalAttachment{goodLocal, blurLocal} {
		_, err := os.Stat(local.Path)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestPipeline_AllImagesFailIsEmptyInput(t *testing.T) {
	f := newPipelineFixture(t, 3)
	img := types.Attachment{URL: "https://cdn.example/a.png", Filename: "a.png", ContentType: "image/png"}
	f.fetcher.On("Fetch", mock.Anything, img).Return(nil, fmt.Errorf("timeout"))
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	sub := types.NewSubmission("m7", "c1", "tiyu321", "Ticket Buyers", "", []types.Attachment{img}, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	assert.Equal(t, types.StateFusing, out.AbortedAt)
	assert.True(t, apperrors.IsType(out.Err, apperrors.EmptyInputError))
	f.extractor.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything)
}

func TestPipeline_RoutingFailureAlerts(t *testing.T) {
	f := newPipelineFixture(t, 3)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(fullRecord(), nil)
	f.store.On("Worksheet", mock.Anything, byName, "Sheet1").Return(sheet1, nil)
	f.store.On("AppendRow", mock.Anything, sheet1, mock.Anything).Return(0, fmt.Errorf("backend error"))
	f.alerter.On("AlertRoutingFailure", mock.Anything, mock.Anything).Return(fmt.Errorf("mail down"))
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	sub := types.NewSubmission("m8", "c1", "tiyu321", "Ticket Buyers", "order", nil, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	assert.Equal(t, types.StateRouting, out.AbortedAt)
	assert.True(t, apperrors.IsKind(out.Err, apperrors.RoutingFailedError, apperrors.KindServiceError))
	f.alerter.AssertNumberOfCalls(t, "AlertRoutingFailure", 1)
	f.tasks.AssertNotCalled(t, "CreateOrderTask", mock.Anything, mock.Anything)
}

func TestPipeline_NotificationFailureIsSwallowed(t *testing.T) {
	f := newPipelineFixture(t, 3)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(fullRecord(), nil)
	f.expectSheet1Append(11)
	f.tasks.On("CreateOrderTask", mock.Anything, mock.Anything).Return("", fmt.Errorf("clickup 500"))
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(fmt.Errorf("discord unavailable"))

	sub := types.NewSubmission("m9", "c1", "tiyu321", "Ticket Buyers", "order", nil, testSub.CreatedAt)
	out := f.pipeline.Run(context.Background(), sub)

	assert.Equal(t, types.StateDone, out.State)
	assert.NoError(t, out.Err)
	assert.True(t, out.Task.Attempted)
	assert.Error(t, out.Task.Err)
	assert.Equal(t, 11, out.Row.RowNumber)
}

func TestPipeline_TaskSkippedForUnknownTeams(t *testing.T) {
	tests := []struct {
		submitter string
		skipped   string
	}{
		{submitter: "stranger", skipped: "team_not_found"},
		{submitter: "stephaniemaem", skipped: "team_unroutable"},
	}

	for _, tt := range tests {
		t.Run(tt.submitter, func(t *testing.T) {
			f := newPipelineFixture(t, 3)
			f.extractor.On("Extract", mock.Anything, mock.Anything).Return(fullRecord(), nil)
			f.expectSheet1Append(4)
			f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

			sub := types.NewSubmission("m10", "c1", tt.submitter, "Ticket Buyers", "order", nil, testSub.CreatedAt)
			out := f.pipeline.Run(context.Background(), sub)

			assert.Equal(t, types.StateDone, out.State)
			assert.False(t, out.Task.Attempted)
			assert.Equal(t, tt.skipped, out.Task.Skipped)
			f.tasks.AssertNotCalled(t, "CreateOrderTask", mock.Anything, mock.Anything)
		})
	}
}

func TestPipeline_ConcurrentRunsAreIndependent(t *testing.T) {
	f := newPipelineFixture(t, 3)
	f.extractor.On("Extract", mock.Anything, mock.Anything).Return(fullRecord(), nil)
	f.store.On("Worksheet", mock.Anything, byName, "Sheet1").Return(sheet1, nil)
	f.store.On("AppendRow", mock.Anything, sheet1, mock.Anything).Return(2, nil)
	f.store.On("FormatDateColumns", mock.Anything, sheet1, 2, mock.Anything).Return(nil)
	f.tasks.On("CreateOrderTask", mock.Anything, mock.Anything).Return("task", nil)
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	const runs = 8
	results := make(chan types.Outcome, runs)
	for i := 0; i < runs; i++ {
		go func(i int) {
			sub := types.NewSubmission(fmt.Sprintf("m-%d", i), "c1", "tiyu321", "Ticket Buyers", "order", nil, testSub.CreatedAt)
			results <- f.pipeline.Run(context.Background(), sub)
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < runs; i++ {
		out := <-results
		assert.Equal(t, types.StateDone, out.State)
		seen[out.Submission.ID.String()] = true
	}
	assert.Len(t, seen, runs)
	f.notifier.AssertNumberOfCalls(t, "Notify", runs)
}
