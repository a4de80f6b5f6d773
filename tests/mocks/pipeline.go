package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/ticketdesk/orderbot/pkg/sheets"
	"github.com/ticketdesk/orderbot/types"
)

type MockAttachmentFetcher struct {
	mock.Mock
}

func (m *MockAttachmentFetcher) Fetch(ctx context.Context, att types.Attachment) (*types.LocalAttachment, error) {
	args := m.Called(ctx, att)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.LocalAttachment), args.Error(1)
}

type MockTextRecognizer struct {
	mock.Mock
}

func (m *MockTextRecognizer) Recognize(ctx context.Context, image *types.LocalAttachment) (string, error) {
	args := m.Called(ctx, image)
	return args.String(0), args.Error(1)
}

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, input types.FusedInput) (*types.OrderRecord, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.OrderRecord), args.Error(1)
}

type MockSpreadsheetStore struct {
	mock.Mock
}

func (m *MockSpreadsheetStore) Worksheet(ctx context.Context, ref sheets.Ref, title string) (sheets.Worksheet, error) {
	args := m.Called(ctx, ref, title)
	return args.Get(0).(sheets.Worksheet), args.Error(1)
}

func (m *MockSpreadsheetStore) AppendRow(ctx context.Context, ws sheets.Worksheet, values []interface{}) (int, error) {
	args := m.Called(ctx, ws, values)
	return args.Int(0), args.Error(1)
}

func (m *MockSpreadsheetStore) FormatDateColumns(ctx context.Context, ws sheets.Worksheet, row int, columns []int) error {
	args := m.Called(ctx, ws, row, columns)
	return args.Error(0)
}

type MockTaskCreator struct {
	mock.Mock
}

func (m *MockTaskCreator) CreateOrderTask(ctx context.Context, input types.TaskInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, outcome types.Outcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

type MockOutcomeRecorder struct {
	mock.Mock
}

func (m *MockOutcomeRecorder) Record(ctx context.Context, outcome types.Outcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) AlertRoutingFailure(ctx context.Context, outcome types.Outcome) error {
	args := m.Called(ctx, outcome)
	return args.Error(0)
}

// MockMetrics records pipeline telemetry calls. Unexpected calls are allowed.
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) ObserveStage(stage types.PipelineState, d time.Duration) {
	m.Called(stage, d)
}

func (m *MockMetrics) SubmissionFinished(outcome, reason string) {
	m.Called(outcome, reason)
}

func (m *MockMetrics) WorksheetFallback(cause string) {
	m.Called(cause)
}

func (m *MockMetrics) DateFallback() {
	m.Called()
}

func (m *MockMetrics) OCRFragment(result string) {
	m.Called(result)
}

// NewPermissiveMetrics returns a MockMetrics accepting any call.
func NewPermissiveMetrics() *MockMetrics {
	m := &MockMetrics{}
	m.On("ObserveStage", mock.Anything, mock.Anything).Maybe()
	m.On("SubmissionFinished", mock.Anything, mock.Anything).Maybe()
	m.On("WorksheetFallback", mock.Anything).Maybe()
	m.On("DateFallback").Maybe()
	m.On("OCRFragment", mock.Anything).Maybe()
	return m
}
