package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/pkg/clickup"
	"github.com/ticketdesk/orderbot/types"
)

type mockClickUp struct {
	mock.Mock
}

func (m *mockClickUp) CreateTask(ctx context.Context, listID string, req clickup.TaskRequest) (*clickup.Task, error) {
	args := m.Called(ctx, listID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clickup.Task), args.Error(1)
}

func testClickUpConfig() config.ClickUpConfig {
	return config.ClickUpConfig{
		Enabled:         true,
		ListID:          "901",
		DateFieldID:     "date-field",
		QuantityFieldID: "qty-field",
		TeamFieldID:     "team-field",
		TimeoutSeconds:  5,
	}
}

func TestTaskService_CreateOrderTask(t *testing.T) {
	client := &mockClickUp{}
	svc := NewTaskService(client, testClickUpConfig())

	submitted := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	client.On("CreateTask", mock.Anything, "901", clickup.TaskRequest{
		Name: "tiyu321",
		CustomFields: []clickup.CustomField{
			{ID: "date-field", Value: time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC).UnixMilli()},
			{ID: "qty-field", Value: 4},
			{ID: "team-field", Value: "329713f4-d3f1-44a0-a32b-04ec697d9ba4"},
		},
	}).Return(&clickup.Task{ID: "86abc"}, nil).Once()

	id, err := svc.CreateOrderTask(context.Background(), types.TaskInput{
		SubmissionID:  "sub-1",
		Submitter:     "tiyu321",
		TeamTag:       "Tiyu",
		TeamRoutingID: "329713f4-d3f1-44a0-a32b-04ec697d9ba4",
		SubmittedAt:   submitted,
		Quantity:      4,
	})

	require.NoError(t, err)
	assert.Equal(t, "86abc", id)
	client.AssertExpectations(t)
}

func TestTaskService_Errors(t *testing.T) {
	client := &mockClickUp{}
	svc := NewTaskService(client, testClickUpConfig())

	_, err := svc.CreateOrderTask(context.Background(), types.TaskInput{Submitter: "x", TeamTag: "Hopey"})
	assert.ErrorContains(t, err, "no routing id")
	client.AssertNotCalled(t, "CreateTask", mock.Anything, mock.Anything, mock.Anything)

	client.On("CreateTask", mock.Anything, "901", mock.Anything).
		Return(nil, &clickup.APIError{StatusCode: 401, Message: "Token invalid", Code: "OAUTH_025"}).Once()
	_, err = svc.CreateOrderTask(context.Background(), types.TaskInput{Submitter: "x", TeamRoutingID: "id"})
	var apiErr *clickup.APIError
	assert.ErrorAs(t, err, &apiErr)
}
