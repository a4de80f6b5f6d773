package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ticketdesk/orderbot/config"
	"github.com/ticketdesk/orderbot/logger"
	"github.com/ticketdesk/orderbot/pkg/clickup"
	"github.com/ticketdesk/orderbot/types"
)

// TaskService records accepted orders on the buying team's ClickUp list.
type TaskService struct {
	client  clickup.ClientInterface
	cfg     config.ClickUpConfig
	timeout time.Duration
}

func NewTaskService(client clickup.ClientInterface, cfg config.ClickUpConfig) *TaskService {
	return &TaskService{
		client:  client,
		cfg:     cfg,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// CreateOrderTask creates one task named after the submitter with the
// screenshot date, ticket quantity and buying team custom fields.
func (s *TaskService) CreateOrderTask(ctx context.Context, in types.TaskInput) (string, error) {
	if in.TeamRoutingID == "" {
		return "", fmt.Errorf("team %q has no routing id", in.TeamTag)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	task, err := s.client.CreateTask(ctx, s.cfg.ListID, clickup.TaskRequest{
		Name: in.Submitter,
		CustomFields: []clickup.CustomField{
			{ID: s.cfg.DateFieldID, Value: screenshotDateMillis(in.SubmittedAt)},
			{ID: s.cfg.QuantityFieldID, Value: in.Quantity},
			{ID: s.cfg.TeamFieldID, Value: in.TeamRoutingID},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	logger.FromContext(ctx).Infow("Order task created", "taskId", task.ID, "team", in.TeamTag)
	return task.ID, nil
}

// screenshotDateMillis is midnight of t's calendar day in t's location.
func screenshotDateMillis(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).UnixMilli()
}
