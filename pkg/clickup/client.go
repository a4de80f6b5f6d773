// Package clickup is a minimal ClickUp v2 REST client for creating list tasks.
package clickup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ticketdesk/orderbot/logger"
)

const DefaultBaseURL = "https://api.clickup.com/api/v2"

// ClientInterface defines the interface for ClickUp client operations
type ClientInterface interface {
	CreateTask(ctx context.Context, listID string, req TaskRequest) (*Task, error)
}

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// CustomField sets one custom field on a new task. Value is a number, string
// or option uuid depending on the field type.
type CustomField struct {
	ID    string      `json:"id"`
	Value interface{} `json:"value"`
}

type TaskRequest struct {
	Name         string        `json:"name"`
	Description  string        `json:"description,omitempty"`
	CustomFields []CustomField `json:"custom_fields,omitempty"`
}

type Task struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// APIError is the error body ClickUp returns with non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"err"`
	Code       string `json:"ECODE"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clickup API returned status %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

func NewClient(token, baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) CreateTask(ctx context.Context, listID string, taskReq TaskRequest) (*Task, error) {
	log := logger.FromContext(ctx)
	endpoint := fmt.Sprintf("%s/list/%s/task", c.baseURL, url.PathEscape(listID))

	body, err := json.Marshal(taskReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Errorw("Failed to create ClickUp request", "error", err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/json")

	log.Debugw("Executing ClickUp create task request", "listId", listID, "fields", len(taskReq.CustomFields))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Errorw("Failed to execute ClickUp HTTP request", "error", err)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		log.Warnw("ClickUp API returned non-OK status", "statusCode", resp.StatusCode, "ecode", apiErr.Code)
		return nil, apiErr
	}

	var task Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		log.Errorw("Failed to decode ClickUp response", "error", err)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	log.Debugw("ClickUp task created", "taskId", task.ID)
	return &task, nil
}
