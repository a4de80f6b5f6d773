package clickup

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_CreateTask(t *testing.T) {
	var got TaskRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/list/901/task", r.URL.Path)
		assert.Equal(t, "pk_test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"86abc","name":"tiyu321","url":"https://app.clickup.com/t/86abc"}`))
	}))
	defer srv.Close()

	client := NewClient("pk_test", srv.URL+"/api/v2/", nil)
	task, err := client.CreateTask(context.Background(), "901", TaskRequest{
		Name: "tiyu321",
		CustomFields: []CustomField{
			{ID: "date-field", Value: int64(1773446400000)},
			{ID: "qty-field", Value: 4},
			{ID: "team-field", Value: "329713f4-d3f1-44a0-a32b-04ec697d9ba4"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "86abc", task.ID)
	assert.Equal(t, "tiyu321", got.Name)
	require.Len(t, got.CustomFields, 3)
	assert.Equal(t, "date-field", got.CustomFields[0].ID)
	assert.EqualValues(t, 1773446400000, got.CustomFields[0].Value)
	assert.EqualValues(t, 4, got.CustomFields[1].Value)
	assert.Equal(t, "329713f4-d3f1-44a0-a32b-04ec697d9ba4", got.CustomFields[2].Value)
}

func TestClient_CreateTaskErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantCode    string
	}{
		{
			name:        "clickup error body",
			status:      http.StatusBadRequest,
			body:        `{"err":"Custom field value invalid","ECODE":"FIELD_012"}`,
			wantMessage: "Custom field value invalid",
			wantCode:    "FIELD_012",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			body:        "upstream unavailable",
			wantMessage: "upstream unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("pk_test", srv.URL, nil).CreateTask(context.Background(), "901", TaskRequest{Name: "x"})

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}
