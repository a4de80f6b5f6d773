package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Complete(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  {\"Venue\": \"Moda Center\"}\n"}}]}`))
	}))
	defer srv.Close()

	client := NewClient("sk-test", WithBaseURL(srv.URL+"/v1/"))
	out, err := client.Complete(context.Background(), ChatRequest{
		Model:       "gpt-4o",
		Temperature: 0.1,
		MaxTokens:   1000,
		Messages: []Message{
			TextMessage(RoleSystem, "You are a helpful assistant."),
			TextMessage(RoleUser, "extract"),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, `{"Venue": "Moda Center"}`, out)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "extract", got.Messages[1].Content)
}

func TestClient_CompleteErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "non-2xx",
			status: http.StatusServiceUnavailable,
			body:   `{"error":{"message":"overloaded"}}`,
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
				assert.Contains(t, se.Body, "overloaded")
			},
		},
		{
			name:   "empty choices",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoChoices)
			},
		},
		{
			name:   "error payload",
			status: http.StatusOK,
			body:   `{"error":{"message":"bad key"}}`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "bad key")
			},
		},
		{
			name:   "invalid json",
			status: http.StatusOK,
			body:   `<html>`,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "failed to parse response")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("sk-test", WithBaseURL(srv.URL)).Complete(context.Background(), ChatRequest{Model: "m"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_MissingKey(t *testing.T) {
	_, err := NewClient("").Complete(context.Background(), ChatRequest{})
	assert.EqualError(t, err, "API key not configured")
}

func TestVisionMessage(t *testing.T) {
	msg := VisionMessage("read this", "image/png", []byte("png-bytes"))
	parts, ok := msg.Content.([]ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "read this", parts[0].Text)
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/png;base64,"))
	assert.Equal(t, "high", parts[1].ImageURL.Detail)
}
