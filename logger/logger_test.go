package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"regular", "buyer.account@gmail.com", "bu...t@gmail.com"},
		{"short local part", "ab@x.io", "**@x.io"},
		{"not an email", "nonsense-value", "no...ue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskEmail(tt.input))
		})
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "*****", MaskSecret("hunt2"))
	assert.Equal(t, "**********...", MaskSecret("correct-horse-battery"))
}

func TestMaskConnectionString(t *testing.T) {
	assert.Equal(t,
		"postgres://orderbot:***@db:5432/orders",
		MaskConnectionString("postgres://orderbot:s3cret@db:5432/orders"))
	assert.Equal(t,
		"host=db password=*** dbname=orders",
		MaskConnectionString("host=db password=s3cret dbname=orders"))
}

func TestSubmissionContext(t *testing.T) {
	ctx := WithSubmission(context.Background(), "sub-1", "tiyu321", "Main Guild")

	f, ok := SubmissionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "sub-1", f.SubmissionID)
	assert.Equal(t, "tiyu321", f.Submitter)
	assert.Equal(t, "Main Guild", f.Origin)

	_, ok = SubmissionFromContext(context.Background())
	assert.False(t, ok)
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, "", getErrorType(nil))
	assert.Equal(t, "errorString", getErrorType(errors.New("boom")))
}

func TestLogError_DoesNotPanic(t *testing.T) {
	IsTest = true
	ctx := WithSubmission(context.Background(), "sub-1", "tiyu321", "Main Guild")
	assert.NotPanics(t, func() {
		LogError(ctx, errors.New("boom"), "routing failed", map[string]interface{}{"worksheet": "Main"})
	})
}
