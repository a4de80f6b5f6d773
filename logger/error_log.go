package logger

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type submissionKey struct{}

// SubmissionFields identifies the submission a log line belongs to.
type SubmissionFields struct {
	SubmissionID string
	Submitter    string
	Origin       string
}

// WithSubmission returns a context carrying the submission identity for LogError
// and FromContext.
func WithSubmission(ctx context.Context, submissionID, submitter, origin string) context.Context {
	return context.WithValue(ctx, submissionKey{}, SubmissionFields{
		SubmissionID: submissionID,
		Submitter:    submitter,
		Origin:       origin,
	})
}

// SubmissionFromContext returns the submission identity stored by WithSubmission.
func SubmissionFromContext(ctx context.Context) (SubmissionFields, bool) {
	if ctx == nil {
		return SubmissionFields{}, false
	}
	f, ok := ctx.Value(submissionKey{}).(SubmissionFields)
	return f, ok
}

// FromContext returns the global logger enriched with the submission fields
// carried by ctx, if any.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	log := GetLogger()
	if f, ok := SubmissionFromContext(ctx); ok {
		return log.With(
			"submissionId", f.SubmissionID,
			"submitter", f.Submitter,
			"origin", f.Origin,
		)
	}
	return log
}

// LogError logs a detailed error with the submission context and metadata.
func LogError(ctx context.Context, err error, message string, metadata map[string]interface{}) {
	log := GetLogger()

	fields := []zap.Field{
		zap.Error(err),
		zap.String("error_type", getErrorType(err)),
	}

	if f, ok := SubmissionFromContext(ctx); ok {
		fields = append(fields,
			zap.String("submissionId", f.SubmissionID),
			zap.String("submitter", f.Submitter),
			zap.String("origin", f.Origin),
		)
	}

	// Stack traces are skipped in production; the frames above are this function and its caller.
	if os.Getenv("ENVIRONMENT") != "production" {
		fields = append(fields, zap.String("stack_trace", getStackTrace(3)))
	}

	for k, v := range metadata {
		fields = append(fields, zap.Any(k, v))
	}

	log.Desugar().Error(message, fields...)
}

// getErrorType returns the Go type name of err without its package path.
func getErrorType(err error) string {
	if err == nil {
		return ""
	}
	errType := fmt.Sprintf("%T", err)
	parts := strings.Split(errType, ".")
	return parts[len(parts)-1]
}

// getStackTrace captures a stack trace starting from the specified skip level
func getStackTrace(skip int) string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var builder strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "runtime.") {
			builder.WriteString(frame.Function)
			builder.WriteString("\n\t")
			builder.WriteString(frame.File)
			builder.WriteString(":")
			builder.WriteString(strconv.Itoa(frame.Line))
			builder.WriteString("\n")
		}
		if !more {
			break
		}
	}

	return builder.String()
}
