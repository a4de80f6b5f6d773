// Package errors defines the application error taxonomy for the order pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type ErrorType string

const (
	EmptyInputError         ErrorType = "EMPTY_INPUT"
	ExtractionFailedError   ErrorType = "EXTRACTION_FAILED"
	TooIncompleteError      ErrorType = "TOO_INCOMPLETE"
	RoutingFailedError      ErrorType = "ROUTING_FAILED"
	NotificationFailedError ErrorType = "NOTIFICATION_FAILED"
	ValidationError         ErrorType = "VALIDATION_ERROR"
	ServerError             ErrorType = "SERVER_ERROR"
)

// Kind codes refine ExtractionFailed and RoutingFailed.
const (
	KindNotAnOrder         = "NOT_AN_ORDER"
	KindMalformedResponse  = "MALFORMED_RESPONSE"
	KindServiceUnavailable = "SERVICE_UNAVAILABLE"
	KindNotFound           = "NOT_FOUND"
	KindServiceError       = "SERVICE_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	// Missing lists the required fields absent from a TooIncomplete record.
	Missing []string `json:"missing,omitempty"`
	Raw     error    `json:"-"`
}

func (e *AppError) Error() string {
	head := string(e.Type)
	if e.Code != "" {
		head = fmt.Sprintf("%s(%s)", e.Type, e.Code)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", head, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", head, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Raw
}

// UserMessage is the terse text shown to the submitter. It never includes
// service detail.
func (e *AppError) UserMessage() string {
	switch e.Type {
	case EmptyInputError:
		return "Please provide order details or attach an image."
	case ExtractionFailedError:
		switch e.Code {
		case KindNotAnOrder:
			return "That doesn't look like an order. Nothing was logged."
		case KindMalformedResponse:
			return "Couldn't read the order details. Please try again or type them out."
		default:
			return "The extraction service is unavailable right now. Please try again later."
		}
	case TooIncompleteError:
		return fmt.Sprintf("Too many details are missing to log this order: %s.", strings.Join(e.Missing, ", "))
	case RoutingFailedError:
		if e.Code == KindNotFound {
			return "Failed to log the order: the destination sheet was not found."
		}
		return "Failed to log the order. Please try again."
	default:
		return "Something went wrong while logging the order."
	}
}

// New creates a new AppError
func New(errType ErrorType, message string, detail string) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Detail:  detail,
	}
}

// Wrap wraps a raw error with AppError context
func Wrap(err error, errType ErrorType, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Type:    errType,
		Message: message,
		Detail:  err.Error(),
		Raw:     err,
	}
}

func EmptyInput() *AppError {
	return &AppError{
		Type:    EmptyInputError,
		Message: "submission has no text and no attachments",
	}
}

// ExtractionFailed builds an extraction error of the given kind.
func ExtractionFailed(kind, detail string, raw error) *AppError {
	return &AppError{
		Type:    ExtractionFailedError,
		Code:    kind,
		Message: "order extraction failed",
		Detail:  detail,
		Raw:     raw,
	}
}

func TooIncomplete(missing []string) *AppError {
	return &AppError{
		Type:    TooIncompleteError,
		Message: "record is missing too many required fields",
		Detail:  strings.Join(missing, ", "),
		Missing: missing,
	}
}

// RoutingFailed builds a routing error of the given kind.
func RoutingFailed(kind, detail string, raw error) *AppError {
	return &AppError{
		Type:    RoutingFailedError,
		Code:    kind,
		Message: "row append failed",
		Detail:  detail,
		Raw:     raw,
	}
}

func NotificationFailed(raw error) *AppError {
	return Wrap(raw, NotificationFailedError, "notification delivery failed")
}

func ValidationFailed(message string, details string) *AppError {
	return &AppError{
		Type:    ValidationError,
		Message: message,
		Detail:  details,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// TypeOf returns the ErrorType of err, or ServerError for foreign errors.
func TypeOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ServerError
}

// KindOf returns the kind code of err, if it is an AppError.
func KindOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

// IsKind reports whether err is an AppError of type t with kind code.
func IsKind(err error, t ErrorType, kind string) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t && appErr.Code == kind
}
