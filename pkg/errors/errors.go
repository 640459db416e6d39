package errors

import (
	"fmt"
	"time"
)

// Kind represents the category of a failure
type Kind string

const (
	KindAuth               Kind = "auth"
	KindNetwork            Kind = "network"
	KindNotFound           Kind = "not_found"
	KindRateLimit          Kind = "rate_limit"
	KindServiceUnavailable Kind = "service_unavailable"
	KindValidation         Kind = "validation"
	KindUnknown            Kind = "unknown"
)

// ServiceError represents a failed search service operation with context
type ServiceError struct {
	Kind        Kind              `json:"kind"`
	StatusCode  int               `json:"status_code,omitempty"`
	Op          string            `json:"op"`
	Message     string            `json:"message"`
	Suggestions []string          `json:"suggestions,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	Cause       error             `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// New creates a new service error
func New(kind Kind, op, message string) *ServiceError {
	return &ServiceError{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *ServiceError) WithCause(cause error) *ServiceError {
	e.Cause = cause
	return e
}

// WithStatusCode records the HTTP status the service returned
func (e *ServiceError) WithStatusCode(code int) *ServiceError {
	e.StatusCode = code
	return e
}

// WithDetail adds a detail to the error
func (e *ServiceError) WithDetail(key, value string) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestions sets the remediation steps shown to the user
func (e *ServiceError) WithSuggestions(suggestions ...string) *ServiceError {
	e.Suggestions = suggestions
	return e
}

// Common error constructors
func NewValidationError(op, message string) *ServiceError {
	return New(KindValidation, op, message).
		WithSuggestions("fix the reported parameter and retry", "check query syntax against the OData rules")
}

func NewAuthError(op, message string) *ServiceError {
	return New(KindAuth, op, message).
		WithSuggestions("verify credentials", "check permissions")
}

func NewNotFoundError(op, resource string) *ServiceError {
	return New(KindNotFound, op, fmt.Sprintf("%s not found", resource)).
		WithSuggestions(fmt.Sprintf("verify that %s exists", resource), "check the configured index name")
}

func NewRateLimitError(op string) *ServiceError {
	return New(KindRateLimit, op, "request was throttled by the service").
		WithSuggestions("reduce request rate", "consider a higher service tier")
}

func NewServiceUnavailableError(op, message string) *ServiceError {
	return New(KindServiceUnavailable, op, message).
		WithSuggestions("retry after a short delay", "check the service health in the portal")
}

func NewNetworkError(op, message string) *ServiceError {
	return New(KindNetwork, op, message).
		WithSuggestions("check network connectivity", "verify the endpoint URL")
}

func NewUnknownError(op, message string) *ServiceError {
	return New(KindUnknown, op, message).
		WithSuggestions("check the service status in the portal", "retry the operation manually", "inspect logs for details")
}

// IsKind checks if the error is of a specific kind
func IsKind(err error, kind Kind) bool {
	if serviceErr, ok := err.(*ServiceError); ok {
		return serviceErr.Kind == kind
	}
	return false
}

// KindOf returns the error kind if it's a ServiceError
func KindOf(err error) Kind {
	if serviceErr, ok := err.(*ServiceError); ok {
		return serviceErr.Kind
	}
	return KindUnknown
}

// StatusCodeOf returns the HTTP status carried by the error, or 0
func StatusCodeOf(err error) int {
	if serviceErr, ok := err.(*ServiceError); ok {
		return serviceErr.StatusCode
	}
	return 0
}
