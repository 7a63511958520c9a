package cloud_api

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error classes. ProviderError matches these with errors.Is.
var (
	ErrInvalidState = errors.New("resource is not in a valid state for the requested transition")
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("resource not found")
)

var codeClasses = map[string]error{
	// rds
	"InvalidDBInstanceState":      ErrInvalidState,
	"InvalidDBInstanceStateFault": ErrInvalidState,
	"DBInstanceNotFound":          ErrNotFound,
	"DBInstanceNotFoundFault":     ErrNotFound,
	// ec2
	"IncorrectInstanceState":     ErrInvalidState,
	"IncorrectState":             ErrInvalidState,
	"InvalidInstanceID.NotFound": ErrNotFound,
	"UnauthorizedOperation":      ErrAccessDenied,
	// ecs
	"ClusterNotFoundException":  ErrNotFound,
	"ServiceNotFoundException":  ErrNotFound,
	"ServiceNotActiveException": ErrInvalidState,
	"AccessDeniedException":     ErrAccessDenied,
	// autoscaling
	"ScalingActivityInProgress": ErrInvalidState,
	"ResourceInUse":             ErrInvalidState,
	// shared
	"AccessDenied": ErrAccessDenied,
}

// ProviderError is a failed control-plane call carrying the provider's error
// code.
type ProviderError struct {
	Operation string
	Code      string
	Message   string
	Err       error
}

// NewProviderError builds a ProviderError without an underlying cause.
func NewProviderError(operation, code, message string) *ProviderError {
	return &ProviderError{Operation: operation, Code: code, Message: message}
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Operation, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches the class sentinel registered for the error code.
func (e *ProviderError) Is(target error) bool {
	class, ok := codeClasses[e.Code]
	return ok && class == target
}

// Code extracts the provider error code from err, or "" if there is none.
func Code(err error) string {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}
