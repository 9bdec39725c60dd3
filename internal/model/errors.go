package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClaimConflict means another execution already claimed the job.
	ErrClaimConflict = errors.New("job already claimed")
	// ErrInvalidTransition means the job is not in a state that allows the change.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// ConfigurationError is an operator-fixable problem in a workflow definition.
type ConfigurationError struct {
	Subject string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Subject, e.Reason)
}

// AudienceResolutionError wraps a query-executor failure while resolving a target group.
type AudienceResolutionError struct {
	TargetGroupID string
	Err           error
}

func (e *AudienceResolutionError) Error() string {
	return fmt.Sprintf("resolve audience %s: %v", e.TargetGroupID, e.Err)
}

func (e *AudienceResolutionError) Unwrap() error { return e.Err }

// DeliveryError is a per-recipient send failure.
type DeliveryError struct {
	Contact string
	Reason  string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %s", e.Contact, e.Reason)
}
