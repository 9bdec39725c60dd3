package platform

import (
	"github.com/google/uuid"
)

// NewID returns a time-ordered UUIDv7, so ids sort by creation time.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewExecutionID returns an identifier grouping the log entries of one
// dispatcher tick or job run.
func NewExecutionID() string {
	return "exec_" + NewID()
}
