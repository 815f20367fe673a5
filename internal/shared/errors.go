package shared

import "fmt"

var (
	// Configuration errors
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Task lifecycle errors
	ErrInvalidTaskType = fmt.Errorf("invalid task type")
	ErrInvalidState    = fmt.Errorf("invalid task state")
	ErrTaskNotFound    = fmt.Errorf("task not found")
	ErrInvalidPayload  = fmt.Errorf("invalid task payload")
	ErrRetryLimit      = fmt.Errorf("retry limit reached")
	ErrTimeout         = fmt.Errorf("operation timed out")

	// Catalog errors
	ErrEntityNotFound = fmt.Errorf("entity not found")
	ErrAlreadyExists  = fmt.Errorf("entity already exists")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrCommandFailed      = fmt.Errorf("external command failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
