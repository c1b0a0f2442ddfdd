package store

import "fmt"

// NotFoundError indicates the id has no matching live row. Terminal for the call.
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure. Terminal for the call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// StorageUnavailableError indicates no reachable database and no usable fallback.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage unavailable: %v", e.Cause)
	}
	return "storage unavailable"
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// PoolExhaustedError indicates the connection pool hit its bound and the
// acquire timed out. Transient; callers may retry.
type PoolExhaustedError struct {
	Cause error
}

func (e *PoolExhaustedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection pool exhausted: %v", e.Cause)
	}
	return "connection pool exhausted"
}

func (e *PoolExhaustedError) Unwrap() error { return e.Cause }
