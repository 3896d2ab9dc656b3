package engine

import "fmt"

// NotConnectedError reports an operation that requires an active session.
type NotConnectedError struct {
	Engine ID
	Op     string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: %s requires an active connection", e.Engine, e.Op)
}

// NotInitializedError reports a plugin used before Initialize.
type NotInitializedError struct {
	Engine ID
	Op     string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s: %s called before plugin was initialized", e.Engine, e.Op)
}

// ConnectionError wraps a failed connect or connection test with the engine id
// so the caller can render an actionable message.
type ConnectionError struct {
	Engine ID
	Cause  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connection failed: %v", e.Engine, e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// UnsupportedFormatError reports an unknown export format.
type UnsupportedFormatError struct {
	Format ExportFormat
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported export format: %q", e.Format)
}
