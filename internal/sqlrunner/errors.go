package sqlrunner

import "fmt"

// ExecutionError is a backend failure, surfaced as the driver reported it.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute query: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// SinkIOError is a failure to create, write or read a file.
type SinkIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *SinkIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SinkIOError) Unwrap() error { return e.Err }
