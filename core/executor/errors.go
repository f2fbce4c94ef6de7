package executor

import (
	"errors"
	"fmt"
)

// ErrSessionAlreadyRun is returned when Run is called on a used session
var ErrSessionAlreadyRun = errors.New("training session already ran")

// BackendError is a failure inside a compute backend
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s backend: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IOError is a failure writing the event log or checkpoint metadata
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
