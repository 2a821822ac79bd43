package executor

import (
	"errors"
	"fmt"
)

var (
	ErrSpawnFailed = errors.New("executor: spawn failed")
	ErrStreamRead  = errors.New("executor: output stream read failed")
	ErrWaitFailed  = errors.New("executor: exit status unavailable")
)

// Error ties a failure kind to the command that caused it.
type Error struct {
	Kind error
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Name, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
