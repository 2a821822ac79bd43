package version

import (
	"errors"
	"fmt"
)

var (
	ErrConfigMissing   = errors.New("version: local version file unreadable")
	ErrConfigMalformed = errors.New("version: local version file malformed")
	ErrNetwork         = errors.New("version: manifest fetch failed")
	ErrRemoteMalformed = errors.New("version: remote manifest malformed")
)

// Error carries the failing source (a file path or URL) alongside one of the
// sentinel kinds above. errors.Is matches both the kind and the cause.
type Error struct {
	Kind   error
	Source string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (%s)", e.Kind, e.Source)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Source, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
