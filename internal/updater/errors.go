package updater

import (
	"errors"
	"fmt"
)

var (
	ErrDownloadFailed   = errors.New("updater: installer download failed")
	ErrUntrustedContent = errors.New("updater: installer is not a script")
	ErrNotFound         = errors.New("updater: no installed app found")
	ErrTrashMoveFailed  = errors.New("updater: moving app to trash failed")
	ErrInstallFailed    = errors.New("updater: installer failed")
)

// Error ties a failure kind to the URL or path it concerns.
type Error struct {
	Kind   error
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (%s)", e.Kind, e.Target)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Target, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
