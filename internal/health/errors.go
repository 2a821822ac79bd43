package health

import "errors"

var (
	ErrLaunchFailed = errors.New("health: inference server launch failed")
	ErrNotHealthy   = errors.New("health: inference server not healthy after launch")
)
