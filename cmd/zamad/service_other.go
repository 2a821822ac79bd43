//go:build !linux && !darwin

package main

import (
	"fmt"
	"runtime"
)

func currentServiceManager() (serviceManager, error) {
	return nil, fmt.Errorf("login service is not supported on %s", runtime.GOOS)
}
