package health

import (
	"os/exec"

	"github.com/zama-app/zamad/internal/logging"
)

// Starter spawns the inference server without waiting for it.
type Starter interface {
	Start(name string, args []string) error
}

// ExecStarter starts the server as a detached child with its output
// discarded. A background goroutine reaps it when it exits.
type ExecStarter struct{}

func (ExecStarter) Start(name string, args []string) error {
	cmd := exec.Command(name, args...)
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return err
	}
	pid := cmd.Process.Pid
	log.Info("inference server spawned", "binary", name, "pid", pid)

	go func() {
		err := cmd.Wait()
		if err != nil {
			log.Warn("inference server exited", "pid", pid, logging.KeyError, err)
			return
		}
		log.Info("inference server exited", "pid", pid)
	}()
	return nil
}
