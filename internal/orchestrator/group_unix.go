//go:build unix

package orchestrator

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// newProcessGroup puts cmd in its own process group so that signals sent
// to the group reach the sampler and every child it spawns.
func newProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

type groupSignaler struct{}

func (groupSignaler) Interrupt(p *os.Process) error {
	return signalGroup(p, unix.SIGINT)
}

func (groupSignaler) Kill(p *os.Process) error {
	return signalGroup(p, unix.SIGKILL)
}

// signalGroup signals the group led by p. A group that is already gone
// is not an error.
func signalGroup(p *os.Process, sig unix.Signal) error {
	err := unix.Kill(-p.Pid, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}
