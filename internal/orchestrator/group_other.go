//go:build !unix

package orchestrator

import (
	"errors"
	"os"
	"os/exec"
)

// Without process groups only the sampler itself is signalled; anything
// it spawned may outlive the shutdown.
func newProcessGroup(*exec.Cmd) {}

type groupSignaler struct{}

func (groupSignaler) Interrupt(p *os.Process) error {
	err := p.Signal(os.Interrupt)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (groupSignaler) Kill(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
