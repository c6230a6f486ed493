//go:build unix

package processloop

import (
	"errors"
	"os"
	"syscall"
)

func stopProcess(p *os.Process) error {
	err := p.Signal(syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
