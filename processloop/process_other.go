//go:build !unix

package processloop

import (
	"errors"
	"os"
)

// stopProcess kills the child, as there is no portable way to request a
// graceful exit.
func stopProcess(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
