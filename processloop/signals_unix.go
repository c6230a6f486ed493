//go:build unix

package processloop

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// maxSignal bounds the scan of the platform signal table.
const maxSignal = 128

// signalNames maps each platform signal to its canonical name. Aliases
// (e.g. SIGIOT for SIGABRT) are not present in the platform table.
var signalNames = func() map[syscall.Signal]string {
	m := make(map[syscall.Signal]string)
	for sig := syscall.Signal(1); sig < maxSignal; sig++ {
		if name := unix.SignalName(sig); name != "" {
			m[sig] = name
		}
	}
	return m
}()
