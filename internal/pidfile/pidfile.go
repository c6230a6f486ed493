// Package pidfile guards a daemon against concurrent instances.
package pidfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ErrExists is returned by Create if the pidfile is already present.
var ErrExists = errors.New("pidfile: already present")

// File is a pidfile owned by the current process.
type File struct {
	path string
	once sync.Once
}

// Create writes the current process id to path, failing with ErrExists if
// the file already exists. Stale files are not reclaimed.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, fmt.Errorf("pidfile: unable to write %s: %w", path, err)
	}

	_, err = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("pidfile: unable to write %s: %w", path, err)
	}

	return &File{path: path}, nil
}

// Path returns the location of the pidfile.
func (x *File) Path() string { return x.path }

// Remove deletes the pidfile. It may be called more than once, and ignores
// a file that has already been removed.
func (x *File) Remove() (err error) {
	x.once.Do(func() {
		if e := os.Remove(x.path); e != nil && !errors.Is(e, fs.ErrNotExist) {
			err = e
		}
	})
	return
}

// Read returns the process id stored at path.
func Read(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("pidfile: invalid content in %s: %w", path, err)
	}
	return pid, nil
}
