//go:build unix

package archive

import (
	"os"
	"syscall"
)

// lockExclusive takes a best-effort advisory exclusive lock on path for the
// duration of an append (spec.md §5: "MAY take an advisory exclusive lock
// ...; this is recommended but not required"). The returned unlock releases
// it and closes the backing file descriptor.
func lockExclusive(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
