//go:build !unix

package archive

// lockExclusive is a no-op on platforms without flock; the advisory lock is
// recommended, not required (spec.md §5).
func lockExclusive(path string) (func(), error) {
	return func() {}, nil
}
