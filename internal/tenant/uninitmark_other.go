//go:build !linux

package tenant

import "os"

// flockUninitMark is a no-op off Linux: the uninit-mark file's mere
// presence is what guards against a partially-created timeline
// surviving a crash; the advisory lock only narrows the window
// between two processes racing the same timeline id, which this store
// does not run outside Linux deployments.
func flockUninitMark(f *os.File) error {
	return nil
}
