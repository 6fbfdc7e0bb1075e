//go:build linux

package tenant

import (
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// flockUninitMark takes an advisory exclusive lock on the uninit-mark
// file so two pageserver processes racing to create the same timeline
// id fail loudly instead of corrupting each other's on-disk state.
// The lock is released implicitly when f is closed.
func flockUninitMark(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return errors.Wrapf(err, "tenant: flock uninit mark %s", f.Name())
	}
	return nil
}
