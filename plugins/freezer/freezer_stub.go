//go:build !windows

package freezer

import (
	"errors"

	"github.com/m2w4/robodbg"
)

var errUnsupportedOS = errors.New("freezer: unsupported on this platform")

// Suspend is unavailable off Windows; the freezer plugin talks directly to
// thread-scheduling APIs that have no portable equivalent here.
func Suspend(pid uint32) ([]ThreadState, error) {
	return nil, errUnsupportedOS
}

// Restore is unavailable off Windows, see Suspend.
func Restore(states []ThreadState) error {
	return errUnsupportedOS
}

// SuspendDebuggee is unavailable off Windows, see Suspend.
func SuspendDebuggee(d *robodbg.Debugger) ([]ThreadState, error) {
	return nil, errUnsupportedOS
}
