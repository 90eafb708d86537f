//go:build unix && !linux

package process

import "errors"

// AwaitExit is not available on this platform; callers poll Wait instead.
func AwaitExit(pid int) error {
	return errors.ErrUnsupported
}
