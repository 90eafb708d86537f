//go:build unix

package cli

import "golang.org/x/sys/unix"

// execCommand replaces the current process image. It only returns on error.
func execCommand(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}
