//go:build !unix

package cli

import "errors"

func execCommand(path string, argv, env []string) error {
	return errors.ErrUnsupported
}
