package cli

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// supportsInteractiveOutput reports whether both ends of the command are
// attached to a terminal.
func supportsInteractiveOutput(cmd *cobra.Command) bool {
	out, ok := cmd.OutOrStdout().(*os.File)
	if !ok || !term.IsTerminal(int(out.Fd())) {
		return false
	}
	in, ok := cmd.InOrStdin().(*os.File)
	return ok && term.IsTerminal(int(in.Fd()))
}
