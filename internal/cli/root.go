package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/forkrun/internal/config"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var configFile string

	root := &cobra.Command{
		Use:   "forkrun",
		Short: "Run a command as a tree of prefork worker processes",
	}

	root.PersistentFlags().
		StringVarP(&configFile, "file", "f", config.DefaultPath, "Path to configuration file")

	ctx := &context{configFile: &configFile}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

type context struct {
	configFile *string
}

// loadConfig reads the configuration named by --file. The default path may be
// missing, in which case built-in defaults apply.
func (c *context) loadConfig() (*config.File, error) {
	path := config.DefaultPath
	if c.configFile != nil && *c.configFile != "" {
		path = *c.configFile
	}
	return config.LoadOrDefault(path)
}
