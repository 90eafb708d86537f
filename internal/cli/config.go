package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/forkrun/internal/cliutil"
	"github.com/Paintersrp/forkrun/internal/config"
)

func newConfigCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with forkrun configuration files",
	}
	cmd.AddCommand(newConfigLintCmd(ctx))
	cmd.AddCommand(newConfigPrintCmd(ctx))
	return cmd
}

func newConfigLintCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(*ctx.configFile)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", doc.Source)
			return nil
		},
	}
	return cmd
}

func newConfigPrintCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the resolved configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadConfig()
			if err != nil {
				return err
			}
			doc.Workers.Env = cliutil.RedactEnv(doc.Workers.Env)
			return doc.Encode(cmd.OutOrStdout())
		},
	}
	return cmd
}
