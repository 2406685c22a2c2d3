package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// newConfigCmd builds the `config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// newConfigShowCmd prints the fully-resolved configuration (default ->
// config file -> env -> CLI flag, per internal/config's override chain) as
// TOML, so an operator can see exactly what the engine will run with.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			enc := toml.NewEncoder(cmd.OutOrStdout())

			if err := enc.Encode(cc.Cfg); err != nil {
				return &exitCodeError{code: exitConfigError, err: fmt.Errorf("config show: %w", err)}
			}

			return nil
		},
	}
}
