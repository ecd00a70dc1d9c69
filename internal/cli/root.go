// Package cli holds the messaging command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "messaging",
		Short:         "Marketplace buyer/seller messaging service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(filterCmd())
	return root
}

// Execute runs the root command
func Execute(version string) error {
	root := NewRootCmd()
	root.Version = version
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
