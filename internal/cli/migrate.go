package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tcgvault/messaging/internal/config"
	"github.com/tcgvault/messaging/store/schema"
)

func migrateCmd() *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the conversations and messages tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				_, err := fmt.Fprint(cmd.OutOrStdout(), schema.DDL())
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer func() {
				_ = db.Close()
			}()

			if err := schema.Apply(cmd.Context(), db); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema applied")
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the DDL instead of applying it")
	return cmd
}
