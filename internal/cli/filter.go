package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tcgvault/messaging/internal/filter"
)

func filterCmd() *cobra.Command {
	var (
		domains   []string
		listRules bool
	)
	cmd := &cobra.Command{
		Use:   "filter [text]",
		Short: "Run text through the contact-info filter and print the result as JSON",
		Long: `Run text through the contact-info filter.

Examples:
  messaging filter "call me at 0532 123 45 67"
  echo "my insta is @john_doe99" | messaging filter`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := filter.New(domains...)
			if listRules {
				for _, name := range f.Rules() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}

			text := strings.Join(args, " ")
			if len(args) == 0 {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimRight(string(raw), "\r\n")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			return enc.Encode(f.Apply(text))
		},
	}
	cmd.Flags().StringSliceVar(&domains, "site-domain", nil, "domains whose links are allowed (default tcgvault.com)")
	cmd.Flags().BoolVar(&listRules, "rules", false, "list rule names in application order")
	return cmd
}
