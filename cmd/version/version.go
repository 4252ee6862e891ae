package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/songsheets/rehearsal/internal/buildinfo"
)

// Command creates the version command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Get())
			return err
		},
	}
}
