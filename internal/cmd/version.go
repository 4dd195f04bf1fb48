package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rogue-56/pinch/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pinch version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pinch %s\n", version.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
