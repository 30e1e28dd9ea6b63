package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"sparxel/internal/pipeline"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List setup stages in run order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for i, s := range pipeline.DefaultStages() {
			desc := s.Description
			if desc == "" {
				desc = "-"
			}
			fmt.Fprintf(out, "%2d. %-20s %s\n", i+1, s.Name, desc)
		}
		return nil
	},
}
