package progress

import "github.com/spf13/cobra"

var ProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect learner progress",
	Long:  "View cumulative progress and badges, and recover uncredited attempts",
}
