package progress

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"missionhub/internal/cli"
)

var showCmd = &cobra.Command{
	Use:   "show <learner-id>",
	Short: "Show a learner's progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := cli.OpenApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.Engine.GetLearnerProgress(ctx, args[0])
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd.OutOrStdout(), p)
	},
}

var badgesCmd = &cobra.Command{
	Use:   "badges <learner-id>",
	Short: "List badges a learner has earned",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := cli.OpenApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		earned, err := a.Engine.ListEarnedBadges(ctx, args[0])
		if err != nil {
			return err
		}
		if len(earned) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "%s has not earned any badges yet\n", args[0])
			return nil
		}
		return cli.PrintJSON(cmd.OutOrStdout(), earned)
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Credit finalized attempts whose credit never landed",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()
		a, err := cli.OpenApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Engine.ReconcileCredits(ctx, limit)
		fmt.Fprintf(cmd.OutOrStdout(), "credited %d attempts\n", n)
		return err
	},
}

func init() {
	reconcileCmd.Flags().Int("limit", 500, "maximum attempts to credit")
	ProgressCmd.AddCommand(showCmd, badgesCmd, reconcileCmd)
}
