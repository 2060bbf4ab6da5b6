package auth

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"missionhub/internal/cli"
	"missionhub/internal/core"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed token",
	Long:  "Sign a bearer token with the configured secret (development and testing only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		learnerID, _ := cmd.Flags().GetString("learner")
		cohort, _ := cmd.Flags().GetString("cohort")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if learnerID == "" {
			return fmt.Errorf("--learner is required")
		}
		switch role {
		case core.RoleLearner, core.RoleTeacher, core.RoleAdmin:
		default:
			return fmt.Errorf("--role must be learner, teacher or admin")
		}

		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		tokens := core.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
		token, err := tokens.Issue(core.Identity{LearnerID: learnerID, Cohort: cohort, Role: role}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify a token and print its identity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		id, err := core.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer).Verify(args[0])
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd.OutOrStdout(), id)
	},
}

func init() {
	tokenCmd.Flags().String("learner", "", "learner id (required)")
	tokenCmd.Flags().String("cohort", "", "cohort the learner belongs to")
	tokenCmd.Flags().String("role", core.RoleLearner, "learner, teacher or admin")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	AuthCmd.AddCommand(tokenCmd, verifyCmd)
}
