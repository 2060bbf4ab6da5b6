package admin

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"missionhub/internal/app"
	"missionhub/internal/cli"
	"missionhub/internal/repository"
	"missionhub/pkg/database"
	"missionhub/pkg/models"
)

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  "Apply the embedded schema migrations to the configured PostgreSQL database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		applied, err := app.Migrate(context.Background(), database.FromConfig(cfg.Database))
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		}
		for _, v := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
		}
		return nil
	},
}

var SeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a content bundle",
	Long:  "Upsert missions, activities, availability windows and badges from a YAML bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			return fmt.Errorf("--file is required")
		}
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Driver == "memory" {
			return fmt.Errorf("seeding the memory store has no lasting effect; set store.seed_file instead")
		}

		ctx := context.Background()
		pool, err := database.NewPGXPool(database.FromConfig(cfg.Database))
		if err != nil {
			return err
		}
		store := repository.NewPostgresStore(pool)
		defer store.Close()

		stats, err := app.Seed(ctx, store, file)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d missions (%d activities), %d windows, %d badges\n",
			stats.Missions, stats.Activities, stats.Windows, stats.Badges)
		return nil
	},
}

var AvailabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Dry-run the availability gate for a learner",
	RunE: func(cmd *cobra.Command, args []string) error {
		var ref models.WindowRef
		ref.Topic, _ = cmd.Flags().GetString("topic")
		ref.Kind, _ = cmd.Flags().GetString("kind")
		ref.Cohort, _ = cmd.Flags().GetString("cohort")
		ref.MissionID, _ = cmd.Flags().GetString("mission")
		learnerID, _ := cmd.Flags().GetString("learner")
		sessionID, _ := cmd.Flags().GetString("session")
		if ref.Topic == "" || ref.Kind == "" || learnerID == "" {
			return fmt.Errorf("--topic, --kind and --learner are required")
		}

		ctx := context.Background()
		a, err := cli.OpenApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return cli.PrintJSON(cmd.OutOrStdout(), a.Engine.CheckAvailability(ctx, learnerID, ref, sessionID))
	},
}

var BadgesCmd = &cobra.Command{
	Use:   "badges",
	Short: "List the badge catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := cli.OpenApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		badges, err := a.Engine.ListBadges(ctx)
		if err != nil {
			return err
		}
		return cli.PrintJSON(cmd.OutOrStdout(), badges)
	},
}

func init() {
	SeedCmd.Flags().StringP("file", "f", "", "content bundle (YAML)")

	AvailabilityCmd.Flags().String("topic", "", "window topic")
	AvailabilityCmd.Flags().String("kind", "", "window kind, e.g. mission or arcade")
	AvailabilityCmd.Flags().String("cohort", "", "learner cohort")
	AvailabilityCmd.Flags().String("mission", "", "restrict to a mission id")
	AvailabilityCmd.Flags().String("learner", "", "learner id")
	AvailabilityCmd.Flags().String("session", "", "session id for theory acknowledgement")
}
