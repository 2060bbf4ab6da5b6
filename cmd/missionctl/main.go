package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"missionhub/internal/cli"
	"missionhub/internal/cli/admin"
	"missionhub/internal/cli/auth"
	"missionhub/internal/cli/config"
	"missionhub/internal/cli/progress"
)

var rootCmd = &cobra.Command{
	Use:           "missionctl",
	Short:         "Missionhub administration",
	Long:          "Migrate, seed and inspect the mission progression engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "./configs/development.yaml", "path to the YAML config file")
	_ = viper.BindPFlag(cli.ConfigKey, rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.AddCommand(
		admin.MigrateCmd,
		admin.SeedCmd,
		admin.AvailabilityCmd,
		admin.BadgesCmd,
		progress.ProgressCmd,
		auth.AuthCmd,
		config.ConfigCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
