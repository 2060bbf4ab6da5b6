package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"missionhub/internal/cli"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the configuration after file and MISSIONHUB_* environment overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := cli.LoadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Missionhub Configuration:")
		fmt.Fprintln(out, "")
		fmt.Fprintf(out, "Server:\n")
		fmt.Fprintf(out, "  HTTP: %s\n", cfg.HTTPAddr())
		if cfg.GRPC.Enabled {
			fmt.Fprintf(out, "  gRPC: %s\n", cfg.GRPCAddr())
		} else {
			fmt.Fprintf(out, "  gRPC: disabled\n")
		}
		fmt.Fprintln(out, "")
		fmt.Fprintf(out, "Store:\n")
		fmt.Fprintf(out, "  Driver: %s\n", cfg.Store.Driver)
		if cfg.Store.Driver == "postgres" {
			fmt.Fprintf(out, "  Database: %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
		}
		if cfg.Store.SeedFile != "" {
			fmt.Fprintf(out, "  Seed file: %s\n", cfg.Store.SeedFile)
		}
		fmt.Fprintf(out, "  Op timeout: %s\n", cfg.Store.OpTimeout)
		fmt.Fprintln(out, "")
		if cfg.Redis.Enabled {
			fmt.Fprintf(out, "Redis: %s (channel %s, theory ttl %s)\n", cfg.Redis.Addr, cfg.Redis.Channel, cfg.Redis.TheoryTTL)
		} else {
			fmt.Fprintf(out, "Redis: disabled (theory acks and notifications are process-local)\n")
		}
		fmt.Fprintf(out, "Default timezone: %s\n", cfg.Engine.DefaultTimezone)
		fmt.Fprintf(out, "JWT issuer: %s\n", cfg.JWT.Issuer)
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(showCmd)
}
