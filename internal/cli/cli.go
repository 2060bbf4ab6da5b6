// Package cli holds helpers shared by the missionctl commands
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/viper"

	"missionhub/internal/app"
	"missionhub/pkg/config"
	"missionhub/pkg/logger"
)

// ConfigKey is the viper key bound to the --config flag
const ConfigKey = "config"

// LoadConfig loads the server config named by --config
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString(ConfigKey))
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Level: cfg.Logging.Level, Format: "text", Output: "stderr"})
	return cfg, nil
}

// OpenApp loads config and wires the engine; callers must Close it
func OpenApp(ctx context.Context) (*app.App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

// PrintJSON writes v indented
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
