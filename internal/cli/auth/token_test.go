package auth

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"missionhub/internal/cli"
	"missionhub/internal/core"
)

func writeConfig(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt:\n  secret: cli-secret\n  issuer: cli-test\n"), 0o600))
	viper.Set(cli.ConfigKey, path)
	t.Cleanup(func() { viper.Set(cli.ConfigKey, "") })
}

func TestTokenCommand(t *testing.T) {
	writeConfig(t)

	var out bytes.Buffer
	AuthCmd.SetOut(&out)
	AuthCmd.SetArgs([]string{"token", "--learner", "l1", "--cohort", "5a", "--role", "teacher"})
	require.NoError(t, AuthCmd.Execute())

	id, err := core.NewTokenService("cli-secret", "cli-test").Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "l1", id.LearnerID)
	assert.Equal(t, "5a", id.Cohort)
	assert.Equal(t, core.RoleTeacher, id.Role)
}

func TestTokenCommandRequiresLearner(t *testing.T) {
	writeConfig(t)

	AuthCmd.SetOut(&bytes.Buffer{})
	AuthCmd.SetErr(&bytes.Buffer{})
	AuthCmd.SetArgs([]string{"token", "--learner=", "--role", "learner"})
	assert.Error(t, AuthCmd.Execute())
}
