package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/pipeline-relay/pkg/auth"
)

const memoryConfig = `
apiVersion: v1
auth:
  admin_secret: admin
  cookie:
    secret: 0123456789abcdef0123456789abcdef
logging:
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "agent-token", "hash-password"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestRootCmd_Version(t *testing.T) {
	out, err := execute(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "pipeline-relay dev\n", out)
}

func TestHashPassword(t *testing.T) {
	out, err := execute(t, "s3cret\n", "hash-password")
	require.NoError(t, err)

	ok, err := auth.CheckPassword(strings.TrimSpace(out), "s3cret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := execute(t, "\n", "hash-password")
	assert.Error(t, err)
}

func TestLoadConfig_Required(t *testing.T) {
	t.Setenv(configEnv, "")
	_, err := execute(t, "", "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), configEnv)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv(configEnv, writeConfig(t, memoryConfig))
	_, err := execute(t, "", "migrate", "version")
	require.ErrorIs(t, err, errNoDatabase)
}

func TestServe_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "apiVersion: v1\nlogging:\n  level: loud\n")
	_, err := execute(t, "", "serve", "--config", path)
	assert.Error(t, err)
}

func TestMigrate_NeedsDatabase(t *testing.T) {
	path := writeConfig(t, memoryConfig)
	for _, args := range [][]string{
		{"migrate", "up"},
		{"migrate", "down", "--yes"},
		{"migrate", "steps", "1"},
		{"migrate", "version"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			_, err := execute(t, "", append(args, "--config", path)...)
			assert.ErrorIs(t, err, errNoDatabase)
		})
	}
}

func TestMigrate_StepsNeedsArg(t *testing.T) {
	_, err := execute(t, "", "migrate", "steps")
	assert.Error(t, err)
}

func TestAgentToken_NeedsDatabase(t *testing.T) {
	path := writeConfig(t, memoryConfig)
	_, err := execute(t, "", "agent-token", "list", "--config", path)
	assert.ErrorIs(t, err, errNoDatabase)
}
