package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dqlog/pkg/app"
	"dqlog/pkg/app/config"
)

func runCLI(t *testing.T, args ...string) (*config.Config, string, error) {
	t.Helper()

	cfgFile := filepath.Join(t.TempDir(), "dqlog.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("samplerate: 20\n"), 0o600))

	cfg := config.NewConfig()
	var out bytes.Buffer
	c := newCLI(cfg)
	c.Writer = &out
	c.ErrWriter = &out

	err := c.Run(append([]string{"dqlog", "--config", cfgFile}, args...))
	return cfg, out.String(), err
}

func TestHelpListsVerboseAndVersion(t *testing.T) {
	_, out, err := runCLI(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "--verbose, -v")
	assert.Contains(t, out, "--version, -V")
	assert.NotContains(t, out, "flag redefined")
}

func TestVersionFlag(t *testing.T) {
	_, out, err := runCLI(t, "-V")
	require.NoError(t, err)
	assert.Contains(t, out, app.VERSION)
}

func TestInvalidFlagsFailBeforeDevices(t *testing.T) {
	root := t.TempDir()

	for _, tc := range []struct {
		name string
		args []string
	}{
		{"zero rate", []string{"-v", "-s", "0", "-r", root}},
		{"rate too high", []string{"-v", "-s", "46", "-r", root}},
		{"empty root", []string{"-v", "-r", ""}},
		{"missing root", []string{"-v", "-r", filepath.Join(root, "missing")}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, _, err := runCLI(t, tc.args...)

			assert.ErrorIs(t, err, config.ErrConfiguration)
			assert.True(t, cfg.Flag.Verbose)
		})
	}
}
