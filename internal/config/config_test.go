package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "backend: minizinc\nuniversal_label: ALL\nminizinc:\n  solver: chuffed\n"))
	require.NoError(t, err)
	assert.Equal(t, "minizinc", cfg.Backend)
	assert.Equal(t, "ALL", cfg.UniversalLabel)
	assert.Equal(t, "chuffed", cfg.MiniZinc.Solver)
	assert.Equal(t, "minizinc", cfg.MiniZinc.Binary)
	assert.Equal(t, 64, cfg.MaxFnParams)
	assert.True(t, cfg.MinimizeCore)
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "backend: kissat\n"},
		{"negative params", "max_fn_params: -1\n"},
		{"bad format", "format: xml\n"},
		{"bad log level", "log_level: loud\n"},
		{"non-ascii label", "universal_label: \"ÄLL\"\n"},
		{"empty output", "output: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			var cerr *Error
			require.ErrorAs(t, err, &cerr)
		})
	}
}

func TestMalformedYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "backend: [gini\n"))
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "parse")
}
