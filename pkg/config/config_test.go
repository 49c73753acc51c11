package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Parse(t *testing.T) {
	c := Default()
	if _, err := toml.Decode(`
include = ["lib", "/opt/wht"]
targets = ["ll", "h"]
out-dir = "build"
log-level = "debug"
`, &c); err != nil {
		t.Fatal(err)
	}

	want := Config{
		Include:  []string{"lib", "/opt/wht"},
		Targets:  []string{"ll", "h"},
		OutDir:   "build",
		LogLevel: zapcore.DebugLevel,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoad_Missing(t *testing.T) {
	cfg, path, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, path)
	require.Equal(t, Default(), cfg)
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".whitfield.toml"), []byte(`
include = ["lib", "/abs"]
out-dir = "out"
`), 0644))

	cfg, path, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, ".whitfield.toml"), path)
	require.Equal(t, []string{filepath.Join(dir, "lib"), "/abs"}, cfg.Include)
	require.Equal(t, filepath.Join(dir, "out"), cfg.OutDir)
	require.Equal(t, []string{"ll"}, cfg.Targets, "defaults survive")
	require.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
}

func TestLoad_PrefersVisibleFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "whitfield.toml"), []byte(`targets = ["h"]`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".whitfield.toml"), []byte(`targets = ["ll"]`), 0644))

	cfg, _, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"h"}, cfg.Targets)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown key", "optimize = true", "unknown keys optimize"},
		{"empty targets", "targets = []", "targets must not be empty"},
		{"bad level", `log-level = "loud"`, "parse"},
		{"syntax", "targets = [", "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "whitfield.toml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))
			_, err := Decode(path)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
