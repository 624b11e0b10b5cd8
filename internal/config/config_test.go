package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hbomb79/Verto/internal/config"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func Test_Load_Defaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, engine.NativeKind, cfg.Engine.Kind)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Engine.FfmpegBinPath)
	assert.Equal(t, 20, cfg.Engine.StderrTail)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8080", cfg.Rest.HostAddr)
	assert.Empty(t, cfg.Rest.InputRoot, "path inputs are disabled unless a root is configured")
	assert.False(t, cfg.History.Enabled)

	assert.False(t, strings.HasPrefix(cfg.OutputDir, "~"), "output dir should be expanded")
	assert.True(t, strings.HasSuffix(cfg.OutputDir, "Verto"))
	assert.True(t, strings.HasSuffix(cfg.PreferencesPath, filepath.Join(".config", "verto", "preferences.yaml")))
}

func Test_Load_EnvironmentOverrides(t *testing.T) {
	out := t.TempDir()
	t.Setenv("OUTPUT_DIR", out)
	t.Setenv("ENGINE_KIND", "container")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, out, cfg.OutputDir)
	assert.Equal(t, engine.ContainerKind, cfg.Engine.Kind)
}

func Test_Load_File(t *testing.T) {
	path := writeConfig(t, `
engine:
  kind: container
  container_image: jrottenberg/ffmpeg:6-alpine
output_dir: /srv/verto
log_level: DEBUG
rest:
  host_address: 127.0.0.1:9000
  input_root: /srv/media
history:
  enabled: true
  database:
    username: verto
    password: secret
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, engine.ContainerKind, cfg.Engine.Kind)
	assert.Equal(t, "jrottenberg/ffmpeg:6-alpine", cfg.Engine.ContainerImage)
	assert.Equal(t, "/srv/verto", cfg.OutputDir)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.Rest.HostAddr)
	assert.Equal(t, "/srv/media", cfg.Rest.InputRoot)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "verto", cfg.History.Database.User)
	assert.Equal(t, "VERTO_DB", cfg.History.Database.Name)
	assert.Equal(t, "5432", cfg.History.Database.Port)
}

func Test_Load_Invalid(t *testing.T) {
	tests := []struct {
		summary string
		content string
		target  error
	}{
		{
			summary: "unknown engine kind",
			content: "engine:\n  kind: wasm\n",
		},
		{
			summary: "negative stderr tail",
			content: "engine:\n  stderr_tail: -1\n",
		},
		{
			summary: "history without credentials",
			content: "history:\n  enabled: true\n",
			target:  config.ErrHistoryCredentials,
		},
		{
			summary: "malformed yaml",
			content: "engine: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.summary, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			require.Error(t, err)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}
}
