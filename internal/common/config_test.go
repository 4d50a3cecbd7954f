package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 4, config.Tasks.Concurrency)
	assert.Equal(t, 3, config.Tasks.MaxAttempts)
	assert.Equal(t, time.Second, config.Tasks.PollIntervalDuration())
	assert.Equal(t, 5*time.Minute, config.Tasks.ProcessorTimeoutDuration())
	assert.Equal(t, time.Hour, config.Tasks.RetentionDuration())
	assert.NoError(t, ValidateSweepSchedule(config.Tasks.SweepSchedule))
	assert.False(t, config.IsProduction())
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libris.toml")
	content := `
environment = "production"

[server]
port = 9090

[tasks]
concurrency = 8
retention = "30m"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host, "unset values keep defaults")
	assert.Equal(t, 8, config.Tasks.Concurrency)
	assert.Equal(t, 30*time.Minute, config.Tasks.RetentionDuration())
	assert.True(t, config.IsProduction())
}

func TestLoadFromFilesLaterFilesWin(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 9090\n"), 0644))
	require.NoError(t, os.WriteFile(override, []byte("[server]\nport = 9191\n"), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, 9191, config.Server.Port)
}

func TestLoadFromFilesMissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIBRIS_SERVER_PORT", "7070")
	t.Setenv("LIBRIS_TASKS_CONCURRENCY", "2")
	t.Setenv("LIBRIS_TASKS_RETENTION", "10m")
	t.Setenv("LIBRIS_LOG_OUTPUT", "stdout, file")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, 2, config.Tasks.Concurrency)
	assert.Equal(t, 10*time.Minute, config.Tasks.RetentionDuration())
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestFlagOverridesBeatEverything(t *testing.T) {
	t.Setenv("LIBRIS_SERVER_PORT", "7070")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	ApplyFlagOverrides(config, 6060, "0.0.0.0")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 6060, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}

func TestDurationFallbacks(t *testing.T) {
	tasks := &TasksConfig{PollInterval: "garbage", ProcessorTimeout: "", Retention: "-5m"}

	assert.Equal(t, time.Second, tasks.PollIntervalDuration())
	assert.Equal(t, 5*time.Minute, tasks.ProcessorTimeoutDuration())
	assert.Equal(t, time.Hour, tasks.RetentionDuration())
}

func TestValidateSweepSchedule(t *testing.T) {
	assert.NoError(t, ValidateSweepSchedule("*/5 * * * *"))
	assert.NoError(t, ValidateSweepSchedule("0 3 * * 1"))
	assert.Error(t, ValidateSweepSchedule("not a schedule"))
	assert.Error(t, ValidateSweepSchedule(""))
}
