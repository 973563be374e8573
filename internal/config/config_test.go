package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrivener/internal/registry"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, Check(cfg))

	assert.Equal(t, Version, cfg.Version)
	assert.Equal(t, 3, cfg.Engine.StageMaxTries)
	assert.True(t, strings.HasSuffix(cfg.Journal.Path, "journal.db"))
	assert.True(t, strings.HasSuffix(cfg.Server.SocketPath, "scrivener.sock"))
}

func TestConfigPathHonoursEnv(t *testing.T) {
	t.Setenv("SCRIVENER_CONFIG", "/etc/scrivener.toml")
	assert.Equal(t, "/etc/scrivener.toml", ConfigPath())

	t.Setenv("SCRIVENER_CONFIG", "")
	assert.True(t, strings.HasSuffix(ConfigPath(), "config.toml"))
}

func TestLoadNonexistentUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Engine, cfg.Engine)
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
version = 1

[engine]
stage_max_tries = 5

[profiles.notes]
char_delay_ms = 2

[profiles.generic]
stage_timeout_ms = 30000

[focus]
enabled = false
ignored = ["Dock"]
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Engine.StageMaxTries)
	assert.Equal(t, 100, cfg.Engine.RetryInitialMs, "unset keys keep defaults")
	assert.False(t, cfg.Focus.Enabled)
	assert.Equal(t, []string{"Dock"}, cfg.Focus.Ignored)

	reg := cfg.Registry()
	notes, ok := reg.Lookup("Notes")
	require.True(t, ok)
	assert.Equal(t, 2*time.Millisecond, notes.Timing.CharDelay)
	assert.Equal(t, 30*time.Second, reg.Generic().Timing.StageTimeout)
	assert.Equal(t, registry.DefaultTiming().LineDelay, reg.Generic().Timing.LineDelay)
}

func TestLoadJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"version":1,"logging":{"level":"debug","format":"json"}}`), 0600))
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("version: 1\ncursor:\n  capacity: 8\n  max_age_sec: 60\n"), 0600))

	cfg, err := Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Logging.Format)

	lc, err := cfg.Logging.Settings()
	require.NoError(t, err)
	assert.Equal(t, "stderr", lc.Output)

	cfg, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Cursor.Settings().Capacity)
	assert.Equal(t, time.Minute, cfg.Cursor.Settings().MaxAge)
}

func TestSchemaRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nstage_max_trys = 2\n"), 0600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestSchemaRejectsWrongTypes(t *testing.T) {
	err := ValidateDocument(map[string]any{"cursor": map[string]any{"capacity": "many"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = ValidateDocument(map[string]any{"logging": map[string]any{"level": "loud"}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	assert.NoError(t, ValidateDocument(map[string]any{"profiles": map[string]any{"slack": map[string]any{"char_delay_ms": int64(3)}}}))
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.StageMaxTries = 0
	cfg.Positioner.ScreenX = 1.5
	cfg.Logging.Level = "chatty"
	cfg.Server.Permissions = "rw"

	err := cfg.Validate()
	require.Error(t, err)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := map[string]bool{}
	for _, e := range verrs {
		fields[e.Field] = true
	}
	assert.True(t, fields["engine.stage_max_tries"])
	assert.True(t, fields["positioner.screen_x"])
	assert.True(t, fields["logging.level"])
	assert.True(t, fields["server.permissions"])
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestUnknownProfileIsWarning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles["Notepad++"] = TimingConfig{CharDelayMs: 1}

	assert.NoError(t, cfg.Validate())
	warnings := Check(cfg).Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "profiles.Notepad++", warnings[0].Field)

	cfg.Profiles["notes"] = TimingConfig{LineDelayMs: -1}
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRIVENER_LOG_LEVEL", "debug")
	t.Setenv("SCRIVENER_SOCKET_PATH", "/tmp/s.sock")
	t.Setenv("SCRIVENER_JOURNAL_ENABLED", "false")
	t.Setenv("SCRIVENER_STAGE_MAX_TRIES", "not-a-number")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/tmp/s.sock", cfg.Server.SocketPath)
	assert.False(t, cfg.Journal.Enabled)
	assert.Equal(t, 3, cfg.Engine.StageMaxTries)
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.RetryInitialMs = 20
	cfg.Engine.RetryMaxMs = 200
	cfg.Positioner.WindowTopMargin = 80

	o := cfg.EngineOptions()
	assert.Equal(t, uint(3), o.StageMaxTries)
	assert.Equal(t, 20*time.Millisecond, o.RetryInitial)
	assert.Equal(t, 200*time.Millisecond, o.RetryMax)
	assert.Equal(t, 80.0, o.Positioner.WindowTopMargin)
	assert.NoError(t, o.Positioner.Validate())
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Profiles["notes"] = TimingConfig{CharDelayMs: 1}
	clone := cfg.Clone()

	clone.Profiles["notes"] = TimingConfig{CharDelayMs: 9}
	clone.Focus.Ignored[0] = "changed"
	assert.Equal(t, 1, cfg.Profiles["notes"].CharDelayMs)
	assert.NotEqual(t, "changed", cfg.Focus.Ignored[0])
}

func TestSaveAndLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")

	cfg, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.FileExists(t, path)

	again, created, err := LoadOrCreate(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, cfg.Server, again.Server)
	assert.Equal(t, cfg.Positioner, again.Positioner)
}

func TestLoaderHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nstage_max_tries = 2\n"), 0600))

	l := NewLoader(path)
	defer l.Close()
	cfg, err := l.Load()
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Engine.StageMaxTries)

	changed := make(chan *Config, 1)
	l.OnChange(func(old, new *Config) {
		select {
		case changed <- new:
		default:
		}
	})
	require.NoError(t, l.Watch())

	tmp := path + ".new"
	require.NoError(t, os.WriteFile(tmp, []byte("[engine]\nstage_max_tries = 4\n"), 0600))
	require.NoError(t, os.Rename(tmp, path))
	select {
	case got := <-changed:
		assert.Equal(t, 4, got.Engine.StageMaxTries)
		assert.Equal(t, 4, l.Config().Engine.StageMaxTries)
	case err := <-l.Errors():
		t.Fatalf("reload error: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestLoaderKeepsConfigOnBadReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[engine]\nstage_max_tries = 2\n"), 0600))

	l := NewLoader(path)
	defer l.Close()
	_, err := l.Load()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("[engine]\nstage_max_tries = 99\n"), 0600))
	assert.Error(t, l.Reload())
	assert.Equal(t, 2, l.Config().Engine.StageMaxTries)
}

func TestServerAndJournalSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Permissions = "0660"
	cfg.Server.WriteTimeoutSec = 30

	sc, err := cfg.Server.Settings()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0660), sc.Mode)
	assert.Equal(t, 30*time.Second, sc.WriteTimeout)
	assert.Equal(t, cfg.Server.MaxPayloadBytes, sc.MaxPayloadBytes)

	now := time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)
	cutoff, ok := cfg.Journal.Cutoff(now)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), cutoff)

	cfg.Journal.RetentionDays = 0
	_, ok = cfg.Journal.Cutoff(now)
	assert.False(t, ok)

	cfg.Journal.Path = "~/j.db"
	home, _ := os.UserHomeDir()
	assert.Equal(t, filepath.Join(home, "j.db"), cfg.Journal.ResolvedPath())
}
