package settings_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/native"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/settings"
	"github.com/Carmen-Shannon/oxy-pipe/engine/window"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := settings.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, settings.Default(), s)
	assert.Equal(t, time.Second, s.ProfileInterval())
	assert.Equal(t, 100*time.Millisecond, s.ReloadLag())
	assert.Equal(t, time.Second/60, s.FrameInterval(), "vsync caps at 60 without a frame limit")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "engine.toml")
	s := settings.Default()
	s.Device.DebugChecks = true
	s.Window.Title = "scene"
	s.Shaders.IncludeDirs = []string{"shaders/common"}
	s.Engine.FrameLimit = 144
	require.NoError(t, s.Save(path))

	loaded, err := settings.Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
	fps := 144.0
	assert.Equal(t, time.Duration(float64(time.Second)/fps), loaded.FrameInterval())
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n\n[window]\nwidth = 320\nheadless = true\n"), 0o644))

	s, err := settings.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, 320, s.Window.Width)
	assert.Equal(t, 720, s.Window.Height, "missing keys keep their defaults")
	assert.True(t, s.Window.Headless)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		return path
	}

	_, err := settings.Load(write("unknown.toml", "[device]\nturbo = true\n"))
	assert.Error(t, err)

	_, err = settings.Load(write("syntax.toml", "[window\nwidth = 1\n"))
	assert.ErrorContains(t, err, "syntax.toml: line")

	_, err = settings.Load(write("size.toml", "[window]\nwidth = 0\n"))
	assert.ErrorContains(t, err, "must be positive")

	_, err = settings.Load(write("lag.toml", "[shaders]\nreload_lag = \"soon\"\n"))
	assert.ErrorContains(t, err, "reload_lag")
}

func TestOptions(t *testing.T) {
	s := settings.Default()
	s.Device.DebugChecks = true
	d := pipe.NewDevice(native.NewDevice(), s.DeviceOptions()...)
	t.Cleanup(d.Release)
	assert.True(t, d.DebugChecks())

	s.Window.Headless = true
	s.Window.HeadlessFrames = 1
	s.Window.Width = 100
	w, err := window.NewWindow(s.WindowOptions()...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	assert.Equal(t, 320, w.Width(), "the width is clamped to min_width")

	assert.Len(t, s.CompilerOptions(), 2)
	assert.NotNil(t, s.Logger())
}
