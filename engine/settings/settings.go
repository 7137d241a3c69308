// Package settings loads and saves the engine configuration as TOML and converts it into the builder options of
// the packages it configures.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/Carmen-Shannon/oxy-pipe/common"
	"github.com/Carmen-Shannon/oxy-pipe/engine/logger"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/pipe"
	"github.com/Carmen-Shannon/oxy-pipe/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-pipe/engine/window"
)

// Settings is the engine configuration file.
type Settings struct {
	LogLevel string `toml:"log_level" comment:"debug, info, warn or error"`

	Device  Device  `toml:"device"`
	Window  Window  `toml:"window"`
	Engine  Engine  `toml:"engine"`
	Shaders Shaders `toml:"shaders"`
}

// Device configures the pipeline device.
type Device struct {
	// DebugChecks panics on calling-contract violations instead of logging them.
	DebugChecks bool `toml:"debug_checks"`
	// StateStackIncrement is how many state-stack entries are allocated at a time.
	StateStackIncrement int `toml:"state_stack_increment"`
	// RecordWorkers is the deferred recording pool size; 0 picks a size from the adapter type.
	RecordWorkers int `toml:"record_workers"`
}

// Window configures the output window.
type Window struct {
	Title     string `toml:"title"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
	MinWidth  int    `toml:"min_width"`
	MinHeight int    `toml:"min_height"`
	MaxWidth  int    `toml:"max_width"`
	MaxHeight int    `toml:"max_height"`
	// Headless runs without a native window. HeadlessFrames limits the run, 0 runs until closed.
	Headless       bool `toml:"headless"`
	HeadlessFrames int  `toml:"headless_frames"`
}

// Engine configures the frame loop.
type Engine struct {
	// VSync caps the frame rate at FrameLimit, or 60 when FrameLimit is 0.
	VSync      bool    `toml:"vsync"`
	FrameLimit float64 `toml:"frame_limit"`
	// Profiling logs profiler reports every ProfileInterval.
	Profiling       bool   `toml:"profiling"`
	ProfileInterval string `toml:"profile_interval"`
}

// Shaders configures the shader library.
type Shaders struct {
	IncludeDirs []string `toml:"include_dirs"`
	Validation  bool     `toml:"validation"`
	HotReload   bool     `toml:"hot_reload"`
	ReloadLag   string   `toml:"reload_lag"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	return Settings{
		LogLevel: "info",
		Device: Device{
			StateStackIncrement: 8,
		},
		Window: Window{
			Title:     "oxy-pipe",
			Width:     1280,
			Height:    720,
			MinWidth:  320,
			MinHeight: 200,
			MaxWidth:  3840,
			MaxHeight: 2160,
		},
		Engine: Engine{
			VSync:           true,
			ProfileInterval: "1s",
		},
		Shaders: Shaders{
			Validation: true,
			ReloadLag:  "100ms",
		},
	}
}

// Load reads settings from a TOML file. Keys missing from the file keep their defaults; a missing file yields
// Default. Unknown keys are an error.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - Settings: the loaded settings
//   - error: a read, decode or validation error
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Logger().Info("settings file not found, using defaults", "path", path)
		return s, nil
	}
	if err != nil {
		return s, err
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, _ := derr.Position()
			return s, fmt.Errorf("%s: line %d: %s", filepath.Base(path), row, derr.Error())
		}
		return s, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, s.Validate()
}

// Save writes settings to a TOML file, creating its directory.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - error: an encode or write error
func (s Settings) Save(path string) error {
	data, err := toml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks sizes and durations.
func (s Settings) Validate() error {
	var errs []error
	if s.Window.Width <= 0 || s.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("window size %dx%d must be positive", s.Window.Width, s.Window.Height))
	}
	if s.Device.StateStackIncrement < 0 || s.Device.RecordWorkers < 0 {
		errs = append(errs, errors.New("device counts must not be negative"))
	}
	if _, err := parseDuration(s.Engine.ProfileInterval); err != nil {
		errs = append(errs, fmt.Errorf("profile_interval: %w", err))
	}
	if _, err := parseDuration(s.Shaders.ReloadLag); err != nil {
		errs = append(errs, fmt.Errorf("reload_lag: %w", err))
	}
	return errors.Join(errs...)
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// ProfileInterval is the parsed profiler report interval, 0 when unset.
func (s Settings) ProfileInterval() time.Duration {
	d, _ := parseDuration(s.Engine.ProfileInterval)
	return d
}

// ReloadLag is the parsed shader watcher debounce, 0 when unset.
func (s Settings) ReloadLag() time.Duration {
	d, _ := parseDuration(s.Shaders.ReloadLag)
	return d
}

// FrameInterval is the minimum frame duration, 0 when uncapped.
func (s Settings) FrameInterval() time.Duration {
	fps := s.Engine.FrameLimit
	if fps <= 0 && s.Engine.VSync {
		fps = 60
	}
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}

// DeviceOptions converts the device settings into pipe builder options.
func (s Settings) DeviceOptions() []pipe.DeviceBuilderOption {
	options := []pipe.DeviceBuilderOption{pipe.WithDebugChecks(s.Device.DebugChecks)}
	if s.Device.StateStackIncrement > 0 {
		options = append(options, pipe.WithStateStackIncrement(s.Device.StateStackIncrement))
	}
	if s.Device.RecordWorkers > 0 {
		options = append(options, pipe.WithRecordWorkers(s.Device.RecordWorkers))
	}
	return options
}

// WindowOptions converts the window settings into window builder options.
func (s Settings) WindowOptions() []window.WindowBuilderOption {
	w := s.Window
	options := []window.WindowBuilderOption{
		window.WithTitle(common.Coalesce(w.Title, Default().Window.Title)),
		window.WithWidth(w.Width),
		window.WithHeight(w.Height),
		window.WithMinWidth(w.MinWidth),
		window.WithMinHeight(w.MinHeight),
		window.WithMaxWidth(w.MaxWidth),
		window.WithMaxHeight(w.MaxHeight),
	}
	if w.Headless {
		options = append(options, window.WithPlatform(window.Headless(w.HeadlessFrames)))
	}
	return options
}

// CompilerOptions converts the shader settings into compiler builder options.
func (s Settings) CompilerOptions() []shader.CompilerBuilderOption {
	return []shader.CompilerBuilderOption{
		shader.WithValidation(s.Shaders.Validation),
		shader.WithPreProcessorOptions(shader.WithIncludeDirs(s.Shaders.IncludeDirs...)),
	}
}

// Logger builds a text logger on stderr at LogLevel.
func (s Settings) Logger() *slog.Logger {
	return logger.NewTextLogger(os.Stderr, s.LogLevel)
}
