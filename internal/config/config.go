// Package config holds the fixed pipeline constants and the YAML-loadable
// runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Audio output settings
const (
	AudioChannels     = 2     // Output is always interleaved stereo
	AudioBitDepth     = 16    // Output samples are signed 16-bit
	DefaultSampleRate = 48000 // Used by the CLI when --rate is not given
)

// Video output settings
const (
	WidthAlignment   = 16 // Output row width is padded to this many pixels
	BytesPerPixel    = 3  // Packed RGB24
	DefaultMaxWidth  = 0  // 0 keeps the source resolution
	DefaultQueueSize = 20 // Video frames buffered ahead of the renderer
)

// Decode loop settings
const (
	DefaultEOFPause             = 100 * time.Millisecond
	DefaultMaxConsecutiveErrors = 2 // The session ends after more than this many
	DefaultAudioQueueBlocks     = 64
)

// Spectrum display settings
const (
	NumBars = 32   // Number of spectrum bars in the TUI
	FFTSize = 2048 // Analysis window for the spectrum
)

// Appearance
const (
	// Brand yellow #F8B31D - used for the progress bar and snapshot labels
	TextColorR = 248
	TextColorG = 179
	TextColorB = 29
)

// Config is the runtime configuration, loadable from YAML.
type Config struct {
	Audio  AudioConfig  `yaml:"audio"`
	Video  VideoConfig  `yaml:"video"`
	Decode DecodeConfig `yaml:"decode"`
	Log    LogConfig    `yaml:"log"`
	UI     UIConfig     `yaml:"ui"`
}

// AudioConfig configures audio sessions.
type AudioConfig struct {
	Rate        int `yaml:"rate"`
	QueueBlocks int `yaml:"queue_blocks"`
}

// VideoConfig configures video sessions.
type VideoConfig struct {
	QueueFrames int `yaml:"queue_frames"`
	MaxWidth    int `yaml:"max_width"`
}

// DecodeConfig tunes the decode loop.
type DecodeConfig struct {
	EOFPauseMs           int `yaml:"eof_pause_ms"`
	MaxConsecutiveErrors int `yaml:"max_consecutive_errors"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UIConfig controls the terminal UI.
type UIConfig struct {
	AccentColor string `yaml:"accent_color"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	return Config{
		Audio: AudioConfig{
			Rate:        DefaultSampleRate,
			QueueBlocks: DefaultAudioQueueBlocks,
		},
		Video: VideoConfig{
			QueueFrames: DefaultQueueSize,
			MaxWidth:    DefaultMaxWidth,
		},
		Decode: DecodeConfig{
			EOFPauseMs:           int(DefaultEOFPause / time.Millisecond),
			MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		UI: UIConfig{
			AccentColor: "#F8B31D",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// EOFPause returns the end-of-stream pause as a duration.
func (c Config) EOFPause() time.Duration {
	return time.Duration(c.Decode.EOFPauseMs) * time.Millisecond
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Audio.Rate < 0 {
		errs = append(errs, fmt.Errorf("audio.rate must not be negative, got %d", c.Audio.Rate))
	}
	if c.Audio.QueueBlocks < 1 {
		errs = append(errs, fmt.Errorf("audio.queue_blocks must be at least 1, got %d", c.Audio.QueueBlocks))
	}
	if c.Video.QueueFrames < 1 {
		errs = append(errs, fmt.Errorf("video.queue_frames must be at least 1, got %d", c.Video.QueueFrames))
	}
	if c.Video.MaxWidth < 0 {
		errs = append(errs, fmt.Errorf("video.max_width must not be negative, got %d", c.Video.MaxWidth))
	}
	if c.Decode.EOFPauseMs < 1 {
		errs = append(errs, fmt.Errorf("decode.eof_pause_ms must be at least 1, got %d", c.Decode.EOFPauseMs))
	}
	if c.Decode.MaxConsecutiveErrors < 0 {
		errs = append(errs, fmt.Errorf("decode.max_consecutive_errors must not be negative, got %d", c.Decode.MaxConsecutiveErrors))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be auto, text or json, got %q", c.Log.Format))
	}
	if _, _, _, err := ParseHexColor(c.UI.AccentColor); err != nil {
		errs = append(errs, fmt.Errorf("ui.accent_color: %w", err))
	}
	return errors.Join(errs...)
}

// ParseHexColor parses a six digit hex colour with an optional leading '#'.
func ParseHexColor(s string) (r, g, b uint8, err error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex colour %q: %w", s, err)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
