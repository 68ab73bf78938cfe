package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const (
	appName  = "camsnap"
	fileName = "config.json"
)

// Config holds capture defaults. Fields may be loaded from a JSON file and
// overridden by command-line flags.
type Config struct {
	Device string `json:"device"`
	// Output is a path template; a %d verb is replaced by the frame index.
	Output string `json:"output"`
	Frames int    `json:"frames"`

	Width       int    `json:"width"`
	Height      int    `json:"height"`
	PixelFormat string `json:"pixel_format"`

	// FrameTimeout bounds a single wait for the device; CaptureTimeout
	// bounds the retries for one frame. Both are Go duration strings.
	FrameTimeout   Duration `json:"frame_timeout"`
	CaptureTimeout Duration `json:"capture_timeout"`

	SkipStreamOff bool `json:"skip_stream_off"`
	Debug         bool `json:"debug"`
}

// Duration marshals as a time.ParseDuration string.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// DefaultConfig returns a Config populated with standard defaults. 640x480
// MJPEG is offered by nearly every UVC webcam.
func DefaultConfig() *Config {
	return &Config{
		Device:         "/dev/video0",
		Output:         "frame.jpg",
		Frames:         1,
		Width:          640,
		Height:         480,
		PixelFormat:    "mjpeg",
		FrameTimeout:   Duration(2 * time.Second),
		CaptureTimeout: Duration(10 * time.Second),
	}
}

// Validate resets out-of-range values to their defaults.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Frames <= 0 {
		c.Frames = def.Frames
	}
	if c.Width <= 0 {
		c.Width = def.Width
	}
	if c.Height <= 0 {
		c.Height = def.Height
	}
	if c.PixelFormat == "" {
		c.PixelFormat = def.PixelFormat
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = def.FrameTimeout
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = def.CaptureTimeout
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/camsnap/config.json without creating
// anything.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, fileName)
}

// Load attempts to read configuration from the given JSON file path. If the
// file does not exist it returns DefaultConfig(). On JSON error it returns
// defaults with the error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse %s: %w", path, err)
	}
	_ = cfg.Validate()
	return cfg, nil
}

// Save writes the configuration to the given path in JSON format, creating
// the parent directory.
func (c *Config) Save(path string) error {
	_ = c.Validate()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}
