package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config defines engine and server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	DB        DBConfig        `yaml:"db" toml:"db"`
	Log       LogConfig       `yaml:"log" toml:"log"`
	Viewer    ViewerConfig    `yaml:"viewer" toml:"viewer"`
	Bridge    BridgeConfig    `yaml:"bridge" toml:"bridge"`
	Autosave  AutosaveConfig  `yaml:"autosave" toml:"autosave"`
	Assets    AssetsConfig    `yaml:"assets" toml:"assets"`
}

type ServerConfig struct {
	Host string `yaml:"host" toml:"host"`
	Port int    `yaml:"port" toml:"port"`
}

// TransportConfig selects how the MCP server is exposed: "stdio" or "http".
type TransportConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
}

type DBConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	Path  string `yaml:"path" toml:"path"`
}

// ViewerConfig tunes reconciliation and device-loss recovery.
type ViewerConfig struct {
	SettleDelay      Duration `yaml:"settle_delay" toml:"settle_delay"`
	RetriggerEvery   Duration `yaml:"retrigger_every" toml:"retrigger_every"`
	FocusDelay       Duration `yaml:"focus_delay" toml:"focus_delay"`
	ZoomFactor       float64  `yaml:"zoom_factor" toml:"zoom_factor"`
	ZoomDuration     Duration `yaml:"zoom_duration" toml:"zoom_duration"`
	ProbeConcurrency int      `yaml:"probe_concurrency" toml:"probe_concurrency"`
}

type BridgeConfig struct {
	MarkerDebounce Duration `yaml:"marker_debounce" toml:"marker_debounce"`
}

type AutosaveConfig struct {
	Enabled bool     `yaml:"enabled" toml:"enabled"`
	Delay   Duration `yaml:"delay" toml:"delay"`
}

// AssetsConfig controls folder discovery and the missing-asset watcher.
type AssetsConfig struct {
	Watch         bool     `yaml:"watch" toml:"watch"`
	WatchDebounce Duration `yaml:"watch_debounce" toml:"watch_debounce"`
	Patterns      []string `yaml:"patterns" toml:"patterns"`
}

// Duration is a time.Duration written as "500ms" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "stdio",
		},
		DB: DBConfig{
			Path: "rotgis.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Viewer: ViewerConfig{
			SettleDelay:      Duration(time.Second),
			RetriggerEvery:   Duration(2 * time.Second),
			FocusDelay:       Duration(400 * time.Millisecond),
			ZoomFactor:       1.2,
			ZoomDuration:     Duration(1500 * time.Millisecond),
			ProbeConcurrency: 8,
		},
		Bridge: BridgeConfig{
			MarkerDebounce: Duration(300 * time.Millisecond),
		},
		Autosave: AutosaveConfig{
			Enabled: true,
			Delay:   Duration(500 * time.Millisecond),
		},
		Assets: AssetsConfig{
			Watch:         true,
			WatchDebounce: Duration(250 * time.Millisecond),
			Patterns:      []string{"**/metadata.json", "**/cloud.js"},
		},
	}
}

// Load reads configuration from an optional YAML or TOML file and
// environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("ROTGIS_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if host := os.Getenv("ROTGIS_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("ROTGIS_SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid ROTGIS_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if mode := os.Getenv("ROTGIS_TRANSPORT"); mode != "" {
		cfg.Transport.Mode = mode
	}
	if dbPath := os.Getenv("ROTGIS_DB_PATH"); dbPath != "" {
		cfg.DB.Path = dbPath
	}
	if level := os.Getenv("ROTGIS_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if logPath := os.Getenv("ROTGIS_LOG_PATH"); logPath != "" {
		cfg.Log.Path = logPath
	}
	if delay := os.Getenv("ROTGIS_AUTOSAVE_DELAY"); delay != "" {
		if err := cfg.Autosave.Delay.UnmarshalText([]byte(delay)); err != nil {
			return fmt.Errorf("invalid ROTGIS_AUTOSAVE_DELAY: %w", err)
		}
	}
	if enabled := os.Getenv("ROTGIS_AUTOSAVE_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid ROTGIS_AUTOSAVE_ENABLED: %w", err)
		}
		cfg.Autosave.Enabled = v
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("unknown transport mode %q", c.Transport.Mode))
	}
	if c.Transport.Mode == "http" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid server port %d", c.Server.Port))
	}
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"viewer.settle_delay", c.Viewer.SettleDelay},
		{"viewer.focus_delay", c.Viewer.FocusDelay},
		{"viewer.zoom_duration", c.Viewer.ZoomDuration},
		{"bridge.marker_debounce", c.Bridge.MarkerDebounce},
		{"autosave.delay", c.Autosave.Delay},
		{"assets.watch_debounce", c.Assets.WatchDebounce},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", d.name))
		}
	}
	if c.Viewer.RetriggerEvery < 0 {
		errs = append(errs, errors.New("viewer.retrigger_every must not be negative"))
	}
	if c.Viewer.ZoomFactor <= 0 {
		errs = append(errs, errors.New("viewer.zoom_factor must be positive"))
	}
	if c.Viewer.ProbeConcurrency <= 0 {
		errs = append(errs, errors.New("viewer.probe_concurrency must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
