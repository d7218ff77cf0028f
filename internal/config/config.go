// Package config loads daemon and client settings from a TOML file with
// CAPTIONS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/caption"
	"github.com/filipezaidan/google-meet-captions/internal/daemon"
	"github.com/filipezaidan/google-meet-captions/internal/page"
	"github.com/filipezaidan/google-meet-captions/internal/recorder"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = "captions"
	envPrefix  = "CAPTIONS"

	KeySocket         = "socket"
	KeyDBPath         = "db.path"
	KeyExportDir      = "export.dir"
	KeyListen         = "listen"
	KeyDebounce       = "capture.debounce"
	KeyBackupInterval = "capture.backup_interval"
	KeyLabels         = "capture.labels"
	KeyLogLevel       = "log.level"

	// DefaultListen is where the page hub accepts observer connections.
	DefaultListen = "127.0.0.1:7431"
)

// Config is the decoded settings tree.
type Config struct {
	Socket  string        `mapstructure:"socket"`
	Listen  string        `mapstructure:"listen"`
	DB      DBConfig      `mapstructure:"db"`
	Export  ExportConfig  `mapstructure:"export"`
	Capture CaptureConfig `mapstructure:"capture"`
	Log     LogConfig     `mapstructure:"log"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

type CaptureConfig struct {
	Debounce       time.Duration `mapstructure:"debounce"`
	BackupInterval time.Duration `mapstructure:"backup_interval"`
	Labels         []string      `mapstructure:"labels"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Dir returns the directory holding the config file, the socket and the
// database.
func Dir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, configDir)
}

// DefaultPath returns the config file path.
func DefaultPath() string {
	return filepath.Join(Dir(), configName+"."+configType)
}

// Defaults returns the settings used when neither file nor environment
// sets a key.
func Defaults() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Socket: daemon.SocketPath(),
		Listen: DefaultListen,
		DB:     DBConfig{Path: filepath.Join(Dir(), "captions.sqlite")},
		Export: ExportConfig{Dir: filepath.Join(home, "Downloads")},
		Capture: CaptureConfig{
			Debounce:       caption.DefaultDebounce,
			BackupInterval: recorder.DefaultBackupInterval,
			Labels:         append([]string(nil), page.DefaultLabels...),
		},
		Log: LogConfig{Level: "info"},
	}
}

// New returns a viper instance reading path (DefaultPath when empty) over
// the defaults and the environment. A missing file is not an error.
func New(path string) (*viper.Viper, error) {
	if path == "" {
		path = DefaultPath()
	}

	d := Defaults()
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(configType)
	v.SetDefault(KeySocket, d.Socket)
	v.SetDefault(KeyListen, d.Listen)
	v.SetDefault(KeyDBPath, d.DB.Path)
	v.SetDefault(KeyExportDir, d.Export.Dir)
	v.SetDefault(KeyDebounce, d.Capture.Debounce)
	v.SetDefault(KeyBackupInterval, d.Capture.BackupInterval)
	v.SetDefault(KeyLabels, d.Capture.Labels)
	v.SetDefault(KeyLogLevel, d.Log.Level)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals v into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if c.Capture.Debounce <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %s", KeyDebounce, c.Capture.Debounce)
	}
	if c.Capture.BackupInterval <= 0 {
		return nil, fmt.Errorf("%s must be positive, got %s", KeyBackupInterval, c.Capture.BackupInterval)
	}
	return &c, nil
}

// Load is New followed by Decode.
func Load(path string) (*Config, *viper.Viper, error) {
	v, err := New(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := Decode(v)
	if err != nil {
		return nil, nil, err
	}
	return c, v, nil
}

// Selectors returns the caption region lookup table for the configured
// labels, falling back to the built-in table.
func (c *Config) Selectors() []page.Selector {
	var labels []string
	for _, l := range c.Capture.Labels {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		return page.DefaultSelectors
	}
	return page.SelectorsFor(labels)
}

// SlogLevel maps log.level onto a slog level. Unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Recorder returns the engine settings.
func (c *Config) Recorder() recorder.Config {
	return recorder.Config{
		Debounce:       c.Capture.Debounce,
		BackupInterval: c.Capture.BackupInterval,
		ExportDir:      c.Export.Dir,
		Selectors:      c.Selectors(),
	}
}

// Watch calls fn with the re-decoded config whenever the file behind v is
// written. Decode failures are logged and skipped. It is a no-op when v was
// built without an existing file.
func Watch(v *viper.Viper, log *slog.Logger, fn func(*Config)) {
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		log.Debug("Config file absent, not watching", "path", v.ConfigFileUsed())
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		c, err := Decode(v)
		if err != nil {
			log.Warn("Ignoring invalid config change", "path", e.Name, "error", err)
			return
		}
		log.Info("Config reloaded", "path", e.Name)
		fn(c)
	})
	v.WatchConfig()
}
