package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

// ErrConfigExists is returned by WriteDefault when the file is already there
// and overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// fileSchema is the on-disk layout. Durations are strings so the file reads
// "300ms" rather than nanoseconds.
type fileSchema struct {
	Socket  string        `toml:"socket"`
	Listen  string        `toml:"listen"`
	DB      dbSchema      `toml:"db"`
	Export  exportSchema  `toml:"export"`
	Capture captureSchema `toml:"capture"`
	Log     logSchema     `toml:"log"`
}

type dbSchema struct {
	Path string `toml:"path"`
}

type exportSchema struct {
	Dir string `toml:"dir"`
}

type captureSchema struct {
	Debounce       string   `toml:"debounce"`
	BackupInterval string   `toml:"backup_interval"`
	Labels         []string `toml:"labels"`
}

type logSchema struct {
	Level string `toml:"level"`
}

func toSchema(c Config) fileSchema {
	return fileSchema{
		Socket: c.Socket,
		Listen: c.Listen,
		DB:     dbSchema{Path: c.DB.Path},
		Export: exportSchema{Dir: c.Export.Dir},
		Capture: captureSchema{
			Debounce:       c.Capture.Debounce.String(),
			BackupInterval: c.Capture.BackupInterval.String(),
			Labels:         c.Capture.Labels,
		},
		Log: logSchema{Level: c.Log.Level},
	}
}

// WriteDefault writes the default settings to path and returns the path
// written.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil && !overwrite {
		return "", fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	data, err := toml.Marshal(toSchema(Defaults()))
	if err != nil {
		return "", fmt.Errorf("encode config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirMode); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("create temp config file: %w", err)
	}
	tempName := tempFile.Name()
	defer os.Remove(tempName)

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("write temp config file: %w", err)
	}
	if err := tempFile.Chmod(configFileMode); err != nil {
		tempFile.Close()
		return "", fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return "", fmt.Errorf("replace config file: %w", err)
	}
	return path, nil
}
