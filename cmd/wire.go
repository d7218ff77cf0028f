package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/filipezaidan/google-meet-captions/internal/config"
	"github.com/filipezaidan/google-meet-captions/internal/db"
	"github.com/filipezaidan/google-meet-captions/internal/recorder"
	"github.com/spf13/viper"
)

const configEnv = "CAPTIONS_CONFIG"

type app struct {
	cfg        *config.Config
	viper      *viper.Viper
	configPath string
	log        *slog.Logger
	now        func() time.Time
}

func wireApp() (*app, error) {
	path := envOrDefault(configEnv, config.DefaultPath())

	cfg, v, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	return &app{
		cfg:        cfg,
		viper:      v,
		configPath: path,
		log:        log,
		now:        time.Now,
	}, nil
}

// storeOpener returns the recorder's lazy store constructor for path.
func storeOpener(path string) recorder.OpenFunc {
	return func() (recorder.Store, error) {
		s, err := db.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
