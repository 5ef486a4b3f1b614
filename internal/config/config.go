// Package config loads runtime settings. Settings come from a config file
// and CONVEYOR_* environment variables (env wins); the board profile is a
// separate per-project .conveyor.yaml checked into the repository.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// Board connection.
	BoardOwner   string
	BoardRepo    string
	BoardToken   string
	BoardBaseURL string

	// TokenFile, when set, is watched for rotation.
	TokenFile string

	// Local storage.
	MirrorDB     string
	DocstoreDB   string
	ArtifactsDir string

	// Actor used in the audit trail when none is supplied.
	Actor string

	// UndoWindow bounds how old an undoable action may be.
	UndoWindow time.Duration

	// NotifyInterval is the queue consumer tick.
	NotifyInterval time.Duration
}

// Load resolves configuration from the given file (optional), the default
// search paths, and the environment.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONVEYOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigDir())
		v.AddConfigPath(".")
		// A missing config file is fine; env and defaults carry the load.
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{
		BoardOwner:     v.GetString("board.owner"),
		BoardRepo:      v.GetString("board.repo"),
		BoardToken:     v.GetString("board.token"),
		BoardBaseURL:   v.GetString("board.base_url"),
		TokenFile:      v.GetString("board.token_file"),
		MirrorDB:       v.GetString("storage.mirror_db"),
		DocstoreDB:     v.GetString("storage.docstore_db"),
		ArtifactsDir:   v.GetString("storage.artifacts_dir"),
		Actor:          v.GetString("actor"),
		UndoWindow:     v.GetDuration("undo_window"),
		NotifyInterval: v.GetDuration("notify_interval"),
	}

	if cfg.BoardToken == "" && cfg.TokenFile != "" {
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read token file: %w", err)
		}
		cfg.BoardToken = strings.TrimSpace(string(data))
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	dir := defaultConfigDir()
	v.SetDefault("board.base_url", "https://api.github.com")
	v.SetDefault("storage.mirror_db", filepath.Join(dir, "mirror.db"))
	v.SetDefault("storage.docstore_db", filepath.Join(dir, "docstore.db"))
	v.SetDefault("storage.artifacts_dir", filepath.Join(dir, "artifacts"))
	v.SetDefault("actor", "system")
	v.SetDefault("undo_window", "5m")
	v.SetDefault("notify_interval", "10s")
}

// defaultConfigDir is ~/.conveyor, falling back to the working directory when
// no home is resolvable.
func defaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conveyor"
	}
	return filepath.Join(home, ".conveyor")
}

// Validate checks that the settings needed to reach the board are present.
func (c *Config) Validate() error {
	if c.BoardOwner == "" || c.BoardRepo == "" {
		return fmt.Errorf("board.owner and board.repo are required (set CONVEYOR_BOARD_OWNER / CONVEYOR_BOARD_REPO or a board profile)")
	}
	if c.BoardToken == "" {
		return fmt.Errorf("board token is required (set CONVEYOR_BOARD_TOKEN or board.token_file)")
	}
	return nil
}
