package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/hbomb79/Verto/internal/api"
	"github.com/hbomb79/Verto/internal/database"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/mitchellh/go-homedir"
)

const (
	DefaultConfigPath      = "~/.config/verto/config.yaml"
	DefaultPreferencesPath = "~/.config/verto/preferences.yaml"
	DefaultOutputDir       = "~/Verto"
)

var ErrHistoryCredentials = errors.New("history is enabled but no database credentials were provided")

// VertoConfig is the struct used to contain the various user config
// supplied by file and/or the environment.
type VertoConfig struct {
	Engine          engine.Config  `yaml:"engine"`
	PreferencesPath string         `yaml:"preferences_path" env:"PREFERENCES_PATH" env-default:"~/.config/verto/preferences.yaml"`
	OutputDir       string         `yaml:"output_dir" env:"OUTPUT_DIR" env-default:"~/Verto"`
	LogLevel        string         `yaml:"log_level" env:"LOG_LEVEL" env-default:"INFO"`
	Rest            api.RestConfig `yaml:"rest"`
	History         HistoryConfig  `yaml:"history"`
}

// HistoryConfig enables the optional Postgres ledger of completed
// conversion outputs.
type HistoryConfig struct {
	Enabled  bool            `yaml:"enabled" env:"HISTORY_ENABLED" env-default:"false"`
	Database database.Config `yaml:"database"`
}

// Load reads the configuration from the YAML file at the path provided,
// applying environment overrides and defaults. If the file does not exist,
// the configuration is read from the environment alone. An empty path
// selects DefaultConfigPath.
func Load(path string) (*VertoConfig, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	path, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand config path: %w", err)
	}

	config := &VertoConfig{}
	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("failed to load configuration from environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, statErr)
	}

	if err := config.expandPaths(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration for values which cannot be used.
func (config *VertoConfig) Validate() error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if config.History.Enabled && (config.History.Database.User == "" || config.History.Database.Password == "") {
		return ErrHistoryCredentials
	}

	return nil
}

func (config *VertoConfig) expandPaths() error {
	for _, path := range []*string{&config.PreferencesPath, &config.OutputDir, &config.Engine.WorkDir, &config.Rest.InputRoot} {
		expanded, err := homedir.Expand(*path)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *path, err)
		}

		*path = expanded
	}

	return nil
}
