package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/scriptsmith/scriptgraph/scriptgraph"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Script   ScriptConfig   `mapstructure:"script"`
	Notifier NotifierConfig `mapstructure:"notifier"`
	Diff     DiffConfig     `mapstructure:"diff"`
	Import   ImportConfig   `mapstructure:"import"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
	// Embedded-only configuration
	LibSQLDataDir string `mapstructure:"libsql_data_dir"` // Directory for database files
}

// ScriptConfig stores turn-engine specific configuration.
type ScriptConfig struct {
	Database DatabaseConfig `mapstructure:"database"`

	// AutoAcceptOnEdit controls the accepted flag of a freshly created
	// revision: true publishes the edit immediately, false parks it pending
	// review. Both behaviors are supported; the flag makes the choice
	// explicit instead of an accident of history.
	AutoAcceptOnEdit bool `mapstructure:"auto_accept_on_edit"`
}

// NotifierConfig stores change-notification settings.
type NotifierConfig struct {
	Enabled    bool `mapstructure:"enabled"`     // Publish change events at all
	BufferSize int  `mapstructure:"buffer_size"` // Per-subscriber channel buffer
}

// DiffConfig stores diff-worker settings.
type DiffConfig struct {
	Enabled     bool `mapstructure:"enabled"`     // Run the diff worker
	Concurrency int  `mapstructure:"concurrency"` // Max concurrent diff computations
}

// ImportConfig stores script-importer settings.
type ImportConfig struct {
	WatchDir string `mapstructure:"watch_dir"` // Directory watched for dropped script JSON
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("script.database.dsn", internal.DefaultDatabaseDSN)
	viper.SetDefault("script.database.type", internal.DefaultDatabaseType)
	viper.SetDefault("script.database.libsql_data_dir", internal.DefaultDatabaseDir)
	viper.SetDefault("script.auto_accept_on_edit", true)

	viper.SetDefault("notifier.enabled", true)
	viper.SetDefault("notifier.buffer_size", 64)

	viper.SetDefault("diff.enabled", true)
	viper.SetDefault("diff.concurrency", 4)

	viper.SetDefault("import.watch_dir", "./drop")

	viper.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. script.auto_accept_on_edit
	// becomes SCRIPT_AUTO_ACCEPT_ON_EDIT
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used. This is not an error
			// for the application to halt on.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
