package config

import (
	"path/filepath"
)

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Mapfile       MapfileConfig           `mapstructure:"mapfile"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Metrics       MetricsConfig           `mapstructure:"metrics"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MapfileConfig drives generation and patching.
type MapfileConfig struct {
	BaseDir        string          `mapstructure:"basedir"`
	Config         string          `mapstructure:"config"` // layer catalogue (geomet-weather.yml)
	URL            string          `mapstructure:"url"`    // public service URL
	Storage        string          `mapstructure:"storage"`
	Namespace      string          `mapstructure:"namespace"`
	FactsNamespace string          `mapstructure:"facts_namespace"`
	BaseTemplate   string          `mapstructure:"base_template"`
	Symbols        string          `mapstructure:"symbols"`
	ResourcesDir   string          `mapstructure:"resources_dir"`
	MCFDir         string          `mapstructure:"mcf_dir"`
	MetadataURL    string          `mapstructure:"metadata_url"` // zip archive of MCF files
	Mode           string          `mapstructure:"mode"` // include or monolithic
	Strict         bool            `mapstructure:"strict"`
	Concurrency    int             `mapstructure:"concurrency"`
	Timeout        int             `mapstructure:"timeout"` // milliseconds
	TileIndex      TileIndexConfig `mapstructure:"tileindex"`
}

type TileIndexConfig struct {
	URL  string `mapstructure:"url"`
	Type string `mapstructure:"type"` // connection type of the companion tile index layer
}

// OutputDir is where mapfiles are written.
func (m MapfileConfig) OutputDir() string {
	return filepath.Join(m.BaseDir, "mapfile")
}

// UsesStore reports whether artifacts are mirrored to the key-value store.
func (m MapfileConfig) UsesStore() bool {
	return m.Storage == StorageStore
}

const (
	StorageFile  = "file"
	StorageStore = "store"

	ModeInclude    = "include"
	ModeMonolithic = "monolithic"
)

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type NotificationConfig struct {
	SNS struct {
		Enabled  bool   `mapstructure:"enabled"`
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}
