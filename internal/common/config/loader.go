package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultNamespace      = "geomet-mapfile"
	DefaultFactsNamespace = "geomet-data-registry"
)

// Load reads config.yaml, overlays config.<env>.yaml, expands ${VAR}
// placeholders and applies the GEOMET_MAPFILE_* overrides.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit config file; an empty path searches the
// usual locations.
func LoadFrom(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath(".")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	if path == "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		_ = v.MergeInConfig() // ignore error if not found
	}

	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideFromEnv maps the deployment variables of the mapfile service onto
// the config tree. Values set in the environment win over the YAML files.
func overrideFromEnv(cfg *Config) {
	m := &cfg.Mapfile

	setString := func(dst *string, name string) {
		if val := os.Getenv(name); val != "" {
			*dst = val
		}
	}

	setString(&m.BaseDir, "GEOMET_MAPFILE_BASEDIR")
	setString(&m.Config, "GEOMET_MAPFILE_CONFIG")
	setString(&m.URL, "GEOMET_MAPFILE_URL")
	setString(&m.Storage, "GEOMET_MAPFILE_STORAGE")
	setString(&m.Mode, "GEOMET_MAPFILE_MODE")
	setString(&m.MetadataURL, "GEOMET_MAPFILE_MCF_METADATA")
	setString(&m.TileIndex.URL, "GEOMET_MAPFILE_TILEINDEX_URL")
	setString(&m.TileIndex.Type, "GEOMET_MAPFILE_TILEINDEX_TYPE")
	setString(&cfg.Database.Redis.Address, "GEOMET_MAPFILE_STORE_URL")

	if val := os.Getenv("GEOMET_MAPFILE_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			m.Concurrency = n
		}
	}
	if val := os.Getenv("GEOMET_MAPFILE_STRICT"); val != "" {
		m.Strict = str2bool(val)
	}

	// redis://host:port URLs are accepted for the store address
	cfg.Database.Redis.Address = strings.TrimPrefix(cfg.Database.Redis.Address, "redis://")
	cfg.Database.Redis.Address = strings.TrimSuffix(cfg.Database.Redis.Address, "/")
}

func str2bool(value string) bool {
	switch strings.ToLower(value) {
	case "yes", "true", "t", "1", "on":
		return true
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "geomet-mapfile"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	m := &cfg.Mapfile
	if m.Storage == "" {
		m.Storage = StorageFile
	}
	if m.Mode == "" {
		m.Mode = ModeInclude
	}
	if m.Namespace == "" {
		m.Namespace = DefaultNamespace
	}
	if m.FactsNamespace == "" {
		m.FactsNamespace = DefaultFactsNamespace
	}
	if m.ResourcesDir == "" && m.BaseDir != "" {
		m.ResourcesDir = filepath.Join(m.BaseDir, "resources")
	}
	if m.BaseTemplate == "" && m.ResourcesDir != "" {
		m.BaseTemplate = filepath.Join(m.ResourcesDir, "mapfile-base.json")
	}
	if m.Symbols == "" && m.ResourcesDir != "" {
		m.Symbols = filepath.Join(m.ResourcesDir, "mapserv", "symbols.json")
	}
	if m.MCFDir == "" && m.ResourcesDir != "" {
		m.MCFDir = filepath.Join(m.ResourcesDir, "mcf")
	}
	if m.TileIndex.Type == "" {
		m.TileIndex.Type = "OGR"
	}
	if m.Concurrency == 0 {
		m.Concurrency = 1
	}
	if m.Timeout == 0 {
		m.Timeout = 300000
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 300000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Mapfile.BaseDir == "" {
		return fmt.Errorf("mapfile.basedir is required")
	}
	if cfg.Mapfile.Config == "" {
		return fmt.Errorf("mapfile.config is required")
	}
	if cfg.Mapfile.Storage != StorageFile && cfg.Mapfile.Storage != StorageStore {
		return fmt.Errorf("mapfile.storage must be %q or %q", StorageFile, StorageStore)
	}
	if cfg.Mapfile.Mode != ModeInclude && cfg.Mapfile.Mode != ModeMonolithic {
		return fmt.Errorf("mapfile.mode must be %q or %q", ModeInclude, ModeMonolithic)
	}
	if cfg.Mapfile.Concurrency < 0 {
		return fmt.Errorf("mapfile.concurrency must not be negative")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Notifications.SNS.Enabled && cfg.Notifications.SNS.TopicARN == "" {
		return fmt.Errorf("notifications.sns.topic_arn is required when sns is enabled")
	}
	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       300000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
