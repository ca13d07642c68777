// Package conf loads rxledger settings from defaults, config.yaml, .env and the environment.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rxledger/rxledger/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// LedgerSettings contains settings for the blockchain node and verification contract.
type LedgerSettings struct {
	RPCURL          string        `mapstructure:"rpc_url" yaml:"rpc_url"`                   // JSON-RPC endpoint of the node
	ContractAddress string        `mapstructure:"contract_address" yaml:"contract_address"` // deployed verification contract
	PrivateKey      string        `mapstructure:"private_key" yaml:"private_key"`           // hex-encoded signing key or ${VAR}
	PrivateKeyFile  string        `mapstructure:"private_key_file" yaml:"private_key_file"` // mounted secret; wins over private_key
	ChainID         int64         `mapstructure:"chain_id" yaml:"chain_id"`                 // 0 queries the node
	GasLimitBase    uint64        `mapstructure:"gas_limit_base" yaml:"gas_limit_base"`     // gas for an empty payload
	GasPerByte      uint64        `mapstructure:"gas_per_byte" yaml:"gas_per_byte"`         // extra gas per payload byte
	GasLimitMax     uint64        `mapstructure:"gas_limit_max" yaml:"gas_limit_max"`       // upper bound for one append
	MiningTimeout   time.Duration `mapstructure:"mining_timeout" yaml:"mining_timeout"`     // bound on waiting for a receipt
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`       // receipt polling interval
	CallTimeout     time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`         // bound on read-only contract calls
}

// DetectorSettings contains settings for the external image detection service.
type DetectorSettings struct {
	URL       string        `mapstructure:"url" yaml:"url"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second, 0 disables
	RateBurst int           `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// SQLiteSettings contains settings for the SQLite backend.
type SQLiteSettings struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MySQLSettings contains settings for the MySQL backend.
type MySQLSettings struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// DatabaseSettings selects and configures the local store.
type DatabaseSettings struct {
	Type   string         `mapstructure:"type" yaml:"type"` // sqlite or mysql
	SQLite SQLiteSettings `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL  MySQLSettings  `mapstructure:"mysql" yaml:"mysql"`
}

// CacheSettings configures the in-memory tier of the fingerprint cache.
type CacheSettings struct {
	TTL             time.Duration `mapstructure:"ttl" yaml:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// MediaSettings contains paths for derived media.
type MediaSettings struct {
	CropDir string `mapstructure:"crop_dir" yaml:"crop_dir"` // per-detection crops are written here
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Debug  bool   `mapstructure:"debug" yaml:"debug"`
}

// TelemetrySettings contains settings for error reporting.
type TelemetrySettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Settings contains all configuration options for rxledger.
type Settings struct {
	Debug     bool                 `mapstructure:"debug" yaml:"debug"`
	Logging   logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Ledger    LedgerSettings       `mapstructure:"ledger" yaml:"ledger"`
	Detector  DetectorSettings     `mapstructure:"detector" yaml:"detector"`
	Database  DatabaseSettings     `mapstructure:"database" yaml:"database"`
	Cache     CacheSettings        `mapstructure:"cache" yaml:"cache"`
	Media     MediaSettings        `mapstructure:"media" yaml:"media"`
	WebServer WebServerSettings    `mapstructure:"webserver" yaml:"webserver"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env, the configuration file and environment variables into the
// global viper instance and returns validated settings.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := load(viper.GetViper(), "")
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// LoadFile reads settings from an explicit config file using a private viper
// instance. A missing file is an error.
func LoadFile(path string) (*Settings, error) {
	return load(viper.New(), path)
}

func load(v *viper.Viper, configFile string) (*Settings, error) {
	loadDotEnv()

	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// loadDotEnv loads a .env file from the working directory when present.
// Variables already set in the environment are not overridden.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err != nil {
		return
	}
	if err := godotenv.Load(); err != nil {
		GetLogger().Warn("failed to load .env file", logger.Error(err))
	}
}

// initViper sets defaults, environment bindings and reads the configuration file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it back
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	data, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the settings loaded by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetLogger returns the config package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
