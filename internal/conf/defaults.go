// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values used by setDefaultConfig and referenced by tests.
const (
	DefaultRPCURL        = "http://127.0.0.1:8545"
	DefaultDetectorURL   = "http://127.0.0.1:5000"
	DefaultGasLimitBase  = 500000
	DefaultGasPerByte    = 16
	DefaultGasLimitMax   = 8000000
	DefaultMiningTimeout = 2 * time.Minute
	DefaultPollInterval  = time.Second
	DefaultCallTimeout   = 15 * time.Second
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/rxledger.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("ledger.rpc_url", DefaultRPCURL)
	v.SetDefault("ledger.contract_address", "")
	v.SetDefault("ledger.private_key", "")
	v.SetDefault("ledger.private_key_file", "")
	v.SetDefault("ledger.chain_id", 0)
	v.SetDefault("ledger.gas_limit_base", DefaultGasLimitBase)
	v.SetDefault("ledger.gas_per_byte", DefaultGasPerByte)
	v.SetDefault("ledger.gas_limit_max", DefaultGasLimitMax)
	v.SetDefault("ledger.mining_timeout", DefaultMiningTimeout)
	v.SetDefault("ledger.poll_interval", DefaultPollInterval)
	v.SetDefault("ledger.call_timeout", DefaultCallTimeout)

	v.SetDefault("detector.url", DefaultDetectorURL)
	v.SetDefault("detector.timeout", 30*time.Second)
	v.SetDefault("detector.rate_limit", 5.0)
	v.SetDefault("detector.rate_burst", 5)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.sqlite.path", "rxledger.db")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "rxledger")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "rxledger")

	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.cleanup_interval", 5*time.Minute)

	v.SetDefault("media.crop_dir", "media/crops")

	v.SetDefault("webserver.listen", ":8080")
	v.SetDefault("webserver.debug", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")
}
