// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/rxledger/rxledger/internal/secrets"
)

var (
	addressPattern    = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	privateKeyPattern = regexp.MustCompile(`^(0x)?[0-9a-fA-F]{64}$`)
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	for _, err := range []error{
		validateLedgerSettings(&settings.Ledger),
		validateDetectorSettings(&settings.Detector),
		validateDatabaseSettings(&settings.Database),
		validateCacheSettings(&settings.Cache),
		validateMediaSettings(&settings.Media),
		validateWebServerSettings(&settings.WebServer),
		validateTelemetrySettings(&settings.Telemetry),
	} {
		if err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// joinErrs folds section problems into one error
func joinErrs(section string, errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%s settings errors: %s", section, strings.Join(errs, ", "))
}

// validateLedgerSettings checks formats only; presence of contract address and
// key is enforced when the ledger client is opened.
func validateLedgerSettings(settings *LedgerSettings) error {
	var errs []string

	if settings.RPCURL == "" {
		errs = append(errs, "rpc_url must not be empty")
	} else if err := validateEnvURL(settings.RPCURL); err != nil {
		errs = append(errs, fmt.Sprintf("rpc_url is invalid: %v", err))
	}

	if settings.ContractAddress != "" && !addressPattern.MatchString(settings.ContractAddress) {
		errs = append(errs, "contract_address must be a 0x-prefixed 20-byte hex address")
	}

	if settings.PrivateKeyFile == "" && settings.PrivateKey != "" &&
		!secrets.IsReference(settings.PrivateKey) && !privateKeyPattern.MatchString(settings.PrivateKey) {
		errs = append(errs, "private_key must be 32 bytes of hex")
	}

	if settings.ChainID < 0 {
		errs = append(errs, "chain_id must not be negative")
	}

	if settings.GasLimitBase == 0 {
		errs = append(errs, "gas_limit_base must be greater than 0")
	}
	if settings.GasLimitMax < settings.GasLimitBase {
		errs = append(errs, "gas_limit_max must be at least gas_limit_base")
	}

	if settings.MiningTimeout <= 0 {
		errs = append(errs, "mining_timeout must be positive")
	}
	if settings.PollInterval <= 0 {
		errs = append(errs, "poll_interval must be positive")
	} else if settings.MiningTimeout > 0 && settings.PollInterval >= settings.MiningTimeout {
		errs = append(errs, "poll_interval must be shorter than mining_timeout")
	}
	if settings.CallTimeout <= 0 {
		errs = append(errs, "call_timeout must be positive")
	}

	return joinErrs("ledger", errs)
}

func validateDetectorSettings(settings *DetectorSettings) error {
	var errs []string

	if settings.URL == "" {
		errs = append(errs, "url must not be empty")
	} else if err := validateEnvURL(settings.URL); err != nil {
		errs = append(errs, fmt.Sprintf("url is invalid: %v", err))
	}

	if settings.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}

	if settings.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}
	if settings.RateLimit > 0 && settings.RateBurst < 1 {
		errs = append(errs, "rate_burst must be at least 1 when rate_limit is set")
	}

	return joinErrs("detector", errs)
}

func validateDatabaseSettings(settings *DatabaseSettings) error {
	var errs []string

	switch settings.Type {
	case "sqlite":
		if settings.SQLite.Path == "" {
			errs = append(errs, "sqlite.path must not be empty")
		}
	case "mysql":
		if settings.MySQL.Host == "" {
			errs = append(errs, "mysql.host must not be empty")
		}
		if settings.MySQL.Database == "" {
			errs = append(errs, "mysql.database must not be empty")
		}
		if settings.MySQL.Port < 1 || settings.MySQL.Port > 65535 {
			errs = append(errs, "mysql.port must be between 1 and 65535")
		}
	default:
		errs = append(errs, fmt.Sprintf("type %q is not supported, use sqlite or mysql", settings.Type))
	}

	return joinErrs("database", errs)
}

func validateCacheSettings(settings *CacheSettings) error {
	var errs []string

	if settings.TTL <= 0 {
		errs = append(errs, "ttl must be positive")
	}
	if settings.CleanupInterval < 0 {
		errs = append(errs, "cleanup_interval must not be negative")
	}

	return joinErrs("cache", errs)
}

func validateMediaSettings(settings *MediaSettings) error {
	if strings.TrimSpace(settings.CropDir) == "" {
		return joinErrs("media", []string{"crop_dir must not be empty"})
	}
	return nil
}

func validateWebServerSettings(settings *WebServerSettings) error {
	if settings.Listen == "" {
		return joinErrs("webserver", []string{"listen must not be empty"})
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return joinErrs("webserver", []string{fmt.Sprintf("listen %q is not host:port", settings.Listen)})
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if settings.Enabled && settings.SentryDSN == "" {
		return joinErrs("telemetry", []string{"sentry_dsn is required when telemetry is enabled"})
	}
	return nil
}
