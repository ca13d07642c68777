// env.go - Environment variable configuration for rxledger
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every automatically bound environment variable,
// e.g. RXLEDGER_LEDGER_RPC_URL for ledger.rpc_url.
const EnvPrefix = "RXLEDGER"

// envBinding holds metadata for explicit environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVars   []string           // names in priority order
	Validate  func(string) error // optional validation function
}

// getEnvBindings returns the explicit bindings. The unprefixed names are the
// ones the original deployment scripts put in .env.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"ledger.rpc_url", []string{"RXLEDGER_LEDGER_RPC_URL", "BLOCKCHAIN_URL"}, validateEnvURL},
		{"ledger.private_key", []string{"RXLEDGER_LEDGER_PRIVATE_KEY", "ADMIN_PRIVATE_KEY"}, nil},
		{"ledger.contract_address", []string{"RXLEDGER_LEDGER_CONTRACT_ADDRESS", "CONTRACT_ADDRESS"}, nil},
		{"detector.url", []string{"RXLEDGER_DETECTOR_URL", "COLAB_API_URL"}, validateEnvURL},
		{"telemetry.sentry_dsn", []string{"RXLEDGER_TELEMETRY_SENTRY_DSN", "SENTRY_DSN"}, nil},
	}
}

// bindEnvVars sets up explicit environment variable bindings with validation
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		args := append([]string{binding.ConfigKey}, binding.EnvVars...)
		if err := v.BindEnv(args...); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", strings.Join(binding.EnvVars, "/"), err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		for _, name := range binding.EnvVars {
			if value := os.Getenv(name); value != "" {
				if err := binding.Validate(value); err != nil {
					warnings = append(warnings, fmt.Sprintf("invalid %s value: %v", name, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// validateEnvURL accepts absolute http(s) and ws(s) URLs
func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return bindEnvVars(v)
}
