// Package secrets resolves credentials that may come from a mounted file
// (Docker or Kubernetes secrets) or from ${VAR} references in config values.
// Resolved values never appear in errors or logs.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/logger"
)

// maxFileSize bounds secret file reads. Keys and passwords are small.
const maxFileSize = 64 * 1024

// ExpandString expands ${VAR} and ${VAR:-default} references. A reference
// without a default to an unset variable is an error naming the variable.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", configError(fmt.Sprintf("missing required environment variable(s): %s", strings.Join(missing, ", ")))
	}
	return expanded, nil
}

// IsReference reports whether s contains a ${VAR} reference.
func IsReference(s string) bool {
	return strings.Contains(s, "${")
}

// ReadFile reads a secret file, trimming trailing newlines. Files readable by
// group or other are accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", configError("secret file path is empty")
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	switch {
	case os.IsNotExist(err):
		return "", configError(fmt.Sprintf("secret file not found: %s", clean))
	case err != nil:
		return "", configError(fmt.Sprintf("stat secret file %s: %v", clean, err))
	case !info.Mode().IsRegular():
		return "", configError(fmt.Sprintf("secret path is not a regular file: %s", clean))
	case info.Size() > maxFileSize:
		return "", configError(fmt.Sprintf("secret file too large (max %d bytes): %s", maxFileSize, clean))
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is readable by group or other",
			logger.String("path", clean),
			logger.String("mode", fmt.Sprintf("%04o", perm)))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", configError(fmt.Sprintf("read secret file %s: %v", clean, err))
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", configError(fmt.Sprintf("secret file is empty: %s", clean))
	}
	return secret, nil
}

// Resolve returns the secret from filePath when set, otherwise value with
// environment references expanded.
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// MustResolve is Resolve that fails when neither source yields a value.
func MustResolve(field, filePath, value string) (string, error) {
	secret, err := Resolve(filePath, value)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", configError(field + " is required")
	}
	return secret, nil
}

func configError(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Build()
}
