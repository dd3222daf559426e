package config

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing or invalid configuration value.
// It aborts the run before any scenario starts.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s (%s) %s", e.Key, EnvName(e.Key), e.Message)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
