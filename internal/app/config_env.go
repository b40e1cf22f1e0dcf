package app

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment variable the application reads.
const EnvPrefix = "FICTRACKER_"

// ApplyEnvOverrides overwrites cfg fields whose environment variable is set.
// Unset variables leave the current value untouched, so env sits above the
// config file and below explicit flags.
func ApplyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	return nil
}
