// Package config loads process configuration: environment variables for
// the store location and acting agent, and the CUE governance policy file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Env is the configuration read from the environment. Command-line flags
// override every field.
type Env struct {
	DB       string `env:"STATEGRAPH_DB"`
	Agent    string `env:"STATEGRAPH_AGENT" envDefault:"user"`
	Policy   string `env:"STATEGRAPH_POLICY"`
	LogLevel string `env:"STATEGRAPH_LOG_LEVEL" envDefault:"warn"`
}

// LoadEnv parses the environment. An unset STATEGRAPH_DB resolves to
// DefaultDBPath.
func LoadEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	if e.DB == "" {
		e.DB = DefaultDBPath()
	}
	return e, nil
}

// DefaultDBPath is ~/.local/share/stategraph/state.db, or state.db in the
// working directory when the home directory is unknown.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "state.db"
	}
	return filepath.Join(home, ".local", "share", "stategraph", "state.db")
}
