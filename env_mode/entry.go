package env_mode

import (
	"os"
	"strings"
	"sync"
)

// ENV_MODE_KEY selects the configuration layer (config.<mode>.yaml) and the
// development-only diagnostics.
const ENV_MODE_KEY = "STRATA_ENV"

// LEGACY_ENV_MODE_KEY is consulted when ENV_MODE_KEY is unset.
const LEGACY_ENV_MODE_KEY = "GO_ENV_MODE"

type ENV_MODE string

const (
	DevMode  ENV_MODE = "development"
	ProMode  ENV_MODE = "production"
	TestMode ENV_MODE = "test"
)

var (
	currentEnv ENV_MODE
	modeMu     sync.RWMutex
)

// ParseEnv normalises a mode name. Unknown and empty names mean development.
func ParseEnv(env string) ENV_MODE {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "production", "prod", "pro":
		return ProMode
	case "test", "testing":
		return TestMode
	default:
		return DevMode
	}
}

// Mode returns the process mode, read from the environment on first use.
func Mode() ENV_MODE {
	modeMu.RLock()
	mode := currentEnv
	modeMu.RUnlock()
	if mode != "" {
		return mode
	}

	modeMu.Lock()
	defer modeMu.Unlock()
	if currentEnv == "" {
		raw, ok := os.LookupEnv(ENV_MODE_KEY)
		if !ok {
			raw = os.Getenv(LEGACY_ENV_MODE_KEY)
		}
		currentEnv = ParseEnv(raw)
	}
	return currentEnv
}

// SetMode overrides the mode for the rest of the process and exports it
// to child processes.
func SetMode(mode ENV_MODE) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentEnv = mode
	os.Setenv(ENV_MODE_KEY, string(mode))
}

// IsDev reports whether the process runs in development mode.
func IsDev() bool { return Mode() == DevMode }
