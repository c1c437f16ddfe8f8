package utils

import (
	"os"
	"strconv"

	"github.com/coachline/coachline-backend/internal/logger"
)

// GetEnv reads key from the environment, falling back to defaultVal when it
// is unset. A nil log skips the lookup trace.
func GetEnv(key, defaultVal string, log *logger.Logger) string {
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Env var unset, falling back", "env_var", key, "fallback", defaultVal)
		}
		return defaultVal
	}
	return val
}

// GetEnvAsInt is GetEnv for integer settings. Unset or unparsable values
// fall back to defaultVal.
func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("Env var unset, falling back", "env_var", key, "fallback", defaultVal)
		}
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Warn("Env var is not an integer, falling back",
				"env_var", key,
				"value", valStr,
				"fallback", defaultVal,
			)
		}
		return defaultVal
	}
	return i
}
