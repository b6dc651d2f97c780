// Config loads configuration.
package config

import (
	"os"
	"strconv"
)

const Version = "0.3"

// GetInt loads the environment variable varName, converts it to an integer,
// and returns that integer or an error.
func GetInt(varName string) (int, error) {
	envVar := os.Getenv(varName)
	return strconv.Atoi(envVar)
}

// GetString loads the environment variable varName, falling back to
// defaultVal if it is unset or empty.
func GetString(varName string, defaultVal string) string {
	if v := os.Getenv(varName); v != "" {
		return v
	}
	return defaultVal
}
