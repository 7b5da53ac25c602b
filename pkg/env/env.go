package env

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads variables from a .env file in the working directory when one exists.
// Variables already present in the process environment are not overridden.
func Load(filenames ...string) {
	if err := godotenv.Load(filenames...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}
}

// RequiredStringVariable returns the value of an environment variable or panics if not set.
func RequiredStringVariable(name string) string {
	value := os.Getenv(name)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", name))
	}
	return value
}

// StringVariable returns the value of an environment variable or defaultValue.
func StringVariable(name, defaultValue string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return defaultValue
}

// IntVariable parses an integer variable, falling back to defaultValue when unset.
func IntVariable(name string, defaultValue int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer, got: %s", name, value)
	}
	return parsed, nil
}

// FloatVariable parses a float variable, falling back to defaultValue when unset.
func FloatVariable(name string, defaultValue float64) (float64, error) {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a number, got: %s", name, value)
	}
	return parsed, nil
}

// BoolVariable parses a boolean variable, falling back to defaultValue when unset.
func BoolVariable(name string, defaultValue bool) (bool, error) {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("environment variable %s must be a boolean, got: %s", name, value)
	}
	return parsed, nil
}

// DurationVariable parses a Go duration string such as "30s".
func DurationVariable(name string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be a duration, got: %s", name, value)
	}
	return parsed, nil
}
