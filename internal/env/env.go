package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GetString returns the first non-empty value among key and its aliases.
func GetString(key string, defaultValue string, aliases ...string) string {
	for _, k := range append([]string{key}, aliases...) {
		if value, exists := os.LookupEnv(k); exists && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}

	return defaultValue
}

func GetInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

func GetBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolValue
}

func GetDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}

	return d
}

// GetDecimal ignores values that are not strictly positive numbers.
func GetDecimal(key string, defaultValue string, aliases ...string) decimal.Decimal {
	fallback := decimal.RequireFromString(defaultValue)

	raw := GetString(key, "", aliases...)
	if raw == "" {
		return fallback
	}

	d, err := decimal.NewFromString(raw)
	if err != nil || !d.IsPositive() {
		return fallback
	}

	return d
}

func GetFloat(key string, defaultValue float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return f
}
