// Package config provides environment-based configuration helpers.
package config

import "os"

// GetEnv retrieves an environment variable or returns a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// LookupEnv retrieves an environment variable and reports whether it is set
// to a non-empty value.
func LookupEnv(key string) (string, bool) {
	value := os.Getenv(key)
	return value, value != ""
}
