// Package env reads process environment variables with fallbacks. Structured
// configuration goes through pkg/config; this exists for the handful of knobs
// read before config is loaded, like the log format.
package env

import "os"

// Get returns the variable's value, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
