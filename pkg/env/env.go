package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of the given environment variable or a fallback.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// InstanceID names the running process for log correlation.
func InstanceID(fallback string) string {
	for _, key := range []string{"INSTANCE_ID", "HOSTNAME"} {
		if val := Get(key, ""); val != "" {
			return val
		}
	}
	return fallback
}
