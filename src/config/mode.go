// Package config handles installer configuration and mode detection
package config

import (
	"fmt"
	"os"
	"strings"
)

// Mode represents the application execution mode
type Mode string

const (
	// ModeDevelopment is for local development (verbose logging, relaxed cookies)
	ModeDevelopment Mode = "development"
	// ModeProduction is for real deployments
	ModeProduction Mode = "production"
)

// DetectMode determines the application mode from config and environment
// Priority: 1. Config file, 2. Environment variable, 3. Default (production)
func DetectMode(configMode string) Mode {
	if mode, ok := parseMode(configMode); ok {
		return mode
	}

	envMode := os.Getenv("MODE")
	if envMode == "" {
		envMode = os.Getenv("APP_MODE")
	}
	if envMode == "" {
		envMode = os.Getenv("ENVIRONMENT")
	}
	if mode, ok := parseMode(envMode); ok {
		return mode
	}

	return ModeProduction
}

func parseMode(v string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "development", "dev":
		return ModeDevelopment, true
	case "production", "prod":
		return ModeProduction, true
	}
	return "", false
}

// String returns the string representation of the mode
func (m Mode) String() string {
	return string(m)
}

// Validate checks if the mode is valid
func (m Mode) Validate() error {
	if m != ModeDevelopment && m != ModeProduction {
		return fmt.Errorf("invalid mode: %s (must be 'development' or 'production')", m)
	}
	return nil
}

// IsDebug reports whether debug logging is on: development mode or DEBUG set
func IsDebug(m Mode) bool {
	return m == ModeDevelopment || IsTruthy(os.Getenv("DEBUG"))
}
