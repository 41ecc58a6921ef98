package utils

import (
	"os"

	"golang.org/x/term"
)

// ColorEnabled checks if color output should be used
// Priority: 1. CLI flag -> 2. NO_COLOR env -> 3. Auto-detect
func ColorEnabled() bool {
	switch os.Getenv("CLI_COLOR_MODE") {
	case "always":
		return true
	case "never":
		return false
	}

	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// EmojiEnabled checks if emoji output should be used
func EmojiEnabled() bool {
	return os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb"
}

// Emoji returns the emoji or plain text fallback based on EmojiEnabled
func Emoji(emoji, fallback string) string {
	if EmojiEnabled() {
		return emoji
	}
	return fallback
}

// GetOK returns appropriate OK indicator
func GetOK() string { return Emoji("✅", "[OK]") }

// GetError returns appropriate error indicator
func GetError() string { return Emoji("❌", "[ERROR]") }

// GetWarning returns appropriate warning indicator
func GetWarning() string { return Emoji("⚠️", "[WARN]") }

// GetRocket returns appropriate startup indicator
func GetRocket() string { return Emoji("🚀", "[START]") }

// GetGlobe returns appropriate URL indicator
func GetGlobe() string { return Emoji("🌐", "[WEB]") }
