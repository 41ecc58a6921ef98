package utils

import (
	"errors"
	"regexp"
	"strings"
)

// Email validation errors
var (
	ErrEmailTooLong         = errors.New("email too long (max 254 characters)")
	ErrEmailInvalidFormat   = errors.New("invalid email format")
	ErrEmailLocalPartLength = errors.New("invalid local part length (1-64 characters)")
	ErrEmailLocalPartDot    = errors.New("local part cannot start or end with dot")
	ErrEmailConsecutiveDots = errors.New("local part cannot have consecutive dots")
	ErrEmailDomainNoTLD     = errors.New("domain must have valid TLD")
	ErrEmailLocalPartChars  = errors.New("invalid characters in local part")
	ErrEmailDomainFormat    = errors.New("invalid domain format")
)

var (
	localPartRegex = regexp.MustCompile(`^[a-z0-9.+_-]+$`)
	domainRegex    = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*\.[a-z]{2,}$`)
)

// ValidateEmail checks an address the way the membership application's
// registration form does. Comparison is case-insensitive.
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)

	if len(email) > 254 {
		return ErrEmailTooLong
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ErrEmailInvalidFormat
	}
	local, domain := parts[0], parts[1]

	if len(local) == 0 || len(local) > 64 {
		return ErrEmailLocalPartLength
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return ErrEmailLocalPartDot
	}
	if strings.Contains(local, "..") {
		return ErrEmailConsecutiveDots
	}
	if !localPartRegex.MatchString(local) {
		return ErrEmailLocalPartChars
	}

	if !strings.Contains(domain, ".") {
		return ErrEmailDomainNoTLD
	}
	if !domainRegex.MatchString(domain) {
		return ErrEmailDomainFormat
	}
	return nil
}

// NormalizeEmail lower-cases and trims an address; emails are stored lowercase
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
