package utils

import (
	"errors"
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		want  error
	}{
		{"admin@example.com", nil},
		{"Admin@Example.COM", nil},
		{"first.last+tag@mail.example.co.uk", nil},
		{"a@b.io", nil},
		{"no-at-sign.example.com", ErrEmailInvalidFormat},
		{"two@@example.com", ErrEmailInvalidFormat},
		{"@example.com", ErrEmailLocalPartLength},
		{".dot@example.com", ErrEmailLocalPartDot},
		{"double..dot@example.com", ErrEmailConsecutiveDots},
		{"sp ace@example.com", ErrEmailLocalPartChars},
		{"admin@localhost", ErrEmailDomainNoTLD},
		{"admin@-bad.com", ErrEmailDomainFormat},
		{"admin@example.c", ErrEmailDomainFormat},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			if err := ValidateEmail(tt.email); !errors.Is(err, tt.want) {
				t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, err, tt.want)
			}
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Admin@Example.COM "); got != "admin@example.com" {
		t.Errorf("NormalizeEmail() = %q", got)
	}
}
