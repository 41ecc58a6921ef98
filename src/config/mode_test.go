package config

import (
	"testing"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name       string
		configMode string
		envVars    map[string]string
		want       Mode
	}{
		{
			name:       "config development",
			configMode: "development",
			want:       ModeDevelopment,
		},
		{
			name:       "config dev",
			configMode: "dev",
			want:       ModeDevelopment,
		},
		{
			name:       "config prod",
			configMode: "prod",
			want:       ModeProduction,
		},
		{
			name:       "empty defaults to production",
			configMode: "",
			want:       ModeProduction,
		},
		{
			name:       "env MODE development",
			configMode: "",
			envVars:    map[string]string{"MODE": "development"},
			want:       ModeDevelopment,
		},
		{
			name:       "env ENVIRONMENT dev",
			configMode: "",
			envVars:    map[string]string{"ENVIRONMENT": "dev"},
			want:       ModeDevelopment,
		},
		{
			name:       "config takes precedence over env",
			configMode: "production",
			envVars:    map[string]string{"MODE": "development"},
			want:       ModeProduction,
		},
		{
			name:       "garbage falls through to default",
			configMode: "staging",
			want:       ModeProduction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MODE", "")
			t.Setenv("APP_MODE", "")
			t.Setenv("ENVIRONMENT", "")
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			if got := DetectMode(tt.configMode); got != tt.want {
				t.Errorf("DetectMode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModeValidate(t *testing.T) {
	if err := ModeDevelopment.Validate(); err != nil {
		t.Errorf("development should be valid: %v", err)
	}
	if err := Mode("testing").Validate(); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestIsTruthy(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "on", "enabled"} {
		if !IsTruthy(v) {
			t.Errorf("IsTruthy(%q) = false, want true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "off", "maybe"} {
		if IsTruthy(v) {
			t.Errorf("IsTruthy(%q) = true, want false", v)
		}
	}
}
