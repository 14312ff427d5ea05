package security

import (
	"strings"
	"testing"
)

func TestValidateToken(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{
			"strong random token",
			"kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6",
			false,
		},
		{
			"base64-like token",
			"dGhpcyBpcyBhIHZlcnkgbG9uZyBzZWNyZXQgd2l0aCBnb29kIGVudHJvcHk",
			false,
		},
		{
			"too short",
			"kJ8mN2pQ5tR7vX1z",
			true,
		},
		{
			"empty string",
			"",
			true,
		},
		{
			"placeholder",
			"changeme",
			true,
		},
		{
			"contains replace",
			"please-replace-this-with-a-real-deploy-token-now",
			true,
		},
		{
			"all same character",
			"aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			true,
		},
		{
			"repeated pattern",
			"abcabcabcabcabcabcabcabcabcabcabcabc",
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToken(tt.token)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		token, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}

		if len(token) != 64 {
			t.Errorf("GenerateToken() length = %d, want 64", len(token))
		}

		if strings.ContainsAny(token, "+/=") {
			t.Errorf("GenerateToken() = %q, should be URL safe", token)
		}

		if err := ValidateToken(token); err != nil {
			t.Errorf("generated token failed validation: %v", err)
		}

		if seen[token] {
			t.Error("GenerateToken() produced a duplicate token")
		}
		seen[token] = true
	}
}

func TestCalculateEntropy(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		minExpected float64
		maxExpected float64
	}{
		{"empty string", "", 0.0, 0.0},
		{"single character repeated", "aaaaaaa", 0.0, 0.0},
		{"two characters alternating", "ababababab", 1.0, 1.0},
		{"all unique characters", "abcdefghij", 3.0, 4.0},
		{"random-looking string", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS", 4.0, 6.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entropy := calculateEntropy(tt.input)
			if entropy < tt.minExpected || entropy > tt.maxExpected {
				t.Errorf("calculateEntropy(%q) = %.2f, want between %.2f and %.2f",
					tt.input, entropy, tt.minExpected, tt.maxExpected)
			}
		})
	}
}
