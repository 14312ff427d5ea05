package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinTokenLength is the minimum recommended length for deploy tokens
	// and webhook secrets.
	MinTokenLength = 32

	// MinEntropy is the minimum Shannon entropy threshold for tokens.
	MinEntropy = 3.5

	// generatedTokenBytes encodes to 64 URL-safe characters.
	generatedTokenBytes = 48
)

var placeholderTokens = map[string]bool{
	"replace-with-token": true,
	"deploy-token":       true,
	"webhook-secret":     true,
	"topsecret":          true,
	"secret":             true,
	"password":           true,
	"changeme":           true,
	"token":              true,
}

// ValidateToken checks that a deploy token or webhook secret is strong
// enough to be exposed on a public URL. It returns the first problem found.
func ValidateToken(token string) error {
	if len(token) < MinTokenLength {
		return fmt.Errorf("token too short (minimum %d characters, got %d)", MinTokenLength, len(token))
	}

	lower := strings.ToLower(token)
	if placeholderTokens[lower] {
		return fmt.Errorf("token appears to be a placeholder value")
	}
	for _, marker := range []string{"replace", "changeme", "password"} {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("token appears to be a placeholder value")
		}
	}

	if entropy := calculateEntropy(token); entropy < MinEntropy {
		return fmt.Errorf("token has insufficient entropy (%.2f < %.2f)", entropy, MinEntropy)
	}

	return nil
}

// GenerateToken creates a cryptographically secure random token of 64
// URL-safe characters, suitable for both query strings and headers.
func GenerateToken() (string, error) {
	buf := make([]byte, generatedTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// calculateEntropy computes the Shannon entropy of a string in bits per
// character.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var entropy float64
	length := float64(len(s))

	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}
