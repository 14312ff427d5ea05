package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const (
	SignaturePrefix = "sha256="

	HeaderGitHubSignature = "X-Hub-Signature-256"
	HeaderGitLabToken     = "X-Gitlab-Token"
	HeaderDeployToken     = "X-Deploy-Token"
	QueryToken            = "token"
)

// VerifySignature verifies a GitHub-style HMAC-SHA256 signature
// ("sha256=<hex>") over the raw request body.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	if !strings.HasPrefix(signature, SignaturePrefix) {
		return false
	}
	receivedMAC := strings.TrimPrefix(signature, SignaturePrefix)

	return hmac.Equal([]byte(ComputeSignature(payload, secret)), []byte(receivedMAC))
}

// ComputeSignature returns the hex HMAC-SHA256 of payload, without prefix.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SecureCompare compares two secrets in constant time. Empty values never
// match.
func SecureCompare(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) == 1
}
