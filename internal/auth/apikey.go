package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// KeyPrefix marks operator keys so they are recognizable in config and leaks.
	KeyPrefix = "cdk_"

	keyEntropyBytes = 24
	minKeyLength    = 16
)

// GenerateAPIKey returns a new operator key: KeyPrefix followed by 48 hex characters.
func GenerateAPIKey() (string, error) {
	b := make([]byte, keyEntropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate API key: %w", err)
	}
	return KeyPrefix + hex.EncodeToString(b), nil
}

// Fingerprint identifies a key in logs without revealing it.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:6])
}

// ValidateKeys rejects operator entries with blank names or short keys.
func ValidateKeys(keys map[string]string) error {
	for name, key := range keys {
		if strings.TrimSpace(name) == "" {
			return errors.New("api key with empty operator name")
		}
		if len(strings.TrimSpace(key)) < minKeyLength {
			return fmt.Errorf("api key for %q shorter than %d characters", name, minKeyLength)
		}
	}
	return nil
}
