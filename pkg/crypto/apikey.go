package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// ApiKeyPrefix marks secrets issued by this deployment.
	ApiKeyPrefix = "kg_live_"

	apiKeyEntropyBytes = 32
)

var randomRead = rand.Read

// GenerateApiKey returns a fresh raw API key. Only its hash is ever stored.
func GenerateApiKey() (string, error) {
	entropy := make([]byte, apiKeyEntropyBytes)
	if _, err := randomRead(entropy); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return ApiKeyPrefix + hex.EncodeToString(entropy), nil
}

// MaskApiKey keeps the prefix and the last four characters so a key can be
// told apart in logs without being usable.
func MaskApiKey(key string) string {
	if len(key) <= len(ApiKeyPrefix)+4 || !strings.HasPrefix(key, ApiKeyPrefix) {
		return "****"
	}
	return ApiKeyPrefix + "****" + key[len(key)-4:]
}
