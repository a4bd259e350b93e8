package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeyMarker is the literal prefix carried by every API key secret. It lets
// the request path route a bearer credential without a storage lookup.
const KeyMarker = "sk-ats-"

// keyPrefixLen is how many leading characters of a key are kept for display
// in listings after the secret itself is discarded.
const keyPrefixLen = 14

// bcryptCost trades roughly a quarter second of hashing per login attempt
// for resistance to offline cracking.
const bcryptCost = 12

// HashSecret returns the hex SHA-256 digest of a secret. API key and reset
// token secrets are high-entropy random values, so a fast unsalted hash is
// sufficient and keeps lookups to a single indexed equality.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// NewSecret returns a 32-byte random secret encoded as hex.
func NewSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// GenerateAPIKey mints a new API key secret. It returns the full secret
// (shown to the caller exactly once), its storage hash, and the display
// prefix kept for listings.
func GenerateAPIKey() (secret, hash, prefix string, err error) {
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate api key: %w", err)
	}

	secret = KeyMarker + hex.EncodeToString(bytes)
	return secret, HashSecret(secret), secret[:keyPrefixLen], nil
}

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
