package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// GenerateRandomString returns a random hex string of the given length,
// used for subscriber ids inside the pubsub broadcaster.
func GenerateRandomString(length int) string {
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte("fallback"))[:length]
	}
	result := hex.EncodeToString(buf)
	if len(result) > length {
		return result[:length]
	}
	return result
}

// NewRunID returns a fresh identifier for one supervisor attempt, used
// only for log correlation.
func NewRunID() string {
	return uuid.NewString()
}
