package util

import "github.com/google/uuid"

// GenerateID returns prefix followed by a random UUID, e.g. "run-2b1ea2c5-...".
func GenerateID(prefix string) string {
	return prefix + uuid.NewString()
}
