package utils

import "github.com/google/uuid"

// NewID returns a random UUID string for engine-owned rows
func NewID() string {
	return uuid.New().String()
}

// NewPrefixedID returns prefix-uuid, used for request ids
func NewPrefixedID(prefix string) string {
	return prefix + "-" + uuid.New().String()
}
