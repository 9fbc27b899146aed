package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns an opaque unique identifier (32 hex chars).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
