// Package store resolves database names and on-disk locations for skiff.
package store

import (
	"errors"
	"regexp"
	"strings"
)

// Database name validation errors.
var (
	// ErrInvalidName indicates the database name format is invalid.
	ErrInvalidName = errors.New("invalid database name: must be lowercase alphanumeric with hyphens, 1-64 characters")
)

// nameRegex validates database name format.
// - lowercase alphanumeric and hyphens (a-z, 0-9, -)
// - 1-64 characters
// - no leading/trailing hyphens, no consecutive hyphens
// Names namespace blob keys and filesystem paths, so no separators allowed.
var nameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?$`)

// ValidateName validates a database name.
// Returns ErrInvalidName if the name doesn't match the required pattern.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	// Check for consecutive hyphens (not caught by regex)
	if strings.Contains(name, "--") {
		return ErrInvalidName
	}
	if !nameRegex.MatchString(name) {
		return ErrInvalidName
	}
	return nil
}
