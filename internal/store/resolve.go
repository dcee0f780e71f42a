package store

import (
	"fmt"
	"os"
)

// ResolveName determines the database name to use based on priority chain.
// Priority: explicit > SKIFF_DB env > "default"
// Returns the resolved name and any validation error.
func ResolveName(explicit string) (string, error) {
	// 1. Explicit parameter takes precedence
	if explicit != "" {
		if err := ValidateName(explicit); err != nil {
			return "", fmt.Errorf("invalid database name %q: %w", explicit, err)
		}
		return explicit, nil
	}

	// 2. Environment variable
	if envName := os.Getenv("SKIFF_DB"); envName != "" {
		if err := ValidateName(envName); err != nil {
			return "", fmt.Errorf("invalid SKIFF_DB %q: %w", envName, err)
		}
		return envName, nil
	}

	// 3. Default fallback
	return "default", nil
}
