package api

import (
	"fmt"
	"strings"

	"github.com/mrolabs/growthwatch/internal/models"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const maxUsernameLength = 30

// ValidateUsername checks a username after normalization.
func ValidateUsername(username string) error {
	username = models.NormalizeUsername(username)
	if username == "" {
		return ValidationError{Field: "username", Message: "username is required"}
	}
	if len(username) > maxUsernameLength {
		return ValidationError{Field: "username", Message: "username is too long"}
	}
	for _, r := range username {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '_' {
			continue
		}
		return ValidationError{Field: "username", Message: fmt.Sprintf("invalid character %q", r)}
	}
	return nil
}

const maxRosterSize = 1000

// ValidateRoster checks a sync roster before a run is started.
func ValidateRoster(usernames []string) error {
	if len(usernames) == 0 {
		return ValidationError{Field: "usernames", Message: "at least one username is required"}
	}
	if len(usernames) > maxRosterSize {
		return ValidationError{Field: "usernames", Message: fmt.Sprintf("roster exceeds %d usernames", maxRosterSize)}
	}
	for _, username := range usernames {
		if strings.TrimSpace(username) == "" {
			continue // dropped during normalization
		}
		if err := ValidateUsername(username); err != nil {
			return err
		}
	}
	return nil
}
