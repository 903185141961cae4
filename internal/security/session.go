package security

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Session ID constraints
const (
	MinSessionIDLength = 8
	MaxSessionIDLength = 64
)

// validSessionIDPattern allows alphanumeric, hyphens, and underscores
var validSessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var blockedSessionPatterns = []string{
	"__proto__",
	"constructor",
}

// GenerateSessionID returns a random UUID session ID.
func GenerateSessionID() string {
	return uuid.NewString()
}

// ValidateSessionID checks a client supplied session ID.
// Returns an error message if invalid, empty string if valid.
func ValidateSessionID(id string) string {
	switch {
	case id == "":
		return "session ID is required"
	case len(id) < MinSessionIDLength:
		return "session ID too short (min 8 characters)"
	case len(id) > MaxSessionIDLength:
		return "session ID too long (max 64 characters)"
	case !validSessionIDPattern.MatchString(id):
		return "session ID contains invalid characters (use alphanumeric, hyphens, underscores only)"
	}

	idLower := strings.ToLower(id)
	for _, pattern := range blockedSessionPatterns {
		if strings.Contains(idLower, pattern) {
			return "session ID contains blocked pattern"
		}
	}
	return ""
}
