package mcpserver

import (
	"fmt"
	"regexp"
)

// Identifier arguments (namespace ids, document ids) are validated against
// an allow-list before any network call is made.
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_/-]+$`)

const maxIDLength = 200

// validateID returns "" when idValue is acceptable, or a user-facing
// problem description otherwise. idType names the argument in messages
// ("Namespace", "Document ID").
func validateID(idValue, idType string) string {
	if idValue == "" {
		return fmt.Sprintf("%s cannot be empty", idType)
	}
	if len(idValue) > maxIDLength {
		return fmt.Sprintf("%s too long (max %d characters)", idType, maxIDLength)
	}
	if !idPattern.MatchString(idValue) {
		return fmt.Sprintf("%s contains invalid characters (only alphanumeric, hyphens, underscores, and slashes allowed)", idType)
	}
	return ""
}
