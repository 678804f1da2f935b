package helpers

import (
	"fmt"
	"strings"

	"marzban-vpn-bot/internal/constants"
)

// CanonicalUsername derives the current deterministic panel username for a
// Telegram ID
func CanonicalUsername(telegramID int64) string {
	return fmt.Sprintf("%s%d", constants.CanonicalUsernamePrefix, telegramID)
}

// LegacyUsername derives the panel username under the older naming scheme,
// kept so accounts created before the rename still resolve
func LegacyUsername(telegramID int64) string {
	return fmt.Sprintf("%s%d", constants.LegacyUsernamePrefix, telegramID)
}

// SanitizeHandle normalizes a Telegram handle for use as a lookup candidate
func SanitizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// ValidUsername checks a panel username against the panel's naming rules
func ValidUsername(username string) bool {
	if len(username) < constants.MinUsernameLength || len(username) > constants.MaxUsernameLength {
		return false
	}
	for _, r := range username {
		valid := (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_'
		if !valid {
			return false
		}
	}
	return true
}
