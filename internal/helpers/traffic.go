package helpers

import (
	"fmt"
	"time"

	"marzban-vpn-bot/internal/constants"
)

// FormatBytes renders a byte count in binary (1024-based) units with one
// decimal place
func FormatBytes(bytes int64) string {
	switch {
	case bytes >= constants.BytesInGB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/constants.BytesInGB)
	case bytes >= constants.BytesInMB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/constants.BytesInMB)
	case bytes >= constants.BytesInKB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/constants.BytesInKB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatDataLimit renders an account's data limit, nil meaning unlimited
func FormatDataLimit(limit *int64) string {
	if limit == nil || *limit == 0 {
		return "∞"
	}
	return FormatBytes(*limit)
}

// FormatExpiry renders a panel expire value as a UTC date, zero or nil
// meaning unlimited
func FormatExpiry(expire *int64) string {
	if expire == nil || *expire == 0 {
		return "∞"
	}
	return time.Unix(*expire, 0).UTC().Format(constants.DateFormat)
}

// DaysLeft returns whole days until expiry, and whether a bound exists
func DaysLeft(expire *int64, now time.Time) (int, bool) {
	if expire == nil || *expire == 0 {
		return 0, false
	}
	left := time.Unix(*expire, 0).Sub(now)
	if left < 0 {
		return 0, true
	}
	return int(left.Hours() / 24), true
}
