package constants

const (
	// User validation constants
	MinUsernameLength = 3
	MaxUsernameLength = 32

	// User naming constants
	CanonicalUsernamePrefix = "tg_"
	LegacyUsernamePrefix    = "user"

	// Traffic constants
	BytesInKB = 1024
	BytesInMB = 1024 * 1024
	BytesInGB = 1024 * 1024 * 1024

	// Duration constants
	SecondsInDay = 24 * 60 * 60

	// Network constants
	DefaultTimeout = 15 // seconds

	// Cache constants
	TokenCacheExpiration = 30 // minutes
	CacheCleanupInterval = 10 // minutes

	// Panel search constants
	SearchPageLimit = 20

	// Formatting constants
	TimestampFormat = "2006-01-02 15:04:05"
	DateFormat      = "2006-01-02"
)
