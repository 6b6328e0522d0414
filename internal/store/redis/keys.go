package redis

const (
	// KeyPrefixPending is the prefix for pending submission keys
	KeyPrefixPending = "snaps:pending:"
	// KeyPrefixHistory is the prefix for per-user history lists
	KeyPrefixHistory = "snaps:history:"
	// KeyCounts is the hash of canonical URL -> total snaps
	KeyCounts = "snaps:counts"
	// KeyMigrating is the hash of submission ID -> claimed payload (intent log)
	KeyMigrating = "snaps:migrating"
	// KeyMigratingSince is the sorted set of submission ID scored by claim time
	KeyMigratingSince = "snaps:migrating:since"
	// KeyMigratingDead is the hash of submission ID -> intent payload that failed to decode
	KeyMigratingDead = "snaps:migrating:dead"
)

// PendingKey returns the Redis key for a pending submission
func PendingKey(id string) string {
	return KeyPrefixPending + id
}

// HistoryKey returns the Redis key for a user's snap history
func HistoryKey(email string) string {
	return KeyPrefixHistory + email
}
