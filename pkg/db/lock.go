package db

import "gorm.io/gorm"

// LockSuffix returns the raw-SQL locking suffix for the dialect. SQLite
// serializes writers at the database level, so it gets none.
func LockSuffix(tx *gorm.DB) string {
	if !SupportsRowLocks(tx) {
		return ""
	}
	return " FOR UPDATE"
}
