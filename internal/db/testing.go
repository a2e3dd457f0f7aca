package db

import (
	"testing"
)

// NewTestDB opens a migrated in-memory database for tests.
func NewTestDB(t *testing.T) *AppDB {
	t.Helper()

	adb, err := OpenAppInMemory()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = adb.Close() })
	return adb
}
