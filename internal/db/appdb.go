package db

import (
	"fmt"

	"github.com/collabhq/collabd/internal/db/driver"
)

// AppDB provides operations on the collabd application database.
type AppDB struct {
	*DB
}

// OpenApp opens the application database at the given path using SQLite
// and applies pending migrations.
func OpenApp(path string) (*AppDB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate("app"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate app db: %w", err)
	}

	return &AppDB{DB: db}, nil
}

// OpenAppWithDialect opens the application database with a specific dialect.
// For SQLite, dsn is the file path. For PostgreSQL, dsn is the connection string.
func OpenAppWithDialect(dsn string, dialect driver.Dialect) (*AppDB, error) {
	db, err := OpenWithDialect(dsn, dialect)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate("app"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate app db: %w", err)
	}

	return &AppDB{DB: db}, nil
}

// OpenAppInMemory opens an in-memory application database for testing.
func OpenAppInMemory() (*AppDB, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, err
	}

	if err := db.Migrate("app"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate app db: %w", err)
	}

	return &AppDB{DB: db}, nil
}
