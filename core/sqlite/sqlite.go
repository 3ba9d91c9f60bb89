// Package sqlite connects RibbitDB to SQLite files through the pure Go
// modernc.org/sqlite driver.
//
// Export copies the user tables and indexes of a RibbitDB database into a
// SQLite file; Import goes the other way. Views are not copied.
//
// Use Open instead of sql.Open so the driver is always registered.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const (
	driverName    = "sqlite"
	driverType    = "purego"
	driverPackage = "modernc.org/sqlite"
)

// DriverName returns the database/sql driver name.
func DriverName() string {
	return driverName
}

// Open opens a SQLite database, creating the file when it does not exist.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return Open("file:" + path + "?mode=ro")
}

// MustOpen opens a SQLite database and panics on error.
// This is intended for tests and initialization code.
func MustOpen(dataSourceName string) *sql.DB {
	db, err := Open(dataSourceName)
	if err != nil {
		panic(fmt.Sprintf("sqlite: failed to open %s: %v", dataSourceName, err))
	}
	return db
}

// Info describes the SQLite driver in use.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	Package    string `json:"package"`
	Version    string `json:"version,omitempty"`
}

// GetInfo returns the driver details and, when db is not nil, the
// library version reported by sqlite_version().
func GetInfo(ctx context.Context, db *sql.DB) Info {
	info := Info{DriverName: driverName, DriverType: driverType, Package: driverPackage}
	if db != nil {
		_ = db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&info.Version)
	}
	return info
}
