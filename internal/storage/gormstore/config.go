package gormstore

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database connection and naming settings
type Config struct {
	// Driver selects the backing store ("sqlite" or "postgres")
	Driver string
	// DSN is a file path (or ":memory:") for sqlite, a URL for postgres
	DSN string
	// Prefix is prepended to every table name
	Prefix string

	// Pool settings (ignored for sqlite, which uses a single connection)
	MaxOpenConns int

	// SlowThreshold is the duration above which statements are logged as slow
	SlowThreshold time.Duration
}

// DefaultConfig returns sensible defaults for database configuration
func DefaultConfig() Config {
	return Config{
		Driver:        DriverSQLite,
		DSN:           "userdata.db",
		Prefix:        "ud_",
		MaxOpenConns:  10,
		SlowThreshold: 200 * time.Millisecond,
	}
}

func (c Config) dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverSQLite, "":
		return sqlite.Open(c.DSN), nil
	case DriverPostgres:
		return postgres.Open(c.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// maxIdentifier is the longest table name the driver keeps intact
func (c Config) maxIdentifier() int {
	if c.Driver == DriverPostgres {
		return 63
	}
	return 0
}
