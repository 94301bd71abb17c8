package database

import "errors"

// Domain errors for database operations.
var (
	// ErrUnsupportedDriver is returned when the configured driver is neither sqlite3 nor mysql.
	ErrUnsupportedDriver = errors.New("database: unsupported driver")

	// ErrConnectionFailed is returned when the initial ping fails.
	ErrConnectionFailed = errors.New("database: connection failed")
)
