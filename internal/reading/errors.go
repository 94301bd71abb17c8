package reading

import "errors"

// Domain errors for reading field handling.
var (
	// ErrUnknownField is returned when a configured field is not a known column.
	ErrUnknownField = errors.New("reading: unknown field")

	// ErrNoFields is returned when no submission fields are configured.
	ErrNoFields = errors.New("reading: no fields configured")
)
