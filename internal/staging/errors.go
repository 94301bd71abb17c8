package staging

import "errors"

// Domain errors for staging operations.
var (
	// ErrInvalidRange is returned when a range ends before it starts.
	ErrInvalidRange = errors.New("staging: invalid time range")

	// ErrBadTimestamp is returned when a stored timestamp cannot be parsed.
	ErrBadTimestamp = errors.New("staging: unparseable timestamp")
)
