package storage

import "errors"

var (
	// ErrNotFound is returned when no link matches the lookup.
	ErrNotFound = errors.New("link not found")

	// ErrDuplicateCode is returned by InsertLink when another link already
	// holds the code. It signals a lost allocation race, not a failure.
	ErrDuplicateCode = errors.New("short code already in use")
)
