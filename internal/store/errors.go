package store

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	// ErrConflict is returned when a guarded update matched an existing record
	// whose lifecycle fields did not satisfy the guard.
	ErrConflict = errors.New("record state conflict")
	// ErrInvalidPage is returned for a negative offset or limit.
	ErrInvalidPage = errors.New("invalid page window")
)
