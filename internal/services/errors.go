package services

import (
	"errors"
	"fmt"

	"neurosphere-backend/internal/lifecycle"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyStarted surfaces a duplicate processing trigger.
	ErrAlreadyStarted = lifecycle.ErrAlreadyStarted
)

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
