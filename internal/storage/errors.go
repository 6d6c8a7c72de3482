package storage

import "errors"

var (
	// ErrInvalidRecord is returned when a usage record fails validation
	ErrInvalidRecord = errors.New("invalid usage record")
)
