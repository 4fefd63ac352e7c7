package models

import "errors"

// Custom errors
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateKey       = errors.New("duplicate key violation")
	ErrInvalidID          = errors.New("invalid ID format")
	ErrResolutionConflict = errors.New("bet already resolved with different values")
	ErrGradeConflict      = errors.New("course already resolved with a different grade")
)
