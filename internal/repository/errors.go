package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a uniqueness clash or a failed conditional update.
	ErrConflict = errors.New("repository: conflict")
)
