package repository

import "errors"

// ErrNotFound is returned when a requested message does not exist in the store.
var ErrNotFound = errors.New("not found")
