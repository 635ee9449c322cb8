package store

import "errors"

// ErrNotFound is returned by mutations that target a row that does not exist.
// Getters return nil, nil instead.
var ErrNotFound = errors.New("not found")

// ErrHalfWindow is returned when a time window has only one of its bounds.
var ErrHalfWindow = errors.New("time window needs both start and end")
