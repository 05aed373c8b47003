package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateUsername is returned when creating a user whose
// username is already taken.
var ErrDuplicateUsername = errors.New("username already exists")
