package core

import "github.com/google/uuid"

// NewID generates a new unique identifier for goals, tasks, sessions and
// memory records.
//
// Returns a string representation of a new UUID.
func NewID() string { return uuid.NewString() }
