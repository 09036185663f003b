package id

import "github.com/google/uuid"

// New returns a random identifier for requests and relay sessions.
func New() string { return uuid.NewString() }

// Valid reports whether s looks like an id produced by New.
// Callers use it before trusting an incoming X-Request-Id header.
func Valid(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
