// Package server exposes the HTTP API handlers.
package server

import "time"

// TokenStatus is the read-only view of the credential cache the handlers need.
type TokenStatus interface {
	Snapshot() (token string, expiresAt int64)
	Configured() bool
	PolicyName() string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	tokens TokenStatus
	now    func() time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(tokens TokenStatus) *Handlers {
	return &Handlers{
		tokens: tokens,
		now:    time.Now,
	}
}
