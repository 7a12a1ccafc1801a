// Package request carries the per-request values that document assembly and
// conditional evaluation depend on. Nothing in this repository reads the
// current actor or base URL from global state.
package request

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Context is the explicit request scope.
type Context struct {
	// Actor is the authenticated user. uuid.Nil for guests.
	Actor uuid.UUID
	// BaseURL is the scheme, host and optional path prefix the request was
	// addressed to, without a trailing slash.
	BaseURL string
	// Now is the instant the request was received.
	Now time.Time
}

// New returns a Context for actor at baseURL, received now.
func New(actor uuid.UUID, baseURL string, now time.Time) Context {
	return Context{Actor: actor, BaseURL: strings.TrimRight(baseURL, "/"), Now: now.UTC()}
}

// Guest returns true if the request carries no authenticated actor.
func (c Context) Guest() bool { return c.Actor == uuid.Nil }

// Clock returns c.Now, falling back to the wall clock for a zero Context.
func (c Context) Clock() time.Time {
	if c.Now.IsZero() {
		return time.Now().UTC()
	}
	return c.Now
}
