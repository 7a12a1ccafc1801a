// Package access decides whether a subject may perform an action on a
// resource type.
package access

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

var (
	// Forbidden is returned when a policy denies the request.
	Forbidden = errors.New("[access] - forbidden")
	// Unauthenticated is returned when a guest attempts an action that
	// requires an authenticated subject.
	Unauthenticated = errors.New("[access] - authentication required")
)

// Action is an operation on a resource.
type Action string

const (
	Retrieve Action = "retrieve"
	Create   Action = "create"
	Update   Action = "update"
	Delete   Action = "delete"
	CheckOut Action = "checkout"
	CheckIn  Action = "checkin"
)

// Guest is the subject of unauthenticated requests.
var Guest = uuid.Nil

// Request is a single access decision.
type Request struct {
	// Subject is the acting user, Guest for anonymous requests.
	Subject uuid.UUID
	// Object is the resource type, e.g. "articles".
	Object string
	Action Action
}

// Enforcer allows a request by returning nil.
type Enforcer interface {
	Enforce(req Request) error
}

// GuestRead lets guests retrieve resources and requires authentication for
// anything else.
type GuestRead struct{}

// Enforce implements Enforcer.
func (GuestRead) Enforce(req Request) error {
	if req.Subject == Guest && req.Action != Retrieve {
		return errors.Wrapf(Unauthenticated, "%s %s", req.Action, req.Object)
	}
	return nil
}
