package rbac

import (
	"github.com/eshiol/j3-rest-api/pkg/access"
	"github.com/google/uuid"
)

// Effect is the outcome of a matching policy.
type Effect uint8

const (
	Deny Effect = iota
	Allow
)

// Policy grants or denies a subject actions on an object. A policy without
// actions applies to every action.
type Policy struct {
	Subject uuid.UUID       `json:"subject"`
	Object  string          `json:"object"`
	Actions []access.Action `json:"actions"`
	Effect  Effect          `json:"effect"`
}

// Covers returns true if p applies to action.
func (p Policy) Covers(action access.Action) bool {
	if len(p.Actions) == 0 {
		return true
	}
	for _, a := range p.Actions {
		if a == action {
			return true
		}
	}
	return false
}

const policyPrefix = "rbac/"

// NewPolicyKey returns the storage key of the policy for subject and object.
func NewPolicyKey(subject uuid.UUID, object string) string {
	return policyPrefix + subject.String() + "/" + object
}
