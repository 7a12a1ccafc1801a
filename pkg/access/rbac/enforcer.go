package rbac

import (
	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/access"
	"github.com/eshiol/j3-rest-api/pkg/storage"
)

// NewEnforcer returns an Enforcer that applies the stored policies on top of
// the guest rules, falling back to def when no policy covers a request.
func NewEnforcer(leg *Legislator, def Effect) access.Enforcer {
	return &enforcer{def: def, leg: leg}
}

type enforcer struct {
	def Effect
	leg *Legislator
}

func (e *enforcer) Enforce(req access.Request) error {
	if err := (access.GuestRead{}).Enforce(req); err != nil {
		return err
	}
	policy, err := e.leg.Retrieve(req.Subject, req.Object)
	if errors.Is(err, storage.NotFound) || (err == nil && !policy.Covers(req.Action)) {
		return e.decide(e.def, req)
	}
	if err != nil {
		return err
	}
	return e.decide(policy.Effect, req)
}

func (e *enforcer) decide(effect Effect, req access.Request) error {
	if effect == Allow {
		return nil
	}
	return errors.Wrapf(access.Forbidden, "%s %s", req.Action, req.Object)
}
