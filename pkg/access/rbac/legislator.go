package rbac

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/google/uuid"
)

// Legislator stores policies.
type Legislator struct{ DB *pebble.DB }

// Create writes p inside txn, replacing any policy for the same subject and
// object.
func (l *Legislator) Create(txn storage.Txn, p Policy) error {
	return storage.Set(txn, []byte(NewPolicyKey(p.Subject, p.Object)), p)
}

// Retrieve returns the policy for subject and object, or storage.NotFound.
func (l *Legislator) Retrieve(subject uuid.UUID, object string) (Policy, error) {
	var p Policy
	err := storage.Get(l.DB, []byte(NewPolicyKey(subject, object)), &p)
	return p, errors.Wrap(err, "[rbac] - retrieve policy")
}
