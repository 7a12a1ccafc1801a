package password

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/bcrypt"
)

// Invalid is returned when a password does not match its hash.
var Invalid = errors.New("[password] - invalid credentials")

// Raw is a plain-text password as received from a client.
type Raw string

const hashCost = bcrypt.DefaultCost

// Hash returns the bcrypt hash of r.
func (r Raw) Hash() (Hashed, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(r), hashCost)
	return h, errors.Wrap(err, "[password] - hash")
}

// Hashed is a bcrypt password hash.
type Hashed []byte

// Validate returns Invalid if r does not match h.
func (h Hashed) Validate(r Raw) error {
	if err := bcrypt.CompareHashAndPassword(h, []byte(r)); err != nil {
		return errors.Mark(errors.Wrap(err, "invalid credentials"), Invalid)
	}
	return nil
}
