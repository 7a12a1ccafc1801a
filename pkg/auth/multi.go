package auth

import (
	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/auth/password"
	"github.com/eshiol/j3-rest-api/pkg/storage"
)

// MultiAuthenticator chains credential stores. Each operation is tried in
// order and succeeds with the first store that accepts it.
type MultiAuthenticator []Authenticator

var _ Authenticator = MultiAuthenticator(nil)

var noAuthenticators = errors.New("[auth] - no authenticators configured")

// try returns nil at the first successful op. Otherwise the error of the first
// store is returned with the others attached, marked with failure.
func (a MultiAuthenticator) try(failure error, op func(Authenticator) error) error {
	var errs error
	for _, authn := range a {
		err := op(authn)
		if err == nil {
			return nil
		}
		errs = errors.CombineErrors(errs, err)
	}
	if errs == nil {
		errs = noAuthenticators
	}
	return errors.Mark(errs, failure)
}

// Authenticate implements Authenticator.
func (a MultiAuthenticator) Authenticate(creds InsecureCredentials) error {
	return a.try(InvalidCredentials, func(authn Authenticator) error {
		return authn.Authenticate(creds)
	})
}

// Register implements Authenticator. A taken username reported by the first
// store stays detectable with errors.Is.
func (a MultiAuthenticator) Register(txn storage.Txn, creds InsecureCredentials) error {
	return a.try(RegistrationFailed, func(authn Authenticator) error {
		return authn.Register(txn, creds)
	})
}

// UpdateUsername implements Authenticator.
func (a MultiAuthenticator) UpdateUsername(txn storage.Txn, creds InsecureCredentials, newUser string) error {
	return a.try(UpdateFailed, func(authn Authenticator) error {
		return authn.UpdateUsername(txn, creds, newUser)
	})
}

// UpdatePassword implements Authenticator.
func (a MultiAuthenticator) UpdatePassword(txn storage.Txn, creds InsecureCredentials, newPass password.Raw) error {
	return a.try(UpdateFailed, func(authn Authenticator) error {
		return authn.UpdatePassword(txn, creds, newPass)
	})
}
