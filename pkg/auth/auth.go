package auth

import (
	"github.com/eshiol/j3-rest-api/pkg/auth/password"
	"github.com/eshiol/j3-rest-api/pkg/storage"
)

// Authenticator is an interface for validating the identity of a particular entity (
// i.e. they are who they say they are).
type Authenticator interface {
	// Authenticate validates the identity of the entity with the given credentials.
	// If the credentials are invalid, an InvalidCredentials error is returned.
	Authenticate(creds InsecureCredentials) error
	// Register registers the given credentials in the authenticator, using txn
	// for any writes to local storage.
	Register(txn storage.Txn, creds InsecureCredentials) error
	// UpdateUsername moves the given credentials to a new username.
	UpdateUsername(txn storage.Txn, creds InsecureCredentials, newUser string) error
	// UpdatePassword replaces the password of the given credentials.
	UpdatePassword(txn storage.Txn, creds InsecureCredentials, newPass password.Raw) error
}

// InsecureCredentials are credentials as received from a client.
type InsecureCredentials struct {
	Username string       `json:"username"`
	Password password.Raw `json:"password"`
}

// SecureCredentials are credentials as persisted.
type SecureCredentials struct {
	Username string          `json:"username"`
	Password password.Hashed `json:"password"`
}
