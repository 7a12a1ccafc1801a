package auth

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/eshiol/j3-rest-api/pkg/auth/password"
	"github.com/eshiol/j3-rest-api/pkg/storage"
)

const credentialsPrefix = "auth/"

func credentialsKey(user string) []byte { return []byte(credentialsPrefix + user) }

// KV is a simple key-value backed Authenticator. It saves data to the provided
// pebble DB. All transactions provided to the Authenticator interface must be
// spawned from the same DB.
type KV struct{ DB *pebble.DB }

var _ Authenticator = (*KV)(nil)

// Authenticate implements the Authenticator interface.
func (db *KV) Authenticate(creds InsecureCredentials) error {
	sc, err := db.retrieve(db.DB, creds.Username)
	if errors.Is(err, storage.NotFound) {
		return errors.Wrap(InvalidCredentials, "unknown user")
	}
	if err != nil {
		return err
	}
	return sc.Password.Validate(creds.Password)
}

// Register implements the Authenticator interface.
func (db *KV) Register(txn storage.Txn, creds InsecureCredentials) error {
	if creds.Username == "" || creds.Password == "" {
		return errors.Wrap(RegistrationFailed, "username and password are required")
	}
	exists, err := storage.Exists(txn, credentialsKey(creds.Username))
	if err != nil {
		return err
	}
	if exists {
		return UsernameTaken
	}
	hash, err := creds.Password.Hash()
	if err != nil {
		return err
	}
	return db.set(txn, creds.Username, hash)
}

// UpdateUsername implements the Authenticator interface.
func (db *KV) UpdateUsername(txn storage.Txn, creds InsecureCredentials, newUser string) error {
	sc, err := db.validate(txn, creds)
	if err != nil {
		return err
	}
	exists, err := storage.Exists(txn, credentialsKey(newUser))
	if err != nil {
		return err
	}
	if exists {
		return UsernameTaken
	}
	if err := storage.Delete(txn, credentialsKey(creds.Username)); err != nil {
		return err
	}
	return db.set(txn, newUser, sc.Password)
}

// UpdatePassword implements the Authenticator interface.
func (db *KV) UpdatePassword(txn storage.Txn, creds InsecureCredentials, newPass password.Raw) error {
	if _, err := db.validate(txn, creds); err != nil {
		return err
	}
	hash, err := newPass.Hash()
	if err != nil {
		return err
	}
	return db.set(txn, creds.Username, hash)
}

func (db *KV) validate(txn storage.Txn, creds InsecureCredentials) (SecureCredentials, error) {
	sc, err := db.retrieve(txn, creds.Username)
	if errors.Is(err, storage.NotFound) {
		return sc, errors.Wrap(InvalidCredentials, "unknown user")
	}
	if err != nil {
		return sc, err
	}
	return sc, sc.Password.Validate(creds.Password)
}

func (db *KV) retrieve(r pebble.Reader, user string) (SecureCredentials, error) {
	var sc SecureCredentials
	return sc, storage.Get(r, credentialsKey(user), &sc)
}

func (db *KV) set(txn storage.Txn, user string, hash password.Hashed) error {
	return storage.Set(txn, credentialsKey(user), SecureCredentials{Username: user, Password: hash})
}
