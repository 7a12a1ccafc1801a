package user

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/eshiol/j3-rest-api/pkg/storage"
	"github.com/google/uuid"
)

// UsernameTaken is returned when creating a user whose username is in use.
var UsernameTaken = errors.New("[user] - username already exists")

// Service stores users in the key-value store, indexed by key and username.
type Service struct {
	DB *pebble.DB
}

// Retrieve returns the user with the given key.
func (s *Service) Retrieve(key uuid.UUID) (User, error) {
	var u User
	return u, storage.Get(s.DB, storageKey(key), &u)
}

// RetrieveByUsername returns the user with the given username.
func (s *Service) RetrieveByUsername(username string) (User, error) {
	var key uuid.UUID
	if err := storage.Get(s.DB, usernameKey(username), &key); err != nil {
		return User{}, err
	}
	return s.Retrieve(key)
}

// Create writes u inside txn, generating a key if u has none.
func (s *Service) Create(txn storage.Txn, u *User) error {
	exists, err := storage.Exists(txn, usernameKey(u.Username))
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(UsernameTaken, "%q", u.Username)
	}
	if u.Key == uuid.Nil {
		u.Key = uuid.New()
	}
	if err := storage.Set(txn, storageKey(u.Key), u); err != nil {
		return err
	}
	return storage.Set(txn, usernameKey(u.Username), u.Key)
}

// Rename changes the username of the user with the given key inside txn.
func (s *Service) Rename(txn storage.Txn, key uuid.UUID, username string) error {
	var u User
	if err := storage.Get(txn, storageKey(key), &u); err != nil {
		return err
	}
	exists, err := storage.Exists(txn, usernameKey(username))
	if err != nil {
		return err
	}
	if exists {
		return errors.Wrapf(UsernameTaken, "%q", username)
	}
	if err := storage.Delete(txn, usernameKey(u.Username)); err != nil {
		return err
	}
	u.Username = username
	if err := storage.Set(txn, storageKey(key), u); err != nil {
		return err
	}
	return storage.Set(txn, usernameKey(username), key)
}
