package user

import (
	"github.com/google/uuid"
)

// User is an account that can authenticate against the API.
type User struct {
	Key      uuid.UUID `json:"key"`
	Username string    `json:"username"`
}

const (
	keyPrefix      = "user/"
	usernamePrefix = "user-name/"
)

func storageKey(key uuid.UUID) []byte { return []byte(keyPrefix + key.String()) }

func usernameKey(username string) []byte { return []byte(usernamePrefix + username) }
