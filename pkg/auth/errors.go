package auth

import (
	"github.com/cockroachdb/errors"
	"github.com/eshiol/j3-rest-api/pkg/auth/password"
)

var (
	// InvalidCredentials marks an unknown username or a wrong password.
	InvalidCredentials = password.Invalid
	// RegistrationFailed marks credentials that could not be stored.
	RegistrationFailed = errors.New("[auth] - registration failed")
	// UsernameTaken is returned when registering or renaming to a username
	// that already has credentials.
	UsernameTaken = errors.New("[auth] - username already exists")
	// UpdateFailed is returned when no authenticator accepts a credential change.
	UpdateFailed = errors.New("[auth] - credential update failed")
)
