package auth

import "errors"

var (
	// ErrUserNotFound is returned when a user does not exist or is deleted.
	ErrUserNotFound = errors.New("auth: user not found")

	// ErrEmailExists is returned when the email address is already registered.
	ErrEmailExists = errors.New("auth: email already registered")

	// ErrInvalidCredentials is returned on a failed login. It deliberately
	// does not distinguish a wrong password from an unknown email.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrTokenInvalid is returned for tokens that fail signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")
)
