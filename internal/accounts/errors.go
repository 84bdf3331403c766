package accounts

import "errors"

var (
	// ErrNotFound indicates the account does not exist or is inactive.
	ErrNotFound = errors.New("account not found")

	// ErrInvalidInput indicates validation or bad input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmailTaken indicates another account already uses the email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUsernameTaken indicates another account already uses the username.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInactive indicates the account is disabled.
	ErrInactive = errors.New("account is disabled")

	// ErrTokenRevoked indicates a refresh token was already used for logout.
	ErrTokenRevoked = errors.New("token revoked")
)
