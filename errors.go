package login

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeGuestAccount       = "GUEST_ACCOUNT"
	TextCodeCredentialConflict = "CREDENTIAL_CONFLICT"
	TextCodeHashTimeout        = "HASH_TIMEOUT"
	TextCodeSessionStore       = "SESSION_STORE_FAILURE"
)

// ErrUserNotFound is returned when no persisted record exists for an identifier
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrEmptyPassword is returned when trying to derive a hash for an empty password
var ErrEmptyPassword = errors.New("password cannot be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrGuestAccount is returned when a mutation targets the guest identity
var ErrGuestAccount = errors.New("guest account cannot be modified", errors.CategoryValidation).
	WithTextCode(TextCodeGuestAccount).
	WithCode(errors.CodeBadRequest)

// ErrCredentialConflict is returned when the stored hash changed while a rebind was in flight
var ErrCredentialConflict = errors.New("credentials changed concurrently", errors.CategoryConflict).
	WithTextCode(TextCodeCredentialConflict).
	WithCode(errors.CodeConflict)

// ErrHashTimeout is returned when a hash operation does not complete before the deadline
var ErrHashTimeout = errors.New("password hashing timed out", errors.CategoryOperation).
	WithTextCode(TextCodeHashTimeout).
	WithCode(errors.CodeInternal)

// IsCredentialConflict reports whether err is a lost rebind race
func IsCredentialConflict(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeCredentialConflict
	}
	return false
}

// IsUserNotFound reports whether err signals a missing user record
func IsUserNotFound(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeUserNotFound {
		return true
	}
	return errors.IsNotFound(err)
}

// IsGuestAccount reports whether err was caused by mutating the guest
func IsGuestAccount(err error) bool {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeGuestAccount
	}
	return false
}

func userNotFound(metadata map[string]any) error {
	return errors.New("user not found", errors.CategoryNotFound).
		WithTextCode(TextCodeUserNotFound).
		WithCode(errors.CodeNotFound).
		WithMetadata(metadata)
}
