package identity

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

const (
	TextCodeTokenExpired     = "TOKEN_EXPIRED"
	TextCodeTokenMalformed   = "TOKEN_MALFORMED"
	TextCodeTokenRevoked     = "TOKEN_REVOKED"
	TextCodeTokenAlreadyUsed = "TOKEN_ALREADY_USED"
	TextCodeResendThrottled  = "RESEND_RATE_LIMITED"
	TextCodeAccountDisabled  = "ACCOUNT_DISABLED"
	TextCodeEmailTaken       = "EMAIL_TAKEN"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrMismatchedHashAndPassword is returned for any credential mismatch.
// Callers must not distinguish unknown email from wrong password.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountNotLoginable covers disabled or unverified accounts at login time
var ErrAccountNotLoginable = goerrors.New("account inactive or unverified", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeAccountDisabled)

// ErrTooManyLoginAttempts is returned while the login cooldown is in effect
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit)

// ErrTokenExpired flags session or opaque tokens past their expiry
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryValidation).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed flags tokens we could not parse or whose signature failed
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenMalformed)

// ErrTokenRevoked flags session tokens invalidated by logout
var ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized).
	WithTextCode(TextCodeTokenRevoked)

// ErrTokenAlreadyUsed flags a replayed single-use token
var ErrTokenAlreadyUsed = goerrors.New("token has already been used", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeTokenAlreadyUsed)

// ErrResendThrottled is returned when an activation resend comes too soon
var ErrResendThrottled = goerrors.New("activation resend requested too soon", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeResendThrottled)

// ErrNoEmptyString guards hashing of empty passwords
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrInvalidSaltEncoding is returned when a stored salt is not valid hex
var ErrInvalidSaltEncoding = goerrors.New("stored salt is not valid hexadecimal", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth)

// isRecordMissing reports a repository miss regardless of whether it
// surfaced as a generic not-found or a database not-found error.
func isRecordMissing(err error) bool {
	return goerrors.IsNotFound(err) || repository.IsRecordNotFound(err)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
