package auth

import "fmt"

// Error is the typed failure every public auth operation returns. Code is
// stable for API clients, Clean is safe to show a user, Message carries
// the diagnostic detail. A wrapped cause stays reachable through
// errors.Is, so the enumeration-safe generic errors still match the
// concrete validation failure underneath.
type Error struct {
	Code    int
	Clean   string
	Message string

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches by code, so wrapped copies of a sentinel still compare equal
// to it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// fail returns a copy of base carrying cause.
func fail(base *Error, cause error) *Error {
	e := *base
	e.cause = cause
	return &e
}

var (
	ErrAccountNotFound = &Error{
		Code:    404_016,
		Clean:   "account not found",
		Message: "the account does not exist",
	}
	ErrAccountUnverified = &Error{
		Code:    403_002,
		Clean:   "account is not verified",
		Message: "the account email has not been verified",
	}
	ErrAccountDisabled = &Error{
		Code:    403_003,
		Clean:   "account is disabled",
		Message: "the account has been deactivated",
	}
	ErrPasswordMismatch = &Error{
		Code:    401_003,
		Clean:   "password is incorrect",
		Message: "the supplied password does not match",
	}
	ErrInvalidCredentials = &Error{
		Code:    401_007,
		Clean:   "email or password is incorrect",
		Message: "email or password is incorrect",
	}
	ErrChallengeInvalid = &Error{
		Code:    400_058,
		Clean:   "verification code is invalid",
		Message: "the otp or the exchange token is invalid",
	}
	ErrChallengeExpired = &Error{
		Code:    400_059,
		Clean:   "verification code is expired",
		Message: "the otp challenge is past its expiry",
	}
	ErrRefreshInvalid = &Error{
		Code:    400_036,
		Clean:   "token is expired or invalid",
		Message: "the token is expired or invalid",
	}
	ErrVerificationFailed = &Error{
		Code:    400_069,
		Clean:   "verification failed",
		Message: "the verification token is invalid",
	}
)
