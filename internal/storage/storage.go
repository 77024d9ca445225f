package storage

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrChallengeNotFound   = errors.New("otp challenge not found")
	ErrTokenRecordNotFound = errors.New("token record not found")
)

// Challenge purposes. The two stores are identical tables apart from this
// discriminator.
const (
	PurposeLogin           = "login"
	PurposePasswordRecover = "password_recover"
)
