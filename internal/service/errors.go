package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure; the HTTP boundary maps each kind to a status.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
)

// Error is a classified service error with a stable machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrValidation      = newError(KindValidation, "INVALID_REQUEST", "invalid request")
	ErrUnauthenticated = newError(KindUnauthenticated, "UNAUTHENTICATED", "authentication required")
	ErrForbidden       = newError(KindForbidden, "FORBIDDEN", "not allowed to perform this action")

	ErrActivityNotFound      = newError(KindNotFound, "ACTIVITY_NOT_FOUND", "activity not found")
	ErrAlreadyJoined         = newError(KindConflict, "ALREADY_JOINED", "user already joined this activity")
	ErrOwnerCannotJoin       = newError(KindConflict, "OWNER_CANNOT_JOIN", "owner cannot join their own activity")
	ErrReferralCodeExhausted = newError(KindConflict, "REFERRAL_CODE_CONFLICT", "could not allocate a unique referral code")
	ErrAssetUpload           = newError(KindInternal, "ASSET_UPLOAD_FAILED", "banner upload failed")

	ErrUserNotFound        = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrUserAlreadyExists   = newError(KindConflict, "USER_EXISTS", "user already exists with this email or username")
	ErrInvalidCredentials  = newError(KindUnauthenticated, "INVALID_CREDENTIALS", "invalid email or password")
	ErrRefreshTokenInvalid = newError(KindUnauthenticated, "REFRESH_TOKEN_INVALID", "refresh token invalid or revoked")
)

// invalid wraps ErrValidation with a field-level detail.
func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// KindOf reports the classification of err; unclassified errors are internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// CodeOf returns the stable error code carried by err, if any.
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return "INTERNAL_ERROR"
}
