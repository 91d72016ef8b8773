package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies authentication and authorization failures
type Kind int

const (
	KindInvalidCredentials Kind = iota + 1
	KindNotFound
	KindInactive
	KindForbidden
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNotFound:
		return "not_found"
	case KindInactive:
		return "inactive"
	case KindForbidden:
		return "forbidden"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// StatusCode is the HTTP status a failure of this kind is reported with
func (k Kind) StatusCode() int {
	switch k {
	case KindInvalidCredentials, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInactive:
		return http.StatusBadRequest
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AuthError is returned by every identity and permission check. Message is
// safe to show to clients; Err carries the internal cause.
type AuthError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind, so errors.Is(err, ErrForbidden)
// works regardless of the message.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &AuthError{Kind: KindInvalidCredentials, Message: "could not validate credentials"}
	ErrNotFound           = &AuthError{Kind: KindNotFound, Message: "user not found"}
	ErrInactive           = &AuthError{Kind: KindInactive, Message: "inactive user"}
	ErrForbidden          = &AuthError{Kind: KindForbidden, Message: "the user doesn't have enough privileges"}
	ErrUnavailable        = &AuthError{Kind: KindUnavailable, Message: "identity store unavailable"}
)

// HTTPStatus, ErrorCode and PublicMessage let httputil report the error
// without exposing Err.
func (e *AuthError) HTTPStatus() int       { return e.Kind.StatusCode() }
func (e *AuthError) ErrorCode() string     { return e.Kind.String() }
func (e *AuthError) PublicMessage() string { return e.Message }

// ErrUserNotFound is returned by credential stores for an unknown user id
var ErrUserNotFound = errors.New("user not found")

func newError(kind Kind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

// ValidationError reports a malformed request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) HTTPStatus() int       { return http.StatusUnprocessableEntity }
func (e *ValidationError) ErrorCode() string     { return "validation_error" }
func (e *ValidationError) PublicMessage() string { return e.Error() }

// StatusCode maps an error to the HTTP status it should be reported with
func StatusCode(err error) int {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind.StatusCode()
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of an AuthError, or 0
func KindOf(err error) Kind {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return 0
}
