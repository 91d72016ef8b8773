package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidCredentials, http.StatusForbidden},
		{ErrNotFound, http.StatusNotFound},
		{ErrInactive, http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", ErrInactive), http.StatusBadRequest},
		{&ValidationError{Field: "permissions", Message: "bad"}, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusCode(tt.err), tt.err.Error())
	}
}

func TestAuthError_IsMatchesKind(t *testing.T) {
	cause := errors.New("db down")
	err := newError(KindUnavailable, "custom message", cause)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindUnavailable, KindOf(fmt.Errorf("x: %w", err)))
	assert.Equal(t, Kind(0), KindOf(cause))
	assert.Equal(t, "unavailable", KindUnavailable.String())
}
