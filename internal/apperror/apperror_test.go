package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	sentinel := New(Unauthorized, "invalid credentials")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "direct", err: sentinel, want: Unauthorized},
		{name: "wrapped with fmt", err: fmt.Errorf("login: %w", sentinel), want: Unauthorized},
		{name: "plain error", err: errors.New("boom"), want: Internal},
		{name: "conflict", err: New(Conflict, "already enabled"), want: Conflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestError_IsMatchesCopies(t *testing.T) {
	sentinel := New(Forbidden, "password not set")

	withDetails := sentinel.WithDetails(map[string]any{"reason": "oauth"})
	assert.ErrorIs(t, withDetails, sentinel)
	assert.Equal(t, "oauth", withDetails.Details["reason"])
	assert.Nil(t, sentinel.Details)

	withCause := sentinel.WithCause(errors.New("db down"))
	assert.ErrorIs(t, withCause, sentinel)
	assert.NotErrorIs(t, New(Forbidden, "other"), sentinel)
}

func TestAs_HidesUnclassifiedCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	e := As(cause)

	assert.Equal(t, Internal, e.Kind)
	assert.Equal(t, "internal error", e.Message)
	assert.ErrorIs(t, e, cause)
}

func TestKind_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, Unauthorized.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, Forbidden.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, NotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, Validation.HTTPStatus())
	assert.Equal(t, http.StatusConflict, Conflict.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, RateLimited.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Internal.HTTPStatus())
	assert.Equal(t, "validation_failed", Validation.String())
}
