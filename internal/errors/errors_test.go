package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "resource not found",
			},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeInternal,
				Message: "failed to process",
				Cause:   errors.New("underlying error"),
			},
			want: "failed to process: underlying error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := &AppError{
		Code:    ErrCodeInternal,
		Message: "wrapped error",
		Cause:   cause,
	}

	if unwrapped := err.Unwrap(); !errors.Is(unwrapped, cause) {
		t.Errorf("AppError.Unwrap() = %v, want %v", unwrapped, cause)
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		code   ErrorCode
	}{
		{http.StatusUnauthorized, ErrCodeUnauthorized},
		{http.StatusForbidden, ErrCodeForbidden},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusBadRequest, ErrCodeValidation},
		{http.StatusUnprocessableEntity, ErrCodeValidation},
		{http.StatusGatewayTimeout, ErrCodeTimeout},
		{http.StatusInternalServerError, ErrCodeRemote},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.status, err.Status)
			assert.Equal(t, http.StatusText(tt.status), err.Message)
		})
	}

	err := FromHTTPStatus(http.StatusUnauthorized, "Invalid credentials")
	assert.Equal(t, "Invalid credentials", err.Error())
}

func TestFromTransport(t *testing.T) {
	assert.Nil(t, FromTransport(nil))

	err := FromTransport(fmt.Errorf("do: %w", context.DeadlineExceeded))
	assert.True(t, IsTimeout(err))

	err = FromTransport(context.Canceled)
	assert.Equal(t, ErrCodeCanceled, err.Code)

	err = FromTransport(errors.New("dial tcp: connection refused"))
	assert.True(t, IsNetwork(err))
	assert.Contains(t, err.Error(), "connection refused")

	app := Unauthorized("nope")
	assert.Same(t, app, FromTransport(fmt.Errorf("wrapped: %w", app)))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "x"))

	cause := errors.New("boom")
	err := Wrapf(cause, ErrCodeInvalidResponse, "decode %s", "body")
	require.NotNil(t, err)
	assert.Equal(t, "decode body: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeInvalidResponse, GetCode(err))
}

func TestGetCodeAndField(t *testing.T) {
	err := fmt.Errorf("outer: %w", ValidationField("email", "email is invalid"))
	assert.True(t, IsValidation(err))
	assert.Equal(t, ErrCodeValidation, GetCode(err))
	assert.Equal(t, "email", GetField(err))

	plain := errors.New("plain")
	assert.Empty(t, GetCode(plain))
	assert.Empty(t, GetField(plain))
	assert.False(t, IsNotFound(plain))
	assert.True(t, IsNotFound(NotFound("gone")))
	assert.True(t, IsUnauthorized(Unauthorized("bad token")))
}

func TestUserMessage(t *testing.T) {
	assert.Empty(t, UserMessage(nil))
	assert.Equal(t, "Invalid credentials", UserMessage(FromHTTPStatus(http.StatusUnauthorized, "Invalid credentials")))
	assert.Equal(t, "network error, try again", UserMessage(FromTransport(errors.New("connection reset"))))
	assert.Equal(t, "network error, try again", UserMessage(FromTransport(context.DeadlineExceeded)))
	assert.Equal(t, "plain", UserMessage(errors.New("plain")))
}
