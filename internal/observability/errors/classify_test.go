package errors

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/itiportal/portal-session/internal/errors"
)

type customErr struct{}

func (*customErr) Error() string { return "custom" }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "app code", err: apperrors.Unauthorized("nope"), want: "unauthorized"},
		{name: "wrapped app code", err: fmt.Errorf("refresh: %w", apperrors.InvalidResponse("bad")), want: "invalid_response"},
		{name: "deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), want: "timeout"},
		{name: "canceled", err: context.Canceled, want: "canceled"},
		{name: "net op", err: &net.OpError{Op: "dial", Err: goerrors.New("refused")}, want: "network"},
		{name: "custom type", err: fmt.Errorf("wrap: %w", &customErr{}), want: "errors_customerr"},
		{name: "plain", err: goerrors.New("boom"), want: "errors_errorstring"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
