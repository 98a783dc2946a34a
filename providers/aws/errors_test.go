package aws

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velhola/gleaner/providers"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassifyPermissionCodes(t *testing.T) {
	for _, code := range []string{"AccessDenied", "UnauthorizedOperation", "AuthFailure", "OptInRequired"} {
		t.Run(code, func(t *testing.T) {
			err := classify("describe things", &smithy.GenericAPIError{Code: code, Message: "nope"})

			var denied *providers.PermissionError
			require.ErrorAs(t, err, &denied)
			assert.Equal(t, "describe things", denied.Op)
		})
	}
}

func TestClassifyThrottleCodes(t *testing.T) {
	for _, code := range []string{"Throttling", "RequestLimitExceeded", "TooManyRequestsException", "SlowDown"} {
		t.Run(code, func(t *testing.T) {
			err := classify("describe things", &smithy.GenericAPIError{Code: code})

			var transient *providers.TransientError
			require.ErrorAs(t, err, &transient)
			assert.Equal(t, "describe things", transient.Op)
		})
	}
}

func TestClassifyServerFaultIsTransient(t *testing.T) {
	err := classify("describe things", &smithy.GenericAPIError{
		Code:  "SomethingBrokeUpstream",
		Fault: smithy.FaultServer,
	})

	var transient *providers.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestClassifyNetworkTimeoutIsTransient(t *testing.T) {
	err := classify("describe things", fmt.Errorf("dial: %w", timeoutError{}))

	var transient *providers.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestClassifyUnknownClientErrorStaysPlain(t *testing.T) {
	err := classify("describe things", &smithy.GenericAPIError{Code: "ValidationError"})
	require.Error(t, err)

	var denied *providers.PermissionError
	var transient *providers.TransientError
	assert.False(t, errors.As(err, &denied))
	assert.False(t, errors.As(err, &transient))
	assert.Contains(t, err.Error(), "describe things")
}

func TestClassifyContextEndIsNeverRetryable(t *testing.T) {
	err := classify("describe things", context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)

	var transient *providers.TransientError
	assert.False(t, errors.As(err, &transient))
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify("describe things", nil))
}
