package aws

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/smithy-go"

	"github.com/velhola/gleaner/providers"
)

// deniedCodes are API error codes retrying cannot fix. Services spell
// "no" differently: EC2 says UnauthorizedOperation, S3 says AccessDenied,
// Lambda says AccessDeniedException.
var deniedCodes = map[string]bool{
	"AccessDenied":                        true,
	"AccessDeniedException":               true,
	"AuthFailure":                         true,
	"UnauthorizedOperation":               true,
	"UnauthorizedAccess":                  true,
	"OptInRequired":                       true,
	"UnrecognizedClientException":         true,
	"InvalidClientTokenId":                true,
	"MissingAuthenticationTokenException": true,
}

// throttleCodes are worth another attempt after backing off.
var throttleCodes = map[string]bool{
	"Throttling":                true,
	"ThrottlingException":       true,
	"RequestLimitExceeded":      true,
	"RequestThrottled":          true,
	"RequestThrottledException": true,
	"TooManyRequestsException":  true,
	"SlowDown":                  true,
	"ServiceUnavailable":        true,
	"InternalError":             true,
	"InternalFailure":           true,
}

// classify wraps an SDK failure in the taxonomy the orchestrator acts on:
// denied calls surface immediately so the kind is skipped with a reason,
// throttles and provider 5xx become retryable, anything else is wrapped
// as-is.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	// A dead context means the scan is over; retry decisions are moot.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case deniedCodes[code]:
			return &providers.PermissionError{Op: op, Err: err}
		case throttleCodes[code], apiErr.ErrorFault() == smithy.FaultServer:
			return &providers.TransientError{Op: op, Err: err}
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &providers.TransientError{Op: op, Err: err}
	}

	return fmt.Errorf("%s: %w", op, err)
}
