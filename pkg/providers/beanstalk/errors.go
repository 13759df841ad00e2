package beanstalk

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"

	"github.com/openfroyo/beanstack/pkg/engine"
)

// Elastic Beanstalk error codes with special meaning.
const (
	codeInvalidParameter     = "InvalidParameterValue"
	codeThrottling           = "Throttling"
	codeThrottlingException  = "ThrottlingException"
	codeRequestLimitExceeded = "RequestLimitExceeded"
	codeOperationInProgress  = "OperationInProgress"
	codeInsufficientPrivs    = "InsufficientPrivilegesException"
	codeTooManyEnvironments  = "TooManyEnvironmentsException"
	codeServiceUnavailable   = "ServiceUnavailable"
)

// classify turns an SDK error into a *engine.ControlPlaneError. The
// "invalid parameter" code is what the service returns for a missing
// application or template, so it keeps its own engine code.
func classify(err error, operation, resource string) error {
	var cpe *engine.ControlPlaneError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		cpe = engine.NewTransientError("request cancelled", err).WithCode(engine.ErrCodeTimeout)
	default:
		var apiErr smithy.APIError
		if !errors.As(err, &apiErr) {
			cpe = engine.NewPermanentError("request failed", err).WithCode(engine.ErrCodeProviderFailed)
			break
		}

		msg := apiErr.ErrorMessage()
		switch apiErr.ErrorCode() {
		case codeInvalidParameter:
			cpe = engine.NewPermanentError(msg, err).WithCode(engine.ErrCodeInvalidParameter)
		case codeThrottling, codeThrottlingException, codeRequestLimitExceeded:
			cpe = engine.NewThrottledError(msg, err).WithCode(engine.ErrCodeRateLimited)
		case codeOperationInProgress:
			cpe = engine.NewConflictError(msg, err).WithCode(engine.ErrCodeConflict)
		case codeInsufficientPrivs:
			cpe = engine.NewPermanentError(msg, err).WithCode(engine.ErrCodePermissionDenied)
		case codeServiceUnavailable:
			cpe = engine.NewTransientError(msg, err).WithCode(engine.ErrCodeProviderFailed)
		case codeTooManyEnvironments:
			cpe = engine.NewPermanentError(msg, err).WithCode(engine.ErrCodeValidation)
		default:
			if apiErr.ErrorFault() == smithy.FaultServer {
				cpe = engine.NewTransientError(msg, err).WithCode(engine.ErrCodeProviderFailed)
			} else {
				cpe = engine.NewPermanentError(msg, err).WithCode(engine.ErrCodeProviderFailed)
			}
		}
		cpe = cpe.WithDetail("aws_code", apiErr.ErrorCode())
	}
	return cpe.WithResource(resource).WithOperation(operation)
}
