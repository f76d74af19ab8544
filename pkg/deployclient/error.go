package deployclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/deploysite"
)

type ExitCode int

// Keep separate to avoid skewing exit codes
const (
	ExitSuccess ExitCode = iota
	ExitDeploymentFailure
	ExitDeploymentError
	ExitDeploymentInactive
	ExitNoDeployment
	ExitUnavailable
	ExitInvocationFailure
	ExitInternalError
	ExitTemplateError
	ExitTimeout
	ExitNothingToDeploy
	ExitHashFailure
	ExitUploadFailure
)

type Error struct {
	Code ExitCode
	Err  error
}

func (err *Error) Error() string {
	return err.Err.Error()
}

func (err *Error) Unwrap() error {
	return err.Err
}

func Errorf(exitCode ExitCode, format string, args ...interface{}) *Error {
	return &Error{
		Code: exitCode,
		Err:  fmt.Errorf(format, args...),
	}
}

func ErrorWrap(exitCode ExitCode, err error) *Error {
	return &Error{
		Code: exitCode,
		Err:  err,
	}
}

func ErrorExitCode(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var e *Error
	if !errors.As(err, &e) {
		return ExitInternalError
	}
	return e.Code
}

// deployError assigns an exit code to an error returned from the deploy pipeline.
func deployError(err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	return ErrorWrap(deployExitCode(err), err)
}

func deployExitCode(err error) ExitCode {
	switch {
	case errors.Is(err, deploysite.ErrInvalidOptions):
		return ExitInvocationFailure
	case errors.Is(err, deploysite.ErrNothingToDeploy):
		return ExitNothingToDeploy
	case errors.Is(err, deploysite.ErrDeployTimeout), errors.Is(err, context.DeadlineExceeded):
		return ExitTimeout
	case errors.Is(err, deploysite.ErrDeployFailed):
		return ExitDeploymentFailure
	}

	var stageErr *deploysite.StageError
	if !errors.As(err, &stageErr) {
		return ExitInternalError
	}

	switch stageErr.Stage {
	case deploysite.StagePrepare, deploysite.StageHash, deploysite.StageManifest:
		return ExitHashFailure
	case deploysite.StageUpload:
		return ExitUploadFailure
	}

	var transportErr *api.TransportError
	if errors.As(err, &transportErr) {
		return ExitUnavailable
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode >= http.StatusInternalServerError {
		return ExitUnavailable
	}

	if stageErr.Stage == deploysite.StageNegotiate {
		return ExitNoDeployment
	}

	return ExitDeploymentError
}
