package deployclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/deploysite"
	"github.com/nais/sitedeploy/pkg/hashing"
	"github.com/nais/sitedeploy/pkg/manifest"
)

func TestErrorExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, ErrorExitCode(nil))
	assert.Equal(t, ExitInternalError, ErrorExitCode(errors.New("oops")))
	assert.Equal(t, ExitTemplateError, ErrorExitCode(Errorf(ExitTemplateError, "bad %s", "template")))
	assert.Equal(t, ExitTimeout, ErrorExitCode(fmt.Errorf("wrapped: %w", ErrorWrap(ExitTimeout, errors.New("slow")))))
}

func TestDeployExitCodes(t *testing.T) {
	stage := func(stage deploysite.Stage, err error) error {
		return &deploysite.StageError{Stage: stage, Err: err}
	}

	for _, tt := range []struct {
		name string
		err  error
		code ExitCode
	}{
		{"invalid options", fmt.Errorf("%w: concurrency", deploysite.ErrInvalidOptions), ExitInvocationFailure},
		{"nothing to deploy", stage(deploysite.StageNegotiate, deploysite.ErrNothingToDeploy), ExitNothingToDeploy},
		{"diff timeout", stage(deploysite.StageNegotiate, fmt.Errorf("%w diff", deploysite.ErrDeployTimeout)), ExitTimeout},
		{"cancelled by deadline", stage(deploysite.StageUpload, context.DeadlineExceeded), ExitTimeout},
		{"remote error state", stage(deploysite.StageFinalize, fmt.Errorf("%w: boom", deploysite.ErrDeployFailed)), ExitDeploymentFailure},
		{"unreadable file", stage(deploysite.StageHash, &hashing.Error{Path: "/site/a", Err: errors.New("denied")}), ExitHashFailure},
		{"duplicate path", stage(deploysite.StageManifest, manifest.ErrDuplicatePath), ExitHashFailure},
		{"rejected upload", stage(deploysite.StageUpload, &api.Error{StatusCode: http.StatusUnprocessableEntity}), ExitUploadFailure},
		{"negotiation unauthorized", stage(deploysite.StageNegotiate, &api.Error{StatusCode: http.StatusUnauthorized}), ExitNoDeployment},
		{"negotiation unavailable", stage(deploysite.StageNegotiate, &api.Error{StatusCode: http.StatusBadGateway}), ExitUnavailable},
		{"negotiation transport", stage(deploysite.StageNegotiate, &api.TransportError{Err: errors.New("refused")}), ExitUnavailable},
		{"finalize rejected", stage(deploysite.StageFinalize, &api.Error{StatusCode: http.StatusNotFound}), ExitDeploymentError},
		{"unclassified", errors.New("oops"), ExitInternalError},
	} {
		t.Run(tt.name, func(t *testing.T) {
			err := deployError(tt.err)
			assert.Equal(t, tt.code, ErrorExitCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.NoError(t, deployError(nil))
}
