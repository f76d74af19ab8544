package deploysite

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nais/sitedeploy/pkg/api"
)

// WaitForDiff polls an asynchronously created deploy until the deploy service has
// computed which digests it requires.
func WaitForDiff(ctx context.Context, client api.Client, siteID, deployID string, timeout, interval time.Duration) (*api.Deploy, error) {
	return pollDeploy(ctx, client, siteID, deployID, timeout, interval, func(state string) bool {
		switch state {
		case api.StatePrepared, api.StateUploading, api.StateUploaded, api.StateReady:
			return true
		}
		return false
	})
}

// WaitForDeploy polls a deploy until it is ready to serve traffic.
func WaitForDeploy(ctx context.Context, client api.Client, siteID, deployID string, timeout, interval time.Duration) (*api.Deploy, error) {
	return pollDeploy(ctx, client, siteID, deployID, timeout, interval, func(state string) bool {
		return state == api.StateReady
	})
}

func pollDeploy(ctx context.Context, client api.Client, siteID, deployID string, timeout, interval time.Duration, done func(state string) bool) (*api.Deploy, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrDeployTimeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastState string

	for {
		deploy, err := client.GetSiteDeploy(ctx, siteID, deployID)
		switch {
		case ctx.Err() != nil:
			return nil, timeoutError(ctx, deployID, timeout, lastState)
		case err != nil && IsRetryable(err):
			log.Warnf("%s (polling again in %s...)", err, interval)
		case err != nil:
			return nil, err
		case deploy.State == api.StateError:
			return deploy, fmt.Errorf("%w: deploy %s had an error: %s", ErrDeployFailed, deployID, deploy.ErrorMessage)
		case done(deploy.State):
			return deploy, nil
		default:
			if deploy.State != lastState {
				log.Debugf("Deploy %s is %s", deployID, deploy.State)
				lastState = deploy.State
			}
		}

		select {
		case <-ctx.Done():
			return nil, timeoutError(ctx, deployID, timeout, lastState)
		case <-ticker.C:
		}
	}
}

// timeoutError tells the poll timeout apart from cancellation of the parent context.
func timeoutError(ctx context.Context, deployID string, timeout time.Duration, lastState string) error {
	if errors.Is(context.Cause(ctx), ErrDeployTimeout) {
		return fmt.Errorf("%w %s after %s (last state %q)", ErrDeployTimeout, deployID, timeout, lastState)
	}
	return ctx.Err()
}
