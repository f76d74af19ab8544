package deploysite_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/deploysite"
)

func TestRetryPolicyBaseDelay(t *testing.T) {
	policy := deploysite.DefaultRetryPolicy()

	expected := []time.Duration{
		5 * time.Second,
		5 * time.Second,
		10 * time.Second,
		15 * time.Second,
		25 * time.Second,
		40 * time.Second,
		65 * time.Second,
		90 * time.Second,
		90 * time.Second,
	}

	for i, delay := range expected {
		assert.Equal(t, delay, policy.BaseDelay(i+1), "retry %d", i+1)
	}
	assert.Equal(t, 90*time.Second, policy.BaseDelay(100))
}

func TestRetryPolicyDelayJitter(t *testing.T) {
	policy := deploysite.DefaultRetryPolicy()

	for range 100 {
		delay := policy.Delay(3)
		assert.GreaterOrEqual(t, delay, 10*time.Second)
		assert.LessOrEqual(t, delay, 15*time.Second)
	}

	policy.RandomFactor = 0
	assert.Equal(t, 10*time.Second, policy.Delay(3))
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, deploysite.DefaultRetryPolicy().Validate())
	assert.Error(t, deploysite.RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Millisecond}.Validate())
	assert.Error(t, deploysite.RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Second, RandomFactor: 1.5}.Validate())
}

func TestIsRetryable(t *testing.T) {
	for _, tc := range []struct {
		name      string
		err       error
		retryable bool
	}{
		{name: "bad request", err: &api.Error{StatusCode: http.StatusBadRequest}, retryable: false},
		{name: "unauthorized", err: &api.Error{StatusCode: http.StatusUnauthorized}, retryable: true},
		{name: "not found", err: &api.Error{StatusCode: http.StatusNotFound}, retryable: true},
		{name: "unprocessable entity", err: &api.Error{StatusCode: http.StatusUnprocessableEntity}, retryable: false},
		{name: "too many requests", err: &api.Error{StatusCode: http.StatusTooManyRequests}, retryable: true},
		{name: "internal server error", err: &api.Error{StatusCode: http.StatusInternalServerError}, retryable: true},
		{name: "bad gateway", err: &api.Error{StatusCode: http.StatusBadGateway}, retryable: true},
		{name: "redirect", err: &api.Error{StatusCode: http.StatusNotModified}, retryable: false},
		{name: "transport", err: &api.TransportError{Err: errors.New("connection reset by peer")}, retryable: true},
		{name: "wrapped transport", err: fmt.Errorf("upload: %w", &api.TransportError{Err: errors.New("eof")}), retryable: true},
		{name: "wrapped unprocessable", err: fmt.Errorf("upload: %w", &api.Error{StatusCode: http.StatusUnprocessableEntity}), retryable: false},
		{name: "plain error", err: errors.New("permission denied"), retryable: false},
		{name: "context canceled", err: context.Canceled, retryable: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, deploysite.IsRetryable(tc.err))
		})
	}
}
