package deploysite

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nais/sitedeploy/pkg/api"
)

const (
	DefaultRetryInitialDelay = 5 * time.Second
	DefaultRetryMaxDelay     = 90 * time.Second
	DefaultRetryRandomFactor = 0.5
)

// RetryPolicy is a Fibonacci backoff with random jitter.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// RandomFactor stretches each delay by a random amount between 0 and RandomFactor times the delay.
	RandomFactor float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay: DefaultRetryInitialDelay,
		MaxDelay:     DefaultRetryMaxDelay,
		RandomFactor: DefaultRetryRandomFactor,
	}
}

func (p RetryPolicy) Validate() error {
	if p.InitialDelay < 0 || p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("retry delays must satisfy 0 <= initial (%s) <= max (%s)", p.InitialDelay, p.MaxDelay)
	}
	if p.RandomFactor < 0 || p.RandomFactor > 1 {
		return fmt.Errorf("retry random factor must be between 0 and 1, got %v", p.RandomFactor)
	}
	return nil
}

// BaseDelay returns the delay before the given retry without jitter.
// Retries are numbered from 1; delays follow initial, initial, 2*initial, 3*initial, 5*initial...
func (p RetryPolicy) BaseDelay(retry int) time.Duration {
	prev, cur := time.Duration(0), p.InitialDelay
	for i := 1; i < retry && cur < p.MaxDelay; i++ {
		prev, cur = cur, prev+cur
	}
	return min(cur, p.MaxDelay)
}

// Delay returns the delay before the given retry, including jitter.
func (p RetryPolicy) Delay(retry int) time.Duration {
	delay := p.BaseDelay(retry)
	if p.RandomFactor > 0 {
		delay += time.Duration(rand.Float64() * p.RandomFactor * float64(delay))
	}
	return delay
}

// IsRetryable reports whether a failed upload may succeed when tried again.
//
// 400 and 422 are validation errors and never retried. Any other status above 400
// and any failure to get a response at all are considered transient.
func IsRetryable(err error) bool {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return false
		}
		return apiErr.StatusCode > http.StatusBadRequest
	}

	var transportErr *api.TransportError
	return errors.As(err, &transportErr)
}

// retry calls fn until it succeeds, returns a non-retryable error, or maxRetry retries have been made.
// fn receives the number of previous attempts. The number of attempts made is returned along with
// the last result.
func retry[T any](ctx context.Context, policy RetryPolicy, maxRetry int, fn func(retryCount int) (T, error)) (T, int, error) {
	for retryCount := 0; ; retryCount++ {
		result, err := fn(retryCount)
		attempts := retryCount + 1
		if err == nil {
			return result, attempts, nil
		}

		if !IsRetryable(err) || retryCount >= maxRetry || ctx.Err() != nil {
			return result, attempts, err
		}

		delay := policy.Delay(attempts)
		log.Warnf("%s (retrying in %s...)", err, delay.Round(time.Millisecond))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, attempts, fmt.Errorf("%w: %w", ctx.Err(), err)
		case <-timer.C:
		}
	}
}
