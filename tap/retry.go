package tap

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	// FetchMaxAttempts bounds the attempts for one page request.
	FetchMaxAttempts = 7
	// RefreshMaxAttempts bounds the attempts for one token refresh.
	RefreshMaxAttempts = 5
	// BackoffFactor is the exponential growth factor between attempts.
	BackoffFactor = 2.0
)

// RetryPolicy retries an operation with bounded exponential backoff.
type RetryPolicy struct {
	Name            string
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Retriable       func(error) bool

	// NewBackOff overrides the delay schedule. Attempts stay bounded by MaxAttempts.
	NewBackOff func() backoff.BackOff
}

// FetchRetryPolicy retries page requests on transient network and API failures.
func FetchRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Name:            "fetch",
		MaxAttempts:     FetchMaxAttempts,
		InitialInterval: 2 * time.Second,
		MaxInterval:     time.Minute,
		Retriable:       IsRetriable,
	}
}

// RefreshRetryPolicy retries token refreshes, only when the token endpoint returned an empty body.
func RefreshRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Name:            "refresh",
		MaxAttempts:     RefreshMaxAttempts,
		InitialInterval: 2 * time.Second,
		MaxInterval:     time.Minute,
		Retriable: func(err error) bool {
			return errors.Is(err, ErrEmptyResponse)
		},
	}
}

// IsRetriable reports whether a page request error is transient.
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *RetriableAPIError
	if errors.As(err, &apiErr) {
		return true
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	// *url.Error implements net.Error, so every transport failure lands here
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func (p RetryPolicy) backOff() backoff.BackOff {
	if p.NewBackOff != nil {
		return p.NewBackOff()
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMultiplier(BackoffFactor),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
}

// Do runs op until it succeeds, returns a non-retriable error, or MaxAttempts is reached.
// The last error is returned when attempts are exhausted.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retriable := p.Retriable
	if retriable == nil {
		retriable = IsRetriable
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		Logger().Warn("retrying after error",
			zap.String("policy", p.Name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("backoff", next),
			zap.Error(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(attempts-1)), ctx)
	return backoff.RetryNotify(operation, b, notify)
}
