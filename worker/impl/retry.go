package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/compositor"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/layout"
)

var ErrStageTimeout = errors.New("stage timed out")

// RetryPolicy is an exponential backoff bounded by the number of attempts.
type RetryPolicy struct {
	// Total attempts including the first one. Values below 1 mean a single attempt.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialInterval: time.Second / 2, MaxInterval: 10 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exponential := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exponential.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exponential.MaxInterval = p.MaxInterval
	}
	// Attempts bound the retry, not elapsed time.
	exponential.MaxElapsedTime = 0
	exponential.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exponential, uint64(max(p.MaxAttempts-1, 0))), ctx)
}

// WithRetry calls fn until it succeeds, returns a permanent error, the attempts run out
// or ctx is done. The last error is returned as is.
func WithRetry[T any](ctx context.Context, policy RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		value, err := fn(ctx)
		if err != nil && IsPermanent(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}, policy.backOff(ctx))
}

// WithTimeout runs fn with a deadline. A call that overruns returns ErrStageTimeout,
// which is retryable, even when fn ignores its context.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() != nil {
			return r.value, fmt.Errorf("%w after %v: %w", ErrStageTimeout, timeout, r.err)
		}
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %v", ErrStageTimeout, timeout)
		}
		return zero, ctx.Err()
	}
}

// stage runs fn under the stage's timeout, retrying per its policy.
func stage[T any](ctx context.Context, options StageOptions, fn func(context.Context) (T, error)) (T, error) {
	return WithRetry(ctx, options.Retry, func(ctx context.Context) (T, error) {
		return WithTimeout(ctx, options.Timeout, fn)
	})
}

// IsPermanent reports whether retrying err cannot help: malformed input, rejected
// credentials, missing resources and cancellation.
func IsPermanent(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrStageTimeout):
		return false
	case errors.Is(err, context.Canceled),
		errors.Is(err, layout.ErrInvalidStyle),
		errors.Is(err, compositor.ErrImageDecode):
		return true
	}

	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.InvalidArgument, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound, codes.FailedPrecondition:
			return true
		}
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return permanentHTTPStatus(apiErr.Code)
	}
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return permanentHTTPStatus(openaiErr.HTTPStatusCode)
	}
	var requestErr *openai.RequestError
	if errors.As(err, &requestErr) {
		return permanentHTTPStatus(requestErr.HTTPStatusCode)
	}
	return false
}

func permanentHTTPStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	}
	return false
}
