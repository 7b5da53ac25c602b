package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/childhoods-end/v0-manga-flow-sub000/engine/compositor"
	"github.com/childhoods-end/v0-manga-flow-sub000/engine/layout"
)

var quickRetry = RetryPolicy{MaxAttempts: 4, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestWithRetry(t *testing.T) {
	calls := 0
	value, err := WithRetry(context.Background(), quickRetry, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", value)
	require.Equal(t, 3, calls)
}

func TestWithRetryBoundedAttempts(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), quickRetry, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("attempt %d", calls)
	})
	require.EqualError(t, err, "attempt 4")
	require.Equal(t, 4, calls)

	calls = 0
	_, err = WithRetry(context.Background(), RetryPolicy{}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("once")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestWithRetryPermanent(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), quickRetry, func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("rendering: %w", layout.ErrInvalidStyle)
	})
	require.ErrorIs(t, err, layout.ErrInvalidStyle)
	require.Equal(t, 1, calls)
}

func TestWithRetryStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, RetryPolicy{MaxAttempts: 100, InitialInterval: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	require.Less(t, calls, 100)
}

func TestWithTimeout(t *testing.T) {
	value, err := WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, value)

	// fn ignores its context and overruns.
	release := make(chan struct{})
	defer close(release)
	_, err = WithTimeout(context.Background(), 10*time.Millisecond, func(context.Context) (int, error) {
		<-release
		return 0, nil
	})
	require.ErrorIs(t, err, ErrStageTimeout)
	require.False(t, IsPermanent(err))

	// fn honours its context.
	_, err = WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, ErrStageTimeout)

	value, err = WithTimeout(context.Background(), 0, func(context.Context) (int, error) {
		return 3, nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, value)
}

func TestTimedOutStageIsRetried(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	defer close(release)
	value, err := stage(context.Background(), StageOptions{Timeout: 10 * time.Millisecond, Retry: quickRetry}, func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-release
		}
		return "done", nil
	})
	require.NoError(t, err)
	require.Equal(t, "done", value)
	require.Equal(t, int32(2), calls.Load())
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"cancelled", context.Canceled, true},
		{"invalid style", fmt.Errorf("x: %w", layout.ErrInvalidStyle), true},
		{"decode", compositor.ErrImageDecode, true},
		{"timeout", fmt.Errorf("%w: %w", ErrStageTimeout, context.DeadlineExceeded), false},
		{"grpc unavailable", status.Error(codes.Unavailable, "later"), false},
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "quota"), false},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad"), true},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "who"), true},
		{"grpc not found", status.Error(codes.NotFound, "gone"), true},
		{"googleapi forbidden", &googleapi.Error{Code: http.StatusForbidden}, true},
		{"googleapi unavailable", &googleapi.Error{Code: http.StatusServiceUnavailable}, false},
		{"openai unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, true},
		{"openai rate limited", fmt.Errorf("translate: %w", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}), false},
		{"openai request bad", &openai.RequestError{HTTPStatusCode: http.StatusBadRequest}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}

func TestStageError(t *testing.T) {
	cause := status.Error(codes.Unavailable, "down")
	err := error(stageError(StageOCR, "page-9", cause))
	require.EqualError(t, err, "page page-9: ocr failed: "+cause.Error())
	require.ErrorIs(t, err, cause)
	require.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}
