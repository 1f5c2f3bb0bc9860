package http

import (
	"context"
	"math/rand"
	nethttp "net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/tablerag/tablerag-client/internal/constants"
)

// NewRetryClient wraps base with retryablehttp for idempotent reads.
//
// maxRetries of zero gives exactly one attempt per call. Exhausted retries return
// the last response unchanged so callers can inspect the status code.
func NewRetryClient(base *nethttp.Client, maxRetries int, logger retryablehttp.LeveledLogger) *retryablehttp.Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = constants.RetryWaitMin
	rc.RetryWaitMax = constants.RetryWaitMax
	rc.CheckRetry = IdempotentRetryPolicy
	rc.Backoff = JitterBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = logger
	return rc
}

// IdempotentRetryPolicy retries GET and HEAD requests on connection errors, 429 and
// 5xx responses. Anything that creates server-side work is never retried.
//
// Status-based decisions never return an error so the final response reaches the
// caller intact.
func IdempotentRetryPolicy(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.Request != nil && !isIdempotent(resp.Request.Method) {
		return false, nil
	}
	retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	if resp != nil {
		return retry, nil
	}
	return retry, checkErr
}

func isIdempotent(method string) bool {
	return method == nethttp.MethodGet || method == nethttp.MethodHead
}

// JitterBackoff honours Retry-After on 429/503 and otherwise uses full-jitter
// exponential backoff.
func JitterBackoff(min, max time.Duration, attempt int, resp *nethttp.Response) time.Duration {
	if resp != nil && (resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusServiceUnavailable) {
		if resp.Header.Get("Retry-After") != "" {
			return retryablehttp.DefaultBackoff(min, max, attempt, resp)
		}
	}
	wait := CalculateBackoff(attempt+1, min, max)
	if wait < min {
		wait = min
	}
	return wait
}

// CalculateBackoff returns exponential backoff duration with full jitter
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	base := time.Duration(1<<uint(attempt)) * initialDelay
	if base > maxDelay || base <= 0 {
		base = maxDelay
	}
	if base <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(int64(base)))
}
