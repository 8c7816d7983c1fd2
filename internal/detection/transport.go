package detection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// maxResponseBytes bounds how much of a remote response is read.
const maxResponseBytes = 8 << 20

// RetryPolicy bounds every remote call a backend makes.
type RetryPolicy struct {
	// Timeout applies to each individual HTTP attempt.
	Timeout time.Duration
	// MaxAttempts is the total number of attempts for retryable failures.
	MaxAttempts int
	// Delay is the wait before the first retry; it doubles afterwards.
	Delay time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
var DefaultRetryPolicy = RetryPolicy{Timeout: 20 * time.Second, MaxAttempts: 3, Delay: time.Second}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, body)
}

// StatusCode extracts the HTTP status from err, or 0 when err did not come
// from a response.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// send performs one logical request with retries. newRequest is called for
// every attempt because request bodies cannot be replayed. Rate limiting,
// server errors and transport errors are retried with exponential backoff;
// any other status is returned immediately as a *StatusError.
func send(ctx context.Context, client *http.Client, policy RetryPolicy, logger *zap.Logger,
	newRequest func(ctx context.Context) (*http.Request, error),
) ([]byte, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	expo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(policy.Delay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(attempts-1)), ctx)

	op := func() ([]byte, error) {
		callCtx := ctx
		if policy.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
			defer cancel()
		}

		req, err := newRequest(callCtx)
		if err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, "building request"))
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, errors.Wrap(err, "request failed")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return nil, errors.Wrap(err, "reading response")
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		se := &StatusError{Code: resp.StatusCode, Body: string(body)}
		if retryable(resp.StatusCode) {
			return nil, se
		}
		return nil, backoff.Permanent(se)
	}

	notify := func(err error, wait time.Duration) {
		logger.Debug("retrying request", zap.Error(err), zap.Duration("wait", wait))
	}
	return backoff.RetryNotifyWithData(op, b, notify)
}
