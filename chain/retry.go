package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/richinex/llmchain/model"
)

// RetryPolicy controls re-dispatch of a step after a retryable transport
// failure. The zero value never retries.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

const (
	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 10 * time.Second
)

// do runs call until it succeeds, fails with a non-retryable error or the
// retries are exhausted. The last error is returned.
func (p RetryPolicy) do(ctx context.Context, call func() (string, error), notify func(attempt int, err error, wait time.Duration)) (string, error) {
	if p.MaxRetries <= 0 {
		return call()
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = defaultRetryInitial
	}
	exp.MaxInterval = p.MaxInterval
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = defaultRetryMax
	}
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.MaxRetries)), ctx)

	attempt := 0
	var lastErr error
	out, err := backoff.RetryNotifyWithData(func() (string, error) {
		attempt++
		s, err := call()
		if err != nil {
			lastErr = err
			if !model.IsRetryable(err) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return s, nil
	}, policy, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
	if err != nil && ctx.Err() != nil && lastErr != nil {
		// cancelled while waiting between attempts
		return "", model.Wrap(model.KindCancelled, ctx.Err(), "retry abandoned after: %v", lastErr)
	}
	return out, err
}
