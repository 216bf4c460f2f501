package zerobuffer

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig bounds ConnectRetry's reconnection attempts. Zero values
// select backoff/v5's own defaults (500ms initial interval, 1.5x
// multiplier, 60s max interval).
type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// ConnectRetry connects a Writer to name, retrying with exponential
// backoff while the buffer does not exist yet or its reader has not
// started (ErrBufferNotFound, ErrReaderDead) — the two conditions a
// writer started before its reader will transiently see (§4.5, §4.7).
// Any other error from Connect is returned immediately.
func ConnectRetry(ctx context.Context, name string, rc RetryConfig, opts ...Option) (*Writer, error) {
	b := backoff.NewExponentialBackOff()
	if rc.InitialInterval > 0 {
		b.InitialInterval = rc.InitialInterval
	}
	if rc.MaxInterval > 0 {
		b.MaxInterval = rc.MaxInterval
	}

	retryOpts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if rc.MaxElapsedTime > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(rc.MaxElapsedTime))
	}

	return backoff.Retry(ctx, func() (*Writer, error) {
		w, err := Connect(name, opts...)
		if err != nil {
			if errors.Is(err, ErrBufferNotFound) || errors.Is(err, ErrReaderDead) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return w, nil
	}, retryOpts...)
}
