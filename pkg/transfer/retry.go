package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vcscache/vcscache/pkg/common"
)

// Default attempt budgets. Downloads race repository cold starts and get a
// generous budget; uploads fail the publish anyway, so they give up sooner.
const (
	DefaultDownloadAttempts = 20
	DefaultUploadAttempts   = 10
)

// Retry decorates a Transferer with sequential, exponentially backed-off
// retries. Precondition failures pass through on the first attempt.
type Retry struct {
	Transferer

	// Attempt budgets. Zero means the default for that direction.
	DownloadAttempts int
	UploadAttempts   int

	// MinWait overrides the initial backoff interval, mainly for tests.
	MinWait time.Duration
}

func (r *Retry) Download(ctx context.Context, url, dest string) error {
	attempts := r.DownloadAttempts
	if attempts <= 0 {
		attempts = DefaultDownloadAttempts
	}
	return r.do(ctx, "download", attempts, func() error {
		return r.Transferer.Download(ctx, url, dest)
	})
}

func (r *Retry) Upload(ctx context.Context, source, url string) error {
	attempts := r.UploadAttempts
	if attempts <= 0 {
		attempts = DefaultUploadAttempts
	}
	return r.do(ctx, "upload", attempts, func() error {
		return r.Transferer.Upload(ctx, source, url)
	})
}

func (r *Retry) do(ctx context.Context, op string, attempts int, fn func() error) error {
	logger := common.Logger(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	if r.MinWait > 0 {
		bo.InitialInterval = r.MinWait
	}

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSourceMissing) {
			return backoff.Permanent(err)
		}
		logger.Debugf("%s attempt %d/%d failed: %v", op, attempt, attempts, err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(attempts-1)), ctx))
	if err != nil {
		return fmt.Errorf("%s failed after %d attempt(s): %w", op, attempt, err)
	}
	return nil
}
