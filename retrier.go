package parrotfwd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy bounds how often an operation is retried and how long to back
// off between attempts.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// Retry runs op until it succeeds, the policy is exhausted, or ctx is
// cancelled. The last error is returned wrapped with the attempt count.
func Retry(ctx context.Context, name string, p RetryPolicy, op func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err = op(); err == nil {
			return nil
		}
		log.WithField("err", err).Warnf("%s: attempt %d/%d failed", name, attempt, attempts)
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(p.Backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Wrapf(err, "%s: giving up after %d attempts", name, attempts)
}
