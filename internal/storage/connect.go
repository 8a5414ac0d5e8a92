package storage

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/logger"
)

// Connect calls open until it succeeds or attempts run out, backing off exponentially from 500ms.
func Connect(ctx context.Context, attempts int, open func(context.Context) (Store, error)) (Store, error) {
	if attempts < 1 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(500*time.Millisecond))

	var store Store
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, err := open(ctx)
		if err != nil {
			logger.From(ctx).Warn("store connection failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		store = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}
