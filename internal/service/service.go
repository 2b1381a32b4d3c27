// Package service holds the business rules behind the HTTP handlers.
// Services depend on small consumer-side interfaces so handlers and tests can
// swap the repositories, the chain verifier and the gateways.
package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"duxxan-platform/internal/cache"
	"duxxan-platform/internal/chain"
	"duxxan-platform/internal/models"
)

// Broadcaster pushes events to websocket clients.
type Broadcaster interface {
	Broadcast(eventType string, data interface{})
}

// Scheduler enqueues a raffle's settlement.
type Scheduler interface {
	Schedule(ctx context.Context, r *models.Raffle) error
}

// UsedChecker reports whether a transaction hash already paid for something.
type UsedChecker interface {
	IsUsed(ctx context.Context, hash string) (bool, error)
}

// normalizeHash validates a transaction hash and lower-cases it.
func normalizeHash(field, hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if !chain.TxHashPattern.MatchString(hash) {
		return "", models.Invalid(field, "must be a 0x-prefixed 32 byte hex hash")
	}
	return strings.ToLower(hash), nil
}

// verifyPayment checks p.TxHash was never used and that it pays p.Amount to the
// contract. Reuse is rejected before the chain is queried.
func verifyPayment(ctx context.Context, used UsedChecker, verifier chain.PaymentVerifier, p chain.Payment) error {
	ok, err := used.IsUsed(ctx, p.TxHash)
	if err != nil {
		return err
	}
	if ok {
		return models.ErrDuplicateTransaction
	}
	if !verifier.Verify(ctx, p) {
		return models.ErrPaymentNotVerified
	}
	return nil
}

// cachedList serves key from cache, loading and storing it on a miss.
func cachedList[T any](ctx context.Context, c cache.Cache, log *zap.Logger, key string, ttl time.Duration, load func() ([]T, error)) ([]T, error) {
	var items []T
	if ok, err := c.Get(ctx, key, &items); err != nil {
		log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return items, nil
	}

	items, err := load()
	if err != nil {
		return nil, err
	}
	if err := c.Set(ctx, key, items, ttl); err != nil {
		log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return items, nil
}

func invalidate(ctx context.Context, c cache.Cache, log *zap.Logger, keys ...string) {
	if err := c.Delete(ctx, keys...); err != nil {
		log.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
