// Package redis is a Redis-backed guest cart backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/izahid19/ekart/pkg/errors"
)

// Backend implements guestcart.Backend on Redis strings. Every write
// refreshes the key's TTL so active guest carts do not expire.
type Backend struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Redis-backed guest cart backend.
func New(client *redis.Client, ttl time.Duration) *Backend {
	return &Backend{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the raw record at key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("guest cart", key)
		}
		return nil, fmt.Errorf("redis get guest cart: %w", err)
	}
	return data, nil
}

// Set writes the raw record at key with the configured TTL.
func (b *Backend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, key, value, b.ttl).Err(); err != nil {
		return fmt.Errorf("redis set guest cart: %w", err)
	}
	return nil
}

// Delete removes key.
func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del guest cart: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity for readiness checks.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
