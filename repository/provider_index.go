package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProviderMessageIndex keeps provider message id -> (tenant, send record) in Redis
type RedisProviderMessageIndex struct {
	rc     *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProviderMessageIndex creates a Redis backed index. A zero ttl keeps keys forever.
func NewRedisProviderMessageIndex(rc *redis.Client, prefix string, ttl time.Duration) *RedisProviderMessageIndex {
	return &RedisProviderMessageIndex{rc: rc, prefix: prefix, ttl: ttl}
}

func (i *RedisProviderMessageIndex) key(providerMessageID string) string {
	return i.prefix + "pmid:" + providerMessageID
}

// Put indexes the provider message id; an existing entry is left untouched
func (i *RedisProviderMessageIndex) Put(ctx context.Context, providerMessageID string, ref ProviderMessageRef) error {
	bs, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to encode provider message ref: %w", err)
	}

	if err := i.rc.SetNX(ctx, i.key(providerMessageID), bs, i.ttl).Err(); err != nil {
		return fmt.Errorf("failed to index provider message id %s: %w", providerMessageID, err)
	}

	return nil
}

// Get resolves a provider message id, nil when absent
func (i *RedisProviderMessageIndex) Get(ctx context.Context, providerMessageID string) (*ProviderMessageRef, error) {
	bs, err := i.rc.Get(ctx, i.key(providerMessageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read provider message index: %w", err)
	}

	var ref ProviderMessageRef
	if err := json.Unmarshal(bs, &ref); err != nil {
		return nil, fmt.Errorf("failed to decode provider message ref: %w", err)
	}

	return &ref, nil
}
