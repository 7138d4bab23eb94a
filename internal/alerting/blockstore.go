package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"sentinel-ids/internal/config"
)

// blockKeyPrefix namespaces block-intent keys in the shared Redis instance.
const blockKeyPrefix = "block:intent:"

// BlockStore holds block intents keyed by IP. Entries expire with the block
// so enforcement layers can treat key existence as "currently blocked".
type BlockStore interface {
	SetBlockIntent(ctx context.Context, ip, reason string, duration time.Duration) error
	IsBlocked(ctx context.Context, ip string) (bool, error)
	Close() error
}

// blockIntent is the stored value for one blocked IP.
type blockIntent struct {
	IPAddress string    `json:"ipAddress"`
	Reason    string    `json:"reason"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RedisBlockStore keeps block intents in Redis with per-key TTL.
type RedisBlockStore struct {
	client *redis.Client
}

// NewRedisBlockStore connects to Redis and verifies the connection.
func NewRedisBlockStore(cfg config.RedisConfig) (*RedisBlockStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBlockStore{client: client}, nil
}

// SetBlockIntent stores a block intent that expires with the block duration.
func (s *RedisBlockStore) SetBlockIntent(ctx context.Context, ip, reason string, duration time.Duration) error {
	intent := blockIntent{
		IPAddress: ip,
		Reason:    reason,
		ExpiresAt: time.Now().UTC().Add(duration),
	}
	data, err := json.Marshal(intent)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, blockKeyPrefix+ip, data, duration).Err()
}

// IsBlocked reports whether an unexpired block intent exists for the IP.
func (s *RedisBlockStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	n, err := s.client.Exists(ctx, blockKeyPrefix+ip).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close closes the Redis connection.
func (s *RedisBlockStore) Close() error {
	return s.client.Close()
}

// MockBlockStore is an in-memory BlockStore for testing.
type MockBlockStore struct {
	mu     sync.RWMutex
	data   map[string]blockIntent
	expiry map[string]time.Time
	closed bool

	failSet bool
}

// NewMockBlockStore creates a mock block store.
func NewMockBlockStore() *MockBlockStore {
	return &MockBlockStore{
		data:   make(map[string]blockIntent),
		expiry: make(map[string]time.Time),
	}
}

// SetBlockIntent stores a block intent in memory.
func (m *MockBlockStore) SetBlockIntent(ctx context.Context, ip, reason string, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("store closed")
	}
	if m.failSet {
		return errors.New("injected failure")
	}

	m.data[ip] = blockIntent{
		IPAddress: ip,
		Reason:    reason,
		ExpiresAt: time.Now().UTC().Add(duration),
	}
	m.expiry[ip] = time.Now().Add(duration)
	return nil
}

// IsBlocked reports whether an unexpired intent exists.
func (m *MockBlockStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return false, errors.New("store closed")
	}

	exp, ok := m.expiry[ip]
	if !ok || time.Now().After(exp) {
		return false, nil
	}
	return true, nil
}

// Close marks the store as closed.
func (m *MockBlockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
