package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore remembers tokens that passed verification so the contact
// endpoint can accept them once without asking the provider again.
type TokenStore interface {
	Mark(ctx context.Context, site, token string, ttl time.Duration) error
	// Consume reports whether token was marked and unexpired, and forgets it.
	Consume(ctx context.Context, site, token string) (bool, error)
}

func tokenKey(site, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "contact:verified:" + site + ":" + hex.EncodeToString(sum[:])
}

type MemoryTokens struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

var _ TokenStore = (*MemoryTokens)(nil)

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{now: time.Now, expires: map[string]time.Time{}}
}

func (m *MemoryTokens) Mark(_ context.Context, site, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for k, exp := range m.expires {
		if !now.Before(exp) {
			delete(m.expires, k)
		}
	}
	m.expires[tokenKey(site, token)] = now.Add(ttl)
	return nil
}

func (m *MemoryTokens) Consume(_ context.Context, site, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := tokenKey(site, token)
	exp, ok := m.expires[k]
	if !ok {
		return false, nil
	}
	delete(m.expires, k)
	return m.now().Before(exp), nil
}

// RedisTokens shares verified tokens between relay replicas.
type RedisTokens struct {
	client *redis.Client
}

var _ TokenStore = (*RedisTokens)(nil)

// NewRedisTokens connects to rawURL (redis://...) and pings it.
func NewRedisTokens(ctx context.Context, rawURL string) (*RedisTokens, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisTokens{client: client}, nil
}

func (s *RedisTokens) Mark(ctx context.Context, site, token string, ttl time.Duration) error {
	return s.client.Set(ctx, tokenKey(site, token), "1", ttl).Err()
}

func (s *RedisTokens) Consume(ctx context.Context, site, token string) (bool, error) {
	err := s.client.GetDel(ctx, tokenKey(site, token)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *RedisTokens) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisTokens) Close() error {
	return s.client.Close()
}
