// Package reset issues single-use password reset tokens and throttles
// the endpoints that use them.
package reset

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JAY4T/kaakazini/internal/apperr"
	"github.com/JAY4T/kaakazini/internal/utils"
)

type Store interface {
	// Incr bumps a counter, starting its window on first use.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Take returns and deletes the value. Missing keys return "".
	Take(ctx context.Context, key string) (string, error)
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Take(ctx context.Context, key string) (string, error) {
	v, err := s.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

// MemoryStore keeps everything in process. For single-instance development
// runs without Redis.
type MemoryStore struct {
	mu   sync.Mutex
	vals map[string]memVal
	now  func() time.Time
}

type memVal struct {
	s       string
	n       int64
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vals: map[string]memVal{}, now: time.Now}
}

func (m *MemoryStore) get(key string) (memVal, bool) {
	v, ok := m.vals[key]
	if ok && m.now().After(v.expires) {
		delete(m.vals, key)
		return memVal{}, false
	}
	return v, ok
}

func (m *MemoryStore) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.get(key)
	if !ok {
		v = memVal{expires: m.now().Add(window)}
	}
	v.n++
	m.vals[key] = v
	return v.n, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = memVal{s: value, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Take(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.get(key)
	if !ok {
		return "", nil
	}
	delete(m.vals, key)
	return v.s, nil
}

// Limit is N requests per window.
type Limit struct {
	N      int64
	Window time.Duration
}

var (
	RequestLimit = Limit{N: 3, Window: time.Hour}
	ConfirmLimit = Limit{N: 10, Window: time.Hour}
)

type Service struct {
	store Store
	ttl   time.Duration
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl}
}

func (s *Service) TTL() time.Duration { return s.ttl }

// Throttle counts one hit for scope+key and fails once the limit is passed.
func (s *Service) Throttle(ctx context.Context, scope, key string, l Limit) error {
	n, err := s.store.Incr(ctx, fmt.Sprintf("throttle:%s:%s", scope, key), l.Window)
	if err != nil {
		return err
	}
	if n > l.N {
		return fmt.Errorf("%w: try again later", apperr.ErrRateLimited)
	}
	return nil
}

func (s *Service) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	token := utils.RandomToken(32)
	if err := s.store.Set(ctx, "reset:"+token, userID.String(), s.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Consume spends the token. It only succeeds once, and only for the user it was issued to.
func (s *Service) Consume(ctx context.Context, userID uuid.UUID, token string) error {
	if token == "" {
		return apperr.Validation("invalid or expired token")
	}
	owner, err := s.store.Take(ctx, "reset:"+token)
	if err != nil {
		return err
	}
	if owner == "" || owner != userID.String() {
		return apperr.Validation("invalid or expired token")
	}
	return nil
}
