package bundlecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/keithlinneman/linnemanlabs-bundler/internal/xerrors"
)

var ErrNilClient = errors.New("bundlecache: nil redis client")

const (
	DefaultNamespace = "bundler"
	DefaultTTL       = 24 * time.Hour

	// artifacts larger than this are not written to redis
	maxStoredBody = 4 << 20
)

// RedisStore keeps msgpack encoded artifacts in Redis with a TTL.
type RedisStore struct {
	rdb       redis.UniversalClient
	namespace string
	ttl       time.Duration
	owned     bool
}

var _ Store = (*RedisStore)(nil)

type RedisOptions struct {
	Client    redis.UniversalClient
	Namespace string
	TTL       time.Duration
	// CloseClient lets Close release Client, set only when the store owns it
	CloseClient bool
}

func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	if opts.Client == nil {
		return nil, ErrNilClient
	}
	ns := opts.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: opts.Client, namespace: ns, ttl: ttl, owned: opts.CloseClient}, nil
}

// DialRedis connects to addr and pings it before returning.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, xerrors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     32,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, xerrors.Wrapf(err, "redis ping %s", addr)
	}
	return rdb, nil
}

func (s *RedisStore) key(k string) string { return s.namespace + ":" + k }

func (s *RedisStore) Get(ctx context.Context, key string) (*Artifact, bool, error) {
	b, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis GET %s: %w", key, err)
	}
	var a Artifact
	if err := msgpack.Unmarshal(b, &a); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return &a, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, a *Artifact) error {
	if a == nil || len(a.Body) > maxStoredBody {
		return nil
	}
	b, err := msgpack.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, s.key(key), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", key, err)
	}
	return nil
}

// Close releases the client only when the store owns it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
