// Package redis implements lease.Locker on Redis so that several engine
// processes can share one set of recurring configurations.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/invoicing/lease"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

var _ lease.Locker = (*Locker)(nil)

// Locker takes leases with SET NX PX.
type Locker struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Locker.
type Option func(*Locker)

// WithPrefix namespaces lease keys. Defaults to "invoicing:lease:".
func WithPrefix(prefix string) Option {
	return func(l *Locker) { l.prefix = prefix }
}

// New creates a Locker on an existing client.
func New(client redis.UniversalClient, opts ...Option) *Locker {
	l := &Locker{client: client, prefix: "invoicing:lease:"}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect creates a client for addr and verifies it with PING.
func Connect(ctx context.Context, addr, password string, db int, opts ...Option) (*Locker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("invoicing/lease/redis: ping %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lease.Lease, error) {
	k := l.prefix + key
	tok := lease.Token()
	ok, err := l.client.SetNX(ctx, k, tok, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("invoicing/lease/redis: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, lease.ErrHeld
	}
	return &redisLease{client: l.client, key: key, redisKey: k, token: tok}, nil
}

// Close closes the underlying client.
func (l *Locker) Close() error {
	return l.client.Close()
}

type redisLease struct {
	client   redis.UniversalClient
	key      string
	redisKey string
	token    string
}

func (r *redisLease) Key() string { return r.key }

func (r *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.redisKey}, r.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("invoicing/lease/redis: release %s: %w", r.key, err)
	}
	return nil
}
