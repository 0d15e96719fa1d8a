// Package lease provides short-lived exclusive locks used to serialize
// billing work on a single recurring configuration.
package lease

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrHeld is returned when another holder owns the lease.
var ErrHeld = errors.New("invoicing: lease is held by another worker")

// Locker hands out exclusive, expiring leases keyed by name.
type Locker interface {
	// Acquire takes the lease for key or returns ErrHeld without waiting.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is safe to call more than once and never
// releases a lease that has since been taken by someone else.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Token returns a random holder token.
func Token() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// Memory is a Locker for a single process.
type Memory struct {
	mu   sync.Mutex
	held map[string]entry
	now  func() time.Time
}

type entry struct {
	token   string
	expires time.Time
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]entry), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	tok := Token()
	m.held[key] = entry{token: tok, expires: now.Add(ttl)}
	return &memoryLease{m: m, key: key, token: tok}, nil
}

type memoryLease struct {
	m     *Memory
	key   string
	token string
}

func (l *memoryLease) Key() string { return l.key }

func (l *memoryLease) Release(_ context.Context) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	if e, ok := l.m.held[l.key]; ok && e.token == l.token {
		delete(l.m.held, l.key)
	}
	return nil
}
