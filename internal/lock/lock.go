// Package lock keeps two batch runs from driving the same planning session.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when another run holds the session lock.
var ErrLocked = errors.New("planning session is locked by another run")

// ErrNotHeld is returned when a lease was lost before it was released.
var ErrNotHeld = errors.New("lock not held")

var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	refreshScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opt.Addr, err)
	}
	return client, nil
}

// Locker hands out leases on one key.
type Locker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewLocker creates a locker. A ttl below one second is raised to one second.
func NewLocker(client redis.UniversalClient, key string, ttl time.Duration) *Locker {
	if ttl < time.Second {
		ttl = time.Second
	}
	return &Locker{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock for owner. The lease refreshes itself every ttl/3
// until Release is called.
func (l *Locker) Acquire(ctx context.Context, owner string) (*Lease, error) {
	token := owner + ":" + uuid.New().String()

	status, err := l.client.SetArgs(ctx, l.key, token, redis.SetArgs{Mode: "NX", TTL: l.ttl}).Result()
	if errors.Is(err, redis.Nil) || (err == nil && status != "OK") {
		holder, _ := l.client.Get(ctx, l.key).Result()
		return nil, fmt.Errorf("%w (held by %s)", ErrLocked, holder)
	}
	if err != nil {
		return nil, fmt.Errorf("redis SET NX: %w", err)
	}

	lease := &Lease{
		client: l.client,
		key:    l.key,
		token:  token,
		ttl:    l.ttl,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()

	slog.Info("session lock acquired", "key", l.key, "owner", owner, "ttl", l.ttl)
	return lease, nil
}

// Lease is a held lock.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Token returns the value stored under the lock key.
func (l *Lease) Token() string {
	return l.token
}

func (l *Lease) keepAlive() {
	defer close(l.done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				slog.Warn("failed to refresh session lock", "key", l.key, "error", err)
				continue
			}
			if n == 0 {
				slog.Error("session lock lost", "key", l.key)
				return
			}
		}
	}
}

// Release stops the refresh loop and deletes the key if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotHeld, l.key)
	}
	slog.Info("session lock released", "key", l.key)
	return nil
}
