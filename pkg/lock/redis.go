package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/newtnet/pkg/util"
)

// DefaultRedisKey is the lock key used when none is configured.
const DefaultRedisKey = "NEWTNET_LOCK|drain"

// acquireLockScript takes the lock if nobody holds it.
// Returns 1 on success, 0 if already locked by another holder.
var acquireLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 1 then
	return 0
end
redis.call("HSET", key, "holder", ARGV[1], "acquired", ARGV[2], "ttl", ARGV[3])
redis.call("EXPIRE", key, tonumber(ARGV[3]))
return 1
`)

// refreshLockScript extends the lease if the caller still holds it.
// Returns 1 on success, 0 if the lease was lost.
var refreshLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("HGET", key, "holder") ~= ARGV[1] then
	return 0
end
redis.call("EXPIRE", key, tonumber(ARGV[2]))
return 1
`)

// releaseLockScript deletes the lock after verifying the holder.
// Returns 1 on success, 0 if holder mismatch, -1 if key doesn't exist.
var releaseLockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call("EXISTS", key) == 0 then
	return -1
end
local current = redis.call("HGET", key, "holder")
if current ~= ARGV[1] then
	return 0
end
redis.call("DEL", key)
return 1
`)

// Redis is a lease lock held in a Redis hash. While held, the lease is
// refreshed every third of its TTL, so a crashed holder frees it after one TTL.
// A lease that another holder took over, or that could not be refreshed for a
// whole TTL, is reported through Lost.
type Redis struct {
	client *redis.Client
	key    string
	holder string
	ttl    time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
	lost chan struct{}
}

var _ Leased = (*Redis)(nil)

// NewRedis returns a lease lock on key. The client is owned by the caller.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	return &Redis{client: client, key: key, holder: Holder(), ttl: ttl}
}

func (r *Redis) ttlSeconds() string {
	return fmt.Sprintf("%d", int(r.ttl/time.Second))
}

func (r *Redis) TryLock(ctx context.Context) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := acquireLockScript.Run(ctx, r.client, []string{r.key},
		r.holder, now, r.ttlSeconds()).Int()
	if err != nil {
		return false, fmt.Errorf("acquiring lock %s: %w", r.key, err)
	}
	if result == 0 {
		return false, nil
	}

	r.mu.Lock()
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.lost = make(chan struct{})
	go r.refresh(r.stop, r.done, r.lost)
	r.mu.Unlock()
	return true, nil
}

// Lost is closed when the lease taken by the last successful TryLock is lost.
func (r *Redis) Lost() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

func (r *Redis) refresh(stop, done, lost chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	log := util.WithField("lock", r.key)
	refreshed := time.Now()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ok, err := refreshLockScript.Run(context.Background(), r.client, []string{r.key},
				r.holder, r.ttlSeconds()).Int()
			if err != nil {
				if time.Since(refreshed) < r.ttl {
					log.Warnf("Refreshing lock lease: %v", err)
					continue
				}
				log.Errorf("Lock lease lost: not refreshed for %s: %v", r.ttl, err)
				close(lost)
				return
			}
			if ok == 0 {
				log.Errorf("Lock lease lost: held by another holder")
				close(lost)
				return
			}
			refreshed = time.Now()
		}
	}
}

func (r *Redis) Unlock(ctx context.Context) error {
	r.mu.Lock()
	if r.stop != nil {
		close(r.stop)
		<-r.done
		r.stop, r.done = nil, nil
	}
	r.mu.Unlock()

	result, err := releaseLockScript.Run(ctx, r.client, []string{r.key}, r.holder).Int()
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", r.key, err)
	}
	switch result {
	case 0:
		return fmt.Errorf("lock holder mismatch for %s", r.key)
	case -1:
		return nil // expired, treat as success
	}
	return nil
}
