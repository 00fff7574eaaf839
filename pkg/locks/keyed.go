// Package locks provides mutual exclusion keyed by aggregate id. Every key has
// an in-process mutex; with a Store attached the holder also owns a redis key,
// so api replicas sharing a database exclude each other.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chcndr-sys/dms-hub-app-new-sub000/pkg/instance"
)

const (
	defaultTTL   = 30 * time.Second
	defaultRetry = 25 * time.Millisecond
	dropTimeout  = 2 * time.Second
)

// Store is the subset of pkg/redis used for cross-process ownership.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Options configure the remote half of a Keyed. A zero value is process-local.
type Options struct {
	Store Store
	// KeyFunc maps a lock name to its redis key. Defaults to the name.
	KeyFunc func(name string) string
	// TTL bounds how long a crashed holder keeps the key.
	TTL   time.Duration
	Retry time.Duration
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// Keyed hands out one mutex per key. Lock order across kinds is always
// market before wallet. Entries are dropped once nobody holds or waits on
// them.
type Keyed struct {
	mapMu sync.Mutex
	muMap map[string]*entry
	opts  Options
}

func NewKeyed() *Keyed {
	return NewDistributed(Options{})
}

// NewDistributed builds a Keyed that also takes opts.Store keys when a store is
// set.
func NewDistributed(opts Options) *Keyed {
	if opts.KeyFunc == nil {
		opts.KeyFunc = func(name string) string { return name }
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Retry <= 0 {
		opts.Retry = defaultRetry
	}
	return &Keyed{muMap: make(map[string]*entry), opts: opts}
}

func (k *Keyed) acquire(key string) *entry {
	k.mapMu.Lock()
	defer k.mapMu.Unlock()

	e, exists := k.muMap[key]
	if !exists {
		e = &entry{}
		k.muMap[key] = e
	}
	e.refs++
	return e
}

func (k *Keyed) release(key string, e *entry) {
	k.mapMu.Lock()
	defer k.mapMu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(k.muMap, key)
	}
}

// Size reports how many keys are currently held or awaited.
func (k *Keyed) Size() int {
	k.mapMu.Lock()
	defer k.mapMu.Unlock()
	return len(k.muMap)
}

// Lock acquires key and returns its unlock func. Waiting on the remote key
// stops when ctx is done.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	e := k.acquire(key)
	e.mu.Lock()
	unlockLocal := func() {
		e.mu.Unlock()
		k.release(key, e)
	}
	if k.opts.Store == nil {
		return unlockLocal, nil
	}

	remoteKey := k.opts.KeyFunc(key)
	owner := instance.GetID() + ":" + uuid.NewString()
	if err := k.obtain(ctx, remoteKey, owner); err != nil {
		unlockLocal()
		return nil, err
	}
	return func() {
		k.drop(remoteKey, owner)
		unlockLocal()
	}, nil
}

// Do runs fn while holding key.
func (k *Keyed) Do(ctx context.Context, key string, fn func() error) error {
	unlock, err := k.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func (k *Keyed) obtain(ctx context.Context, key, owner string) error {
	ticker := time.NewTicker(k.opts.Retry)
	defer ticker.Stop()
	for {
		ok, err := k.opts.Store.SetNX(ctx, key, owner, k.opts.TTL)
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// drop deletes key only while owner still holds it. An expired key taken by
// another replica is left alone.
func (k *Keyed) drop(key, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), dropTimeout)
	defer cancel()

	value, err := k.opts.Store.Get(ctx, key)
	if err != nil || value != owner {
		return
	}
	_ = k.opts.Store.Del(ctx, key)
}
