package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"SignalView/internal/domain/models"
	domrepo "SignalView/internal/domain/repository"
	"SignalView/internal/snapshot"
	pkgcache "SignalView/pkg/cache"
	applogger "SignalView/pkg/logger"
)

// Cache results reported to metrics.
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared"
	ResultL2Hit  = "l2_hit"
	ResultError  = "error"
)

const (
	l2Namespace = "snapshot"
	l2Timeout   = 2 * time.Second
)

type entry struct {
	snap *models.Snapshot
	exp  time.Time
}

// SnapshotCache memoizes snapshots per key for a TTL. Reads are lock free,
// concurrent misses on one key share a single fetch and failures are never
// stored.
type SnapshotCache struct {
	m     sync.Map // key -> *entry
	group singleflight.Group

	mu       sync.Mutex
	gen      uint64
	keyGen   map[string]uint64
	prefGen  map[string]uint64
	inflight map[string]int

	l2      pkgcache.Service
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

// Option configures a SnapshotCache.
type Option func(*SnapshotCache)

// WithL2 shares snapshots with other replicas through a cache service.
func WithL2(s pkgcache.Service) Option {
	return func(c *SnapshotCache) { c.l2 = s }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(c *SnapshotCache) { c.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *SnapshotCache) {
		if l != nil {
			c.l = l
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) { c.now = now }
}

func NewSnapshotCache(opts ...Option) *SnapshotCache {
	c := &SnapshotCache{
		keyGen:   make(map[string]uint64),
		prefGen:  make(map[string]uint64),
		inflight: make(map[string]int),
		l:        applogger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a fresh cached snapshot without fetching.
func (c *SnapshotCache) Get(key string) (*models.Snapshot, bool) {
	v, ok := c.m.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(*entry)
	if !c.now().Before(e.exp) {
		c.m.CompareAndDelete(key, v)
		return nil, false
	}
	return e.snap, true
}

// GetOrFetch returns the cached snapshot for key or runs fetch once for all
// concurrent callers. The fetch is detached from ctx: a caller whose ctx
// ends gets a FetchTimeout error while the fetch keeps running for others.
func (c *SnapshotCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (*models.Snapshot, error)) (*models.Snapshot, error) {
	if snap, ok := c.Get(key); ok {
		c.record(ResultHit)
		return snap, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.fill(detached, key, ttl, fetch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			c.record(ResultError)
			return nil, res.Err
		}
		if res.Shared {
			c.record(ResultShared)
		}
		return res.Val.(*models.Snapshot), nil
	case <-ctx.Done():
		return nil, snapshot.NewError(snapshot.KindFetchTimeout, ctx.Err(), "waiting for snapshot %q", key)
	}
}

func (c *SnapshotCache) fill(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (*models.Snapshot, error)) (*models.Snapshot, error) {
	startGen := c.begin(key)
	defer c.end(key)

	// A flight that finished between the caller's Get and DoChan already
	// stored the entry.
	if snap, ok := c.Get(key); ok {
		c.record(ResultHit)
		return snap, nil
	}

	if snap, ok := c.fromL2(ctx, key, ttl); ok {
		c.record(ResultL2Hit)
		c.store(key, startGen, snap, snap.ComputedAt.Add(ttl), false, ttl)
		return snap, nil
	}

	c.record(ResultMiss)
	snap, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	snap.Key = key
	c.store(key, startGen, snap, c.now().Add(ttl), true, ttl)
	return snap, nil
}

// store publishes the entry unless key was invalidated after the fetch began.
func (c *SnapshotCache) store(key string, startGen uint64, snap *models.Snapshot, exp time.Time, toL2 bool, ttl time.Duration) {
	c.mu.Lock()
	stale := c.invalidatedSince(key, startGen)
	if !stale {
		c.m.Store(key, &entry{snap: snap, exp: exp})
	}
	c.mu.Unlock()

	if stale {
		c.l.Debug("snapshot invalidated during fetch, not cached", applogger.String("key", key))
		return
	}
	if toL2 && c.l2 != nil {
		l2ctx, cancel := context.WithTimeout(context.Background(), l2Timeout)
		defer cancel()
		if err := c.l2.Set(l2ctx, l2Key(key), snap, ttl); err != nil {
			c.l.Warn("snapshot l2 write failed", applogger.String("key", key), applogger.Error(err))
		}
	}
}

func (c *SnapshotCache) fromL2(ctx context.Context, key string, ttl time.Duration) (*models.Snapshot, bool) {
	if c.l2 == nil {
		return nil, false
	}
	l2ctx, cancel := context.WithTimeout(ctx, l2Timeout)
	defer cancel()

	var snap models.Snapshot
	if err := c.l2.Get(l2ctx, l2Key(key), &snap); err != nil {
		if !errors.Is(err, pkgcache.ErrCacheMiss) {
			c.l.Warn("snapshot l2 read failed", applogger.String("key", key), applogger.Error(err))
		}
		return nil, false
	}
	if !c.now().Before(snap.ComputedAt.Add(ttl)) {
		return nil, false
	}
	return &snap, true
}

// Invalidate drops key. A fetch already running for key still answers its
// waiters but its result is not cached.
func (c *SnapshotCache) Invalidate(key string) {
	c.mu.Lock()
	c.gen++
	c.keyGen[key] = c.gen
	c.m.Delete(key)
	c.mu.Unlock()
	c.group.Forget(key)

	if c.l2 != nil {
		ctx, cancel := context.WithTimeout(context.Background(), l2Timeout)
		defer cancel()
		if err := c.l2.Delete(ctx, l2Key(key)); err != nil {
			c.l.Warn("snapshot l2 delete failed", applogger.String("key", key), applogger.Error(err))
		}
	}
}

// InvalidatePrefix drops every key starting with prefix and returns how
// many cached entries were removed.
func (c *SnapshotCache) InvalidatePrefix(prefix string) int {
	removed := 0
	c.mu.Lock()
	c.gen++
	c.prefGen[prefix] = c.gen
	c.m.Range(func(k, _ any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			c.m.Delete(k)
			removed++
		}
		return true
	})
	var flying []string
	for k := range c.inflight {
		if strings.HasPrefix(k, prefix) {
			flying = append(flying, k)
		}
	}
	c.mu.Unlock()
	for _, k := range flying {
		c.group.Forget(k)
	}

	if c.l2 != nil {
		ctx, cancel := context.WithTimeout(context.Background(), l2Timeout)
		defer cancel()
		if err := c.l2.DeleteByPattern(ctx, pkgcache.BuildPattern(l2Key(prefix))); err != nil {
			c.l.Warn("snapshot l2 prefix delete failed", applogger.String("prefix", prefix), applogger.Error(err))
		}
	}
	return removed
}

// Len counts cached entries, fresh or not.
func (c *SnapshotCache) Len() int {
	n := 0
	c.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *SnapshotCache) begin(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight[key]++
	return c.gen
}

func (c *SnapshotCache) end(key string) {
	c.mu.Lock()
	if c.inflight[key]--; c.inflight[key] <= 0 {
		delete(c.inflight, key)
	}
	c.mu.Unlock()
}

// invalidatedSince must be called with mu held.
func (c *SnapshotCache) invalidatedSince(key string, gen uint64) bool {
	if g, ok := c.keyGen[key]; ok && g > gen {
		return true
	}
	for p, g := range c.prefGen {
		if g > gen && strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (c *SnapshotCache) record(result string) {
	if c.metrics != nil {
		c.metrics.RecordCache(result)
	}
}

func l2Key(key string) string {
	return pkgcache.GenerateKey(l2Namespace, key)
}
