package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-repository-filter/cache"
)

// LocalBackend is the in-process fallback tier: a sharded concurrent map
// with per-entry TTL expiry. Expired entries are dropped lazily on read and
// swept whenever the entry count exceeds maxEntries.
//
// It has none of sturdyc's stampede protection; it exists so reads keep
// hitting warm data when the primary tier is unavailable.
type LocalBackend struct {
	entries    *xsync.MapOf[string, localEntry]
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

type localEntry struct {
	value     any
	expiresAt time.Time
}

var _ cache.Backend = (*LocalBackend)(nil)

// LocalOption configures a LocalBackend.
type LocalOption func(*LocalBackend)

// WithMaxEntries caps how many live entries the backend keeps before a
// sweep removes expired ones. Zero disables the cap.
func WithMaxEntries(n int) LocalOption {
	return func(b *LocalBackend) { b.maxEntries = n }
}

// WithClock overrides the time source, used by expiry tests.
func WithClock(now func() time.Time) LocalOption {
	return func(b *LocalBackend) { b.now = now }
}

// NewLocalBackend builds a local tier with the given fallback TTL for Set
// calls that pass a zero duration.
func NewLocalBackend(defaultTTL time.Duration, opts ...LocalOption) *LocalBackend {
	b := &LocalBackend{
		entries:    xsync.NewMapOf[string, localEntry](),
		maxEntries: 10000,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Get implements cache.Backend.Get. Expired entries read as misses and are
// removed.
func (b *LocalBackend) Get(ctx context.Context, key string) (any, bool, error) {
	entry, ok := b.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	if b.now().After(entry.expiresAt) {
		b.entries.Delete(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set implements cache.Backend.Set.
func (b *LocalBackend) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.defaultTTL
	}
	b.entries.Store(key, localEntry{value: value, expiresAt: b.now().Add(ttl)})
	if b.maxEntries > 0 && b.entries.Size() > b.maxEntries {
		b.sweep()
	}
	return nil
}

// Delete implements cache.Backend.Delete.
func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	b.entries.Delete(key)
	return nil
}

// Keys implements cache.Backend.Keys for live entries under the prefix.
func (b *LocalBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	now := b.now()
	var out []string
	b.entries.Range(func(key string, entry localEntry) bool {
		if strings.HasPrefix(key, prefix) && !now.After(entry.expiresAt) {
			out = append(out, key)
		}
		return true
	})
	return out, nil
}

// Clear implements cache.Backend.Clear.
func (b *LocalBackend) Clear(ctx context.Context, prefix string) error {
	b.entries.Range(func(key string, _ localEntry) bool {
		if strings.HasPrefix(key, prefix) {
			b.entries.Delete(key)
		}
		return true
	})
	return nil
}

// sweep drops expired entries. Called inline from Set when the backend is
// over capacity, so the cost stays on the writer path.
func (b *LocalBackend) sweep() {
	now := b.now()
	b.entries.Range(func(key string, entry localEntry) bool {
		if now.After(entry.expiresAt) {
			b.entries.Delete(key)
		}
		return true
	})
}
