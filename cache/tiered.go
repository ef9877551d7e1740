package cache

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// TieredService is a CacheService layered over a primary backend with a
// local in-process fallback. Every backend call is wrapped: a backend error
// is counted, logged, and treated as a miss or no-op, so a cache outage
// never fails a data operation. Both tiers are optional; with neither, every
// cached call degrades to a pass-through.
//
// The service also tracks per-key usage so popular queries can be re-executed
// proactively before their entries expire. Counters are owned by the service
// instance; two engines with separate services do not cross-contaminate
// statistics.
type TieredService struct {
	cfg     Config
	primary Backend
	local   Backend
	logger  *slog.Logger

	usage   *xsync.MapOf[string, *xsync.Counter]
	warmers *xsync.MapOf[string, any]

	hits       *xsync.Counter
	misses     *xsync.Counter
	errs       *xsync.Counter
	warmCycles *xsync.Counter
}

var _ CacheService = (*TieredService)(nil)
var _ Warmer = (*TieredService)(nil)

// TieredOption configures a TieredService.
type TieredOption func(*TieredService)

// WithLogger sets the logger used for swallowed backend errors.
func WithLogger(l *slog.Logger) TieredOption {
	return func(s *TieredService) { s.logger = l }
}

// NewTieredService builds a service over the given tiers. Either tier may
// be nil.
func NewTieredService(primary, local Backend, cfg Config, opts ...TieredOption) (*TieredService, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &TieredService{
		cfg:        cfg,
		primary:    primary,
		local:      local,
		usage:      xsync.NewMapOf[string, *xsync.Counter](),
		warmers:    xsync.NewMapOf[string, any](),
		hits:       xsync.NewCounter(),
		misses:     xsync.NewCounter(),
		errs:       xsync.NewCounter(),
		warmCycles: xsync.NewCounter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

func (s *TieredService) fullKey(key string) string {
	if s.cfg.KeyPrefix == "" {
		return key
	}
	return JoinKey(s.cfg.KeyPrefix, key)
}

// GetOrFetch implements CacheService.GetOrFetch: primary tier, then local
// fallback, then the source of truth with write-back to both tiers.
func (s *TieredService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if err := validateFetchFn(fetchFn); err != nil {
		return nil, err
	}
	if s.primary == nil && s.local == nil {
		return callFetchFn(ctx, fetchFn)
	}

	full := s.fullKey(key)
	s.trackUsage(key, fetchFn)

	if v, ok := s.tierGet(ctx, s.primary, full); ok {
		s.hits.Inc()
		return snapshot(v), nil
	}
	if v, ok := s.tierGet(ctx, s.local, full); ok {
		s.hits.Inc()
		// Repopulate the primary tier so the next read does not fall
		// through again.
		s.tierSet(ctx, s.primary, full, v)
		return snapshot(v), nil
	}

	s.misses.Inc()
	v, err := callFetchFn(ctx, fetchFn)
	if err != nil {
		return nil, err
	}
	s.storeBoth(ctx, full, v)
	return v, nil
}

func (s *TieredService) tierGet(ctx context.Context, tier Backend, key string) (any, bool) {
	if tier == nil {
		return nil, false
	}
	v, ok, err := tier.Get(ctx, key)
	if err != nil {
		s.errs.Inc()
		s.logger.Warn("cache: get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return v, ok
}

func (s *TieredService) tierSet(ctx context.Context, tier Backend, key string, v any) {
	if tier == nil {
		return
	}
	if err := tier.Set(ctx, key, v, s.cfg.DefaultTTL); err != nil {
		s.errs.Inc()
		s.logger.Warn("cache: set failed, skipping", "key", key, "error", err)
	}
}

func (s *TieredService) storeBoth(ctx context.Context, key string, v any) {
	v = snapshot(v)
	s.tierSet(ctx, s.primary, key, v)
	s.tierSet(ctx, s.local, key, v)
}

// Delete implements CacheService.Delete on both tiers. Backend failures are
// swallowed: invalidation is best-effort and bounded by TTL anyway.
func (s *TieredService) Delete(ctx context.Context, key string) error {
	full := s.fullKey(key)
	for _, tier := range []Backend{s.primary, s.local} {
		if tier == nil {
			continue
		}
		if err := tier.Delete(ctx, full); err != nil {
			s.errs.Inc()
			s.logger.Warn("cache: delete failed", "key", full, "error", err)
		}
	}
	return nil
}

// DeleteByPrefix removes every entry under the given key prefix on both
// tiers.
func (s *TieredService) DeleteByPrefix(ctx context.Context, prefix string) error {
	full := s.fullKey(prefix)
	for _, tier := range []Backend{s.primary, s.local} {
		if tier == nil {
			continue
		}
		if err := tier.Clear(ctx, full); err != nil {
			s.errs.Inc()
			s.logger.Warn("cache: clear failed", "prefix", full, "error", err)
		}
	}
	return nil
}

// InvalidateKeys removes multiple entries in one call.
func (s *TieredService) InvalidateKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		s.Delete(ctx, key)
	}
	return nil
}

// trackUsage bumps the key's read counter and remembers the latest fetch
// function so warming can re-execute the query later. The fetch function is
// kept for every signature, not just popular ones, so WarmKeys can refresh
// a key below the popularity threshold.
func (s *TieredService) trackUsage(key string, fetchFn any) {
	counter, _ := s.usage.LoadOrCompute(key, func() *xsync.Counter {
		return xsync.NewCounter()
	})
	counter.Inc()
	s.warmers.Store(key, fetchFn)
}

// Warm re-executes the most popular tracked queries and refreshes their
// entries in both tiers. It returns the number of signatures warmed.
func (s *TieredService) Warm(ctx context.Context) int {
	if !s.cfg.Warming.Enabled {
		return 0
	}

	popular := s.popular(s.cfg.Warming.PopularQueriesLimit, s.cfg.Warming.MinUsageCount)
	warmed := 0
	for _, qu := range popular {
		fetchFn, ok := s.warmers.Load(qu.Key)
		if !ok {
			continue
		}
		v, err := callFetchFn(ctx, fetchFn)
		if err != nil {
			s.logger.Warn("cache: warm refresh failed", "key", qu.Key, "error", err)
			continue
		}
		s.storeBoth(ctx, s.fullKey(qu.Key), v)
		warmed++
	}
	s.warmCycles.Inc()
	return warmed
}

// WarmKeys re-executes the named signatures and refreshes their entries in
// both tiers, ignoring the popularity threshold. Signatures never read
// through this service are skipped: there is no fetch function to run.
func (s *TieredService) WarmKeys(ctx context.Context, keys []string) int {
	warmed := 0
	for _, key := range keys {
		fetchFn, ok := s.warmers.Load(key)
		if !ok {
			continue
		}
		v, err := callFetchFn(ctx, fetchFn)
		if err != nil {
			s.logger.Warn("cache: warm refresh failed", "key", key, "error", err)
			continue
		}
		s.storeBoth(ctx, s.fullKey(key), v)
		warmed++
	}
	return warmed
}

// StartWarming runs Warm on the configured interval until ctx is canceled.
// It is a no-op when warming is disabled.
func (s *TieredService) StartWarming(ctx context.Context) {
	if !s.cfg.Warming.Enabled {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.Warming.WarmInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Warm(ctx)
			}
		}
	}()
}

// popular returns up to limit signatures with at least min reads, most read
// first.
func (s *TieredService) popular(limit int, min int64) []QueryUsage {
	var out []QueryUsage
	s.usage.Range(func(key string, counter *xsync.Counter) bool {
		if n := counter.Value(); n >= min {
			out = append(out, QueryUsage{Key: key, Count: n})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats implements CacheService.Stats.
func (s *TieredService) Stats() Stats {
	return Stats{
		Hits:              uint64(s.hits.Value()),
		Misses:            uint64(s.misses.Value()),
		Errors:            uint64(s.errs.Value()),
		TrackedSignatures: s.usage.Size(),
		WarmCycles:        uint64(s.warmCycles.Value()),
		PopularQueries:    s.popular(s.cfg.Warming.PopularQueriesLimit, 1),
	}
}
