package repositoryfilter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-filter/cache"
	"github.com/goliatone/go-repository-filter/filter"
)

// ErrNotFound is returned when a single-record read matches nothing.
var ErrNotFound = errors.New("repositoryfilter: record not found")

// listResult wraps the tuple result from List operations for caching
type listResult[T any] struct {
	Records []*T `json:"records"`
	Total   int  `json:"total"`
}

// Engine executes filtered queries over one record type, optionally routing
// reads through a cache service. Mutations invalidate the record's cache
// namespace exactly once per logical call; cache failures never fail a data
// operation.
type Engine[T any] struct {
	db        bun.IDB
	schema    *filter.Schema
	compiler  *filter.Compiler
	cache     cache.CacheService
	keys      cache.KeySerializer
	logger    *slog.Logger
	namespace string
}

// Option configures an Engine.
type Option[T any] func(*Engine[T])

// WithCache routes reads through the given service using the serializer to
// build keys. Without it the engine always queries the store.
func WithCache[T any](service cache.CacheService, serializer cache.KeySerializer) Option[T] {
	return func(e *Engine[T]) {
		e.cache = service
		e.keys = serializer
	}
}

// WithMode sets the compile failure policy for this engine's filters.
func WithMode[T any](mode filter.Mode) Option[T] {
	return func(e *Engine[T]) {
		e.compiler = filter.NewCompiler(e.schema, filter.WithMode(mode), filter.WithLogger(e.logger))
	}
}

// WithEngineLogger sets the logger used for dropped filters and swallowed
// cache errors.
func WithEngineLogger[T any](l *slog.Logger) Option[T] {
	return func(e *Engine[T]) {
		e.logger = l
		e.compiler = filter.NewCompiler(e.schema, filter.WithMode(e.compiler.Mode()), filter.WithLogger(l))
	}
}

// New introspects T through the bun model registry and builds an engine for
// it. The cache namespace is the pluralized snake_case model name, so
// Engine[UserProfile] invalidates under "user_profiles".
func New[T any](db *bun.DB, opts ...Option[T]) (*Engine[T], error) {
	sch, err := filter.SchemaOf[T](db)
	if err != nil {
		return nil, err
	}
	e := &Engine[T]{
		db:        db,
		schema:    sch,
		logger:    slog.Default(),
		namespace: inflection.Plural(filter.SnakeCase(sch.ModelName)),
	}
	e.compiler = filter.NewCompiler(sch, filter.WithLogger(e.logger))
	for _, opt := range opts {
		opt(e)
	}
	if e.cache != nil && e.keys == nil {
		e.keys = cache.NewDefaultKeySerializer()
	}
	return e, nil
}

// Schema exposes the introspected schema, mostly for tests and tooling.
func (e *Engine[T]) Schema() *filter.Schema { return e.schema }

// Namespace returns the cache namespace for this record type.
func (e *Engine[T]) Namespace() string { return e.namespace }

// Compiler returns the predicate compiler bound to this engine's schema.
func (e *Engine[T]) Compiler() *filter.Compiler { return e.compiler }

func (e *Engine[T]) cacheKey(method string, args ...any) string {
	return e.keys.SerializeKey(cache.JoinKey(e.namespace, method), args...)
}

// cached runs fetch through the engine's cache service when one is
// configured. Methods cannot introduce type parameters, hence the
// free function.
func cached[T, R any](ctx context.Context, e *Engine[T], method string, args []any, fetch cache.FetchFn[R]) (R, error) {
	if e.cache == nil {
		return fetch(ctx)
	}
	return cache.GetOrFetch(ctx, e.cache, e.cacheKey(method, args...), fetch)
}

// List returns the records matching filters plus the total match count
// before offset/limit.
func (e *Engine[T]) List(ctx context.Context, filters map[string]any, opts filter.ListOptions) ([]*T, int, error) {
	res, err := cached(ctx, e, "List", []any{filters, opts}, func(ctx context.Context) (listResult[T], error) {
		var records []*T
		q, err := e.compiler.BuildList(e.baseSelect(&records), filters, opts)
		if err != nil {
			return listResult[T]{}, err
		}
		total, err := q.ScanAndCount(ctx)
		if err != nil {
			return listResult[T]{}, err
		}
		return listResult[T]{Records: records, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// ListComplex is List for an AND/OR/NOT filter tree.
func (e *Engine[T]) ListComplex(ctx context.Context, node filter.Node, opts filter.ListOptions) ([]*T, int, error) {
	res, err := cached(ctx, e, "ListComplex", []any{node, opts}, func(ctx context.Context) (listResult[T], error) {
		var records []*T
		q, err := e.compiler.BuildComplex(e.baseSelect(&records), node, opts)
		if err != nil {
			return listResult[T]{}, err
		}
		total, err := q.ScanAndCount(ctx)
		if err != nil {
			return listResult[T]{}, err
		}
		return listResult[T]{Records: records, Total: total}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// GetBy returns the single record matching filters, or ErrNotFound.
func (e *Engine[T]) GetBy(ctx context.Context, filters map[string]any) (*T, error) {
	return cached(ctx, e, "GetBy", []any{filters}, func(ctx context.Context) (*T, error) {
		record := new(T)
		q, err := e.compiler.BuildList(e.baseSelect(record), filters, filter.ListOptions{Limit: 1})
		if err != nil {
			return nil, err
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		return record, nil
	})
}

// GetByID fetches one record by primary key.
func (e *Engine[T]) GetByID(ctx context.Context, id string) (*T, error) {
	return e.GetBy(ctx, map[string]any{e.schema.Meta.PK: id})
}

// Count returns how many records match filters.
func (e *Engine[T]) Count(ctx context.Context, filters map[string]any) (int, error) {
	return cached(ctx, e, "Count", []any{filters}, func(ctx context.Context) (int, error) {
		q, err := e.compiler.BuildList(e.baseSelect((*T)(nil)), filters, filter.ListOptions{})
		if err != nil {
			return 0, err
		}
		return q.Count(ctx)
	})
}

// Exists reports whether at least one record matches filters.
func (e *Engine[T]) Exists(ctx context.Context, filters map[string]any) (bool, error) {
	return cached(ctx, e, "Exists", []any{filters}, func(ctx context.Context) (bool, error) {
		q, err := e.compiler.BuildList(e.baseSelect((*T)(nil)), filters, filter.ListOptions{})
		if err != nil {
			return false, err
		}
		return q.Exists(ctx)
	})
}

// Search runs a full-text query over the fields named in spec and returns
// matches, rank-ordered when a ranking operator is used.
func (e *Engine[T]) Search(ctx context.Context, spec filter.SearchSpec, opts filter.ListOptions) ([]*T, error) {
	return cached(ctx, e, "Search", []any{spec, opts}, func(ctx context.Context) ([]*T, error) {
		var records []*T
		q := e.compiler.ApplyVisibility(e.baseSelect(&records), opts.IncludeDeleted)
		q, err := e.compiler.ApplySearch(q, spec)
		if err != nil {
			return nil, err
		}
		if opts.Limit > 0 {
			q = q.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			q = q.Offset(opts.Offset)
		}
		if err := q.Scan(ctx); err != nil {
			return nil, err
		}
		return records, nil
	})
}

// Create inserts the record, filling the primary key and timestamps when
// they are zero, and invalidates the namespace.
func (e *Engine[T]) Create(ctx context.Context, record *T) (*T, error) {
	now := time.Now().UTC()
	e.prepareForInsert(record, now)
	if _, err := e.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	e.invalidate(ctx)
	return record, nil
}

// Update writes the record by primary key, refreshing updated_at.
func (e *Engine[T]) Update(ctx context.Context, record *T) (*T, error) {
	e.setTimeField(record, e.schema.Meta.UpdatedAt, time.Now().UTC(), true)
	res, err := e.db.NewUpdate().Model(record).WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	e.invalidate(ctx)
	return record, nil
}

// Delete soft-deletes the record by stamping deleted_at.
func (e *Engine[T]) Delete(ctx context.Context, record *T) error {
	now := time.Now().UTC()
	_, err := e.db.NewUpdate().
		Model(record).
		Set("? = ?", bun.Ident(e.schema.Meta.DeletedAt), now).
		Set("? = ?", bun.Ident(e.schema.Meta.UpdatedAt), now).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	e.setTimeField(record, e.schema.Meta.DeletedAt, now, false)
	e.invalidate(ctx)
	return nil
}

// ForceDelete removes the row for good.
func (e *Engine[T]) ForceDelete(ctx context.Context, record *T) error {
	if _, err := e.db.NewDelete().Model(record).WherePK().Exec(ctx); err != nil {
		return err
	}
	e.invalidate(ctx)
	return nil
}

// Restore clears deleted_at, the inverse of Delete.
func (e *Engine[T]) Restore(ctx context.Context, record *T) error {
	_, err := e.db.NewUpdate().
		Model(record).
		Set("? = NULL", bun.Ident(e.schema.Meta.DeletedAt)).
		Set("? = ?", bun.Ident(e.schema.Meta.UpdatedAt), time.Now().UTC()).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	e.clearTimeField(record, e.schema.Meta.DeletedAt)
	e.invalidate(ctx)
	return nil
}

// InvalidateCache drops cached entries in this record's namespace. With no
// patterns the whole namespace goes; each pattern narrows the drop to keys
// under namespace::pattern, so InvalidateCache(ctx, "List") clears the
// cached listings and leaves lookups alone.
func (e *Engine[T]) InvalidateCache(ctx context.Context, patterns ...string) error {
	if e.cache == nil {
		return nil
	}
	if len(patterns) == 0 {
		return e.cache.DeleteByPrefix(ctx, e.namespace)
	}
	for _, pattern := range patterns {
		if err := e.cache.DeleteByPrefix(ctx, cache.JoinKey(e.namespace, pattern)); err != nil {
			return err
		}
	}
	return nil
}

// WarmCache re-executes tracked queries, when the configured service
// supports warming, and returns how many signatures were refreshed. With no
// arguments the popular signatures are warmed; explicit keys, as reported
// by CacheStats().PopularQueries, warm exactly those signatures.
func (e *Engine[T]) WarmCache(ctx context.Context, queries ...string) int {
	w, ok := e.cache.(cache.Warmer)
	if !ok {
		return 0
	}
	if len(queries) == 0 {
		return w.Warm(ctx)
	}
	return w.WarmKeys(ctx, queries)
}

// CacheStats returns the cache service counters, zero-valued without a
// cache.
func (e *Engine[T]) CacheStats() cache.Stats {
	if e.cache == nil {
		return cache.Stats{}
	}
	return e.cache.Stats()
}

func (e *Engine[T]) baseSelect(model any) *bun.SelectQuery {
	q := e.db.NewSelect()
	if model != nil {
		return q.Model(model)
	}
	return q.Model((*T)(nil))
}

// invalidate clears the namespace plus any extra prefixes registered on the
// context. Failures are swallowed; stale entries age out with the TTL.
func (e *Engine[T]) invalidate(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.DeleteByPrefix(ctx, e.namespace); err != nil {
		e.logger.Warn("cache invalidation failed", "namespace", e.namespace, "error", err)
	}
	for _, tag := range cacheTagsFromContext(ctx) {
		if err := e.cache.DeleteByPrefix(ctx, tag); err != nil {
			e.logger.Warn("cache tag invalidation failed", "tag", tag, "error", err)
		}
	}
}

// prepareForInsert fills the conventional columns: a missing string primary
// key gets a UUID, zero timestamps get now.
func (e *Engine[T]) prepareForInsert(record *T, now time.Time) {
	if field, ok := e.fieldFor(record, e.schema.Meta.PK); ok {
		if field.Kind() == reflect.String && field.String() == "" && field.CanSet() {
			field.SetString(uuid.New().String())
		}
	}
	e.setTimeField(record, e.schema.Meta.CreatedAt, now, true)
	e.setTimeField(record, e.schema.Meta.UpdatedAt, now, true)
}

// fieldFor resolves the struct field behind a schema column.
func (e *Engine[T]) fieldFor(record *T, column string) (reflect.Value, bool) {
	if column == "" || record == nil {
		return reflect.Value{}, false
	}
	var goName string
	for _, col := range e.schema.Columns {
		if col.Name == column {
			goName = col.GoName
			break
		}
	}
	if goName == "" {
		return reflect.Value{}, false
	}
	v := reflect.ValueOf(record).Elem()
	field := v.FieldByName(goName)
	if !field.IsValid() {
		return reflect.Value{}, false
	}
	return field, true
}

var timeType = reflect.TypeOf(time.Time{})

// setTimeField writes ts into the column's field when present. With
// onlyIfZero it leaves caller-provided values alone. Handles both time.Time
// and *time.Time fields.
func (e *Engine[T]) setTimeField(record *T, column string, ts time.Time, onlyIfZero bool) {
	field, ok := e.fieldFor(record, column)
	if !ok || !field.CanSet() {
		return
	}
	switch {
	case field.Type() == timeType:
		if onlyIfZero && !field.Interface().(time.Time).IsZero() {
			return
		}
		field.Set(reflect.ValueOf(ts))
	case field.Kind() == reflect.Ptr && field.Type().Elem() == timeType:
		if onlyIfZero && !field.IsNil() {
			return
		}
		field.Set(reflect.ValueOf(&ts))
	}
}

func (e *Engine[T]) clearTimeField(record *T, column string) {
	field, ok := e.fieldFor(record, column)
	if !ok || !field.CanSet() {
		return
	}
	if field.Kind() == reflect.Ptr {
		field.Set(reflect.Zero(field.Type()))
	}
}

// recordID renders the record's primary key for BulkResult reporting.
func (e *Engine[T]) recordID(record *T) string {
	field, ok := e.fieldFor(record, e.schema.Meta.PK)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v", field.Interface())
}
