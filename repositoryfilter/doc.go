// Package repositoryfilter executes operator-driven filtered queries over a
// bun-backed relational store, with an optional two-tier cache in front.
//
// # Overview
//
// An Engine[T] is built from a bun model type. It introspects the model's
// schema once, compiles map- or tree-shaped filters into SQL through the
// filter package, and exposes the query surface a typical list endpoint
// needs: filtered listing, single-record lookup, counts and existence
// checks, full-text search, cursor pagination, aggregation, and bulk
// mutation with partial-failure reporting.
//
// # Basic Usage
//
//	engine, err := repositoryfilter.New[User](db,
//		repositoryfilter.WithCache[User](svc, cache.NewDefaultKeySerializer()),
//	)
//	if err != nil {
//		return err
//	}
//
//	users, total, err := engine.List(ctx, map[string]any{
//		"status":          "active",
//		"age__gte":        21,
//		"profile__city":   "Berlin",
//		"name__icontains": "gra",
//	}, filter.ListOptions{Limit: 50, OrderBy: []string{"-created_at"}})
//
// Filter keys follow the field[__relation...][__operator] grammar; see the
// filter package for the operator families and failure policy.
//
// # Caching
//
// With a cache service configured, every read operation is cached under a
// key of the form prefix::namespace::Method::args, where namespace is the
// pluralized snake_case model name. Mutations (Create, Update, Delete,
// ForceDelete, Restore, and the Bulk* calls) invalidate the whole namespace
// exactly once per logical call. Coarse, but correct: a write can change
// the membership of any cached list, count or page.
//
// Cache failures are never surfaced. A backend outage degrades reads to
// store queries and leaves invalidation to the entry TTL.
//
// # Soft deletion
//
// Records carry a nullable deleted_at column. Reads exclude soft-deleted
// rows unless ListOptions.IncludeDeleted is set; Delete stamps the column,
// Restore clears it, ForceDelete removes the row. The engine manages the
// column itself, so models must not also use bun's soft_delete tag.
//
// # Transactions
//
// Bulk update and delete run select-then-mutate inside one transaction, so
// AffectedIDs always names exactly the rows that were touched. BulkCreate
// without ignoreConflicts is transactional as well; with it, chunks are
// independent and failures are reported per chunk.
package repositoryfilter
