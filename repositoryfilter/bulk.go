package repositoryfilter

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/uptrace/bun"
)

// DefaultBatchSize is used when a bulk call passes batchSize <= 0.
const DefaultBatchSize = 100

// BulkResult reports the outcome of a bulk call. With partial-failure
// semantics ErrorCount and Errors describe the chunks that failed while
// SuccessCount covers the rows that landed.
type BulkResult struct {
	SuccessCount int      `json:"success_count"`
	ErrorCount   int      `json:"error_count"`
	Errors       []string `json:"errors,omitempty"`
	AffectedIDs  []string `json:"affected_ids,omitempty"`
}

// BulkCreate inserts records in sequential chunks of batchSize. With
// ignoreConflicts each chunk runs as ON CONFLICT DO NOTHING and a failed
// chunk is recorded while later chunks continue; without it the whole call
// runs in one transaction and the first failure rolls everything back.
// The cache namespace is invalidated once, at the end.
func (e *Engine[T]) BulkCreate(ctx context.Context, records []*T, batchSize int, ignoreConflicts bool) (BulkResult, error) {
	var result BulkResult
	if len(records) == 0 {
		return result, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	now := time.Now().UTC()
	for _, record := range records {
		e.prepareForInsert(record, now)
	}

	if !ignoreConflicts {
		err := e.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			for _, chunk := range chunks(records, batchSize) {
				res, err := tx.NewInsert().Model(&chunk).Exec(ctx)
				if err != nil {
					return err
				}
				result.SuccessCount += rowsAffected(res, len(chunk))
			}
			return nil
		})
		if err != nil {
			return BulkResult{}, err
		}
		result.AffectedIDs = e.recordIDs(records)
	} else {
		for _, chunk := range chunks(records, batchSize) {
			res, err := e.db.NewInsert().Model(&chunk).Ignore().Exec(ctx)
			if err != nil {
				result.ErrorCount += len(chunk)
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.SuccessCount += rowsAffected(res, len(chunk))
			result.AffectedIDs = append(result.AffectedIDs, e.recordIDs(chunk)...)
		}
	}

	e.invalidate(ctx)
	return result, nil
}

func (e *Engine[T]) recordIDs(records []*T) []string {
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if id := e.recordID(record); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// BulkUpdate selects the IDs matching filters, then applies patch to that
// set in one transaction. Selecting first keeps AffectedIDs enumerable and
// makes the update idempotent against rows that show up mid-call. Patch
// keys must be direct schema columns; updated_at is refreshed on every
// touched row.
func (e *Engine[T]) BulkUpdate(ctx context.Context, filters map[string]any, patch map[string]any) (BulkResult, error) {
	var result BulkResult
	if len(patch) == 0 {
		return result, fmt.Errorf("repositoryfilter: bulk update needs a non-empty patch")
	}
	for col := range patch {
		if !e.schema.HasColumn(col) {
			return result, fmt.Errorf("repositoryfilter: unknown patch column %q", col)
		}
	}

	err := e.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		ids, err := e.matchingIDs(ctx, tx, filters, false)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		q := tx.NewUpdate().Model((*T)(nil)).
			Set("? = ?", bun.Ident(e.schema.Meta.UpdatedAt), time.Now().UTC()).
			Where("?TableAlias.? IN (?)", bun.Ident(e.schema.Meta.PK), bun.In(ids))
		for _, col := range sortedPatchColumns(patch) {
			q = q.Set("? = ?", bun.Ident(col), patch[col])
		}

		res, err := q.Exec(ctx)
		if err != nil {
			return err
		}
		result.SuccessCount = rowsAffected(res, len(ids))
		result.AffectedIDs = ids
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}

	e.invalidate(ctx)
	return result, nil
}

// BulkDelete selects the IDs matching filters and removes them: a
// deleted_at stamp when soft, a real DELETE otherwise. One transaction, one
// invalidation.
func (e *Engine[T]) BulkDelete(ctx context.Context, filters map[string]any, soft bool) (BulkResult, error) {
	var result BulkResult

	err := e.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		ids, err := e.matchingIDs(ctx, tx, filters, !soft)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		var res sql.Result
		if soft {
			now := time.Now().UTC()
			res, err = tx.NewUpdate().Model((*T)(nil)).
				Set("? = ?", bun.Ident(e.schema.Meta.DeletedAt), now).
				Set("? = ?", bun.Ident(e.schema.Meta.UpdatedAt), now).
				Where("?TableAlias.? IN (?)", bun.Ident(e.schema.Meta.PK), bun.In(ids)).
				Exec(ctx)
		} else {
			res, err = tx.NewDelete().Model((*T)(nil)).
				Where("?TableAlias.? IN (?)", bun.Ident(e.schema.Meta.PK), bun.In(ids)).
				Exec(ctx)
		}
		if err != nil {
			return err
		}
		result.SuccessCount = rowsAffected(res, len(ids))
		result.AffectedIDs = ids
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}

	e.invalidate(ctx)
	return result, nil
}

// matchingIDs runs the select-then-mutate first half: the primary keys of
// every row matching filters. includeDeleted widens a force delete to rows
// already soft-deleted.
func (e *Engine[T]) matchingIDs(ctx context.Context, tx bun.IDB, filters map[string]any, includeDeleted bool) ([]string, error) {
	q := tx.NewSelect().Model((*T)(nil)).
		ColumnExpr("?TableAlias.?", bun.Ident(e.schema.Meta.PK))
	q = e.compiler.ApplyVisibility(q, includeDeleted)

	compiled, err := e.compiler.CompileMap(filters)
	if err != nil {
		return nil, err
	}
	q = compiled.Apply(q)

	var ids []string
	if err := q.Scan(ctx, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// sortedPatchColumns keeps SET clause order deterministic.
func sortedPatchColumns(patch map[string]any) []string {
	cols := make([]string, 0, len(patch))
	for col := range patch {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func chunks[T any](records []*T, size int) [][]*T {
	var out [][]*T
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, records[start:end])
	}
	return out
}

// rowsAffected falls back to the expected count for drivers that do not
// report it.
func rowsAffected(res sql.Result, fallback int) int {
	n, err := res.RowsAffected()
	if err != nil || n < 0 {
		return fallback
	}
	return int(n)
}
