package filter_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-filter/filter"
	"github.com/goliatone/go-repository-filter/pkg/testsupport"
)

type testUser struct {
	bun.BaseModel `bun:"table:test_users,alias:test_users"`

	ID        string       `bun:"id,pk"`
	Name      string       `bun:"name"`
	Email     string       `bun:"email"`
	Status    string       `bun:"status"`
	Age       int64        `bun:"age"`
	Meta      string       `bun:"meta"`
	CreatedAt time.Time    `bun:"created_at,nullzero"`
	UpdatedAt time.Time    `bun:"updated_at,nullzero"`
	DeletedAt *time.Time   `bun:"deleted_at"`
	Profile   *testProfile `bun:"rel:has-one,join:id=user_id"`
}

type testProfile struct {
	bun.BaseModel `bun:"table:test_profiles,alias:test_profiles"`

	ID     string `bun:"id,pk"`
	UserID string `bun:"user_id"`
	City   string `bun:"city"`
	Bio    string `bun:"bio"`
}

// newFilterDB opens an in-memory database seeded with four users, one of
// them soft-deleted, and profiles for the first two.
func newFilterDB(t *testing.T) *bun.DB {
	t.Helper()

	db := testsupport.OpenSQLite(t)
	testsupport.CreateTables(t, db, (*testProfile)(nil), (*testUser)(nil))

	ctx := context.Background()
	deleted := time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

	users := []*testUser{
		{
			ID: "u1", Name: "Alice", Email: "alice@example.com", Status: "active", Age: 30,
			Meta:      `{"plan":"pro","beta":true}`,
			CreatedAt: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			ID: "u2", Name: "Bob", Email: "bob@example.com", Status: "active", Age: 25,
			Meta:      `{"plan":"free"}`,
			CreatedAt: time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC),
		},
		{
			ID: "u3", Name: "Carol", Email: "carol@test.org", Status: "inactive", Age: 41,
			Meta:      `{}`,
			CreatedAt: time.Date(2023, 11, 20, 16, 45, 0, 0, time.UTC),
		},
		{
			ID: "u4", Name: "Dave", Email: "dave@example.com", Status: "active", Age: 35,
			Meta:      `{"plan":"pro"}`,
			CreatedAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
			DeletedAt: &deleted,
		},
	}
	_, err := db.NewInsert().Model(&users).Exec(ctx)
	require.NoError(t, err)

	profiles := []*testProfile{
		{ID: "p1", UserID: "u1", City: "Lisboa", Bio: "gopher and gardener"},
		{ID: "p2", UserID: "u2", City: "Porto", Bio: "backend dev"},
	}
	_, err = db.NewInsert().Model(&profiles).Exec(ctx)
	require.NoError(t, err)

	return db
}

func newCompiler(t *testing.T, db *bun.DB, opts ...filter.CompilerOption) *filter.Compiler {
	t.Helper()

	sch, err := filter.SchemaOf[testUser](db)
	require.NoError(t, err)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]filter.CompilerOption{filter.WithLogger(quiet)}, opts...)
	return filter.NewCompiler(sch, opts...)
}

func queryIDs(t *testing.T, q *bun.SelectQuery) []string {
	t.Helper()

	var ids []string
	require.NoError(t, q.Scan(context.Background(), &ids))
	return ids
}

// filterIDs compiles a filter map and returns the matching user ids in
// ascending order. Soft-deleted rows are not hidden here: CompileMap is the
// raw predicate, visibility belongs to the listing composer.
func filterIDs(t *testing.T, db *bun.DB, c *filter.Compiler, filters map[string]any) []string {
	t.Helper()

	compiled, err := c.CompileMap(filters)
	require.NoError(t, err)

	// Qualified projection: a relation filter joins test_profiles, which
	// has an id column of its own.
	q := db.NewSelect().Model((*testUser)(nil)).
		ColumnExpr("?TableAlias.id").OrderExpr("?TableAlias.id ASC")
	return queryIDs(t, compiled.Apply(q))
}
