package di

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-filter/filter"
	"github.com/goliatone/go-repository-filter/pkg/testsupport"
	"github.com/goliatone/go-repository-filter/repositoryfilter"
)

// diUser is the model the integration tests run the full stack against.
type diUser struct {
	bun.BaseModel `bun:"table:di_users,alias:di_users"`

	ID        string     `bun:"id,pk"`
	Name      string     `bun:"name"`
	Email     string     `bun:"email"`
	Status    string     `bun:"status"`
	CreatedAt time.Time  `bun:"created_at,nullzero"`
	UpdatedAt time.Time  `bun:"updated_at,nullzero"`
	DeletedAt *time.Time `bun:"deleted_at"`
}

func newIntegrationDB(tb testing.TB) *bun.DB {
	tb.Helper()

	db, err := OpenSQLite(":memory:")
	if err != nil {
		tb.Fatalf("OpenSQLite() failed: %v", err)
	}
	// One pinned connection so every query sees the same in-memory store.
	db.SetMaxOpenConns(1)
	tb.Cleanup(func() { db.Close() })

	ctx := context.Background()
	db.RegisterModel((*diUser)(nil))
	if _, err := db.NewCreateTable().Model((*diUser)(nil)).IfNotExists().Exec(ctx); err != nil {
		tb.Fatalf("create table failed: %v", err)
	}

	users := make([]*diUser, 0, 10)
	for i := 0; i < 10; i++ {
		status := "inactive"
		if i%2 == 0 {
			status = "active"
		}
		users = append(users, &diUser{
			ID:     fmt.Sprintf("u%02d", i),
			Name:   fmt.Sprintf("User %d", i),
			Email:  fmt.Sprintf("user%d@example.com", i),
			Status: status,
		})
	}
	if _, err := db.NewInsert().Model(&users).Exec(ctx); err != nil {
		tb.Fatalf("seed failed: %v", err)
	}
	return db
}

func newIntegrationEngine(tb testing.TB) (*Container, *repositoryfilter.Engine[diUser], *bun.DB) {
	tb.Helper()

	container, err := NewContainerWithDefaults()
	if err != nil {
		tb.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	db := newIntegrationDB(tb)
	engine, err := NewEngine[diUser](container, db)
	if err != nil {
		tb.Fatalf("NewEngine() failed: %v", err)
	}
	return container, engine, db
}

func TestIntegration_CachedReads(t *testing.T) {
	_, engine, db := newIntegrationEngine(t)
	ctx := context.Background()

	_, total, err := engine.List(ctx, map[string]any{"status": "active"}, filter.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected 5 active users, got %d", total)
	}

	// Writes that bypass the engine stay invisible until invalidation.
	if _, err := db.NewInsert().Model(&diUser{ID: "ux", Name: "Hidden", Status: "active"}).Exec(ctx); err != nil {
		t.Fatalf("raw insert failed: %v", err)
	}

	_, total, err = engine.List(ctx, map[string]any{"status": "active"}, filter.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected the cached total 5, got %d", total)
	}

	if engine.CacheStats().Hits == 0 {
		t.Error("expected at least one cache hit")
	}

	if err := engine.InvalidateCache(ctx); err != nil {
		t.Fatalf("InvalidateCache() failed: %v", err)
	}

	_, total, err = engine.List(ctx, map[string]any{"status": "active"}, filter.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 6 {
		t.Fatalf("expected 6 active users after invalidation, got %d", total)
	}
}

func TestIntegration_MutationInvalidates(t *testing.T) {
	_, engine, _ := newIntegrationEngine(t)
	ctx := context.Background()

	_, total, err := engine.List(ctx, nil, filter.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 10 {
		t.Fatalf("expected 10 users, got %d", total)
	}

	created, err := engine.Create(ctx, &diUser{Name: "Fresh", Email: "fresh@example.com", Status: "active"})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if created.ID == "" {
		t.Error("Create() should assign an id")
	}

	_, total, err = engine.List(ctx, nil, filter.ListOptions{})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 11 {
		t.Fatalf("expected 11 users after create, got %d", total)
	}
}

func TestIntegration_EnginesShareOneCacheService(t *testing.T) {
	container, engine, db := newIntegrationEngine(t)
	ctx := context.Background()

	other, err := NewEngine[diUser](container, db)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	if _, _, err := engine.List(ctx, nil, filter.ListOptions{}); err != nil {
		t.Fatalf("List() failed: %v", err)
	}

	// Same namespace, same serializer, same service: the second engine's
	// read is a hit.
	before := container.CacheService().Stats().Hits
	if _, _, err := other.List(ctx, nil, filter.ListOptions{}); err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if container.CacheService().Stats().Hits <= before {
		t.Error("expected the shared cache to serve the second engine")
	}
}

func TestIntegration_ConcurrentReads(t *testing.T) {
	_, engine, _ := newIntegrationEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, total, err := engine.List(ctx, map[string]any{"status": "active"}, filter.ListOptions{})
			if err != nil {
				errs <- err
				return
			}
			if total != 5 {
				errs <- fmt.Errorf("expected 5, got %d", total)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent read failed: %v", err)
	}
}

func TestNewContainerFromYAML(t *testing.T) {
	doc := []byte("default_ttl: 30s\nkey_prefix: app\nwarming:\n  enabled: true\n  min_usage_count: 3\n  popular_queries_limit: 10\n  warm_interval: 45s\n")
	path := testsupport.WriteFile(t, "cache.yml", doc)

	container, err := NewContainerFromYAML(path)
	if err != nil {
		t.Fatalf("NewContainerFromYAML() failed: %v", err)
	}

	cfg := container.Config()
	if cfg.Service.DefaultTTL != 30*time.Second {
		t.Errorf("expected 30s TTL, got %v", cfg.Service.DefaultTTL)
	}
	if cfg.Service.KeyPrefix != "app" {
		t.Errorf("expected key prefix %q, got %q", "app", cfg.Service.KeyPrefix)
	}
	if !cfg.Service.Warming.Enabled {
		t.Error("expected warming enabled")
	}
}

func TestNewContainerFromYAML_MissingFile(t *testing.T) {
	if _, err := NewContainerFromYAML(testsupport.MissingPath(t, "nope.yml")); err == nil {
		t.Fatal("NewContainerFromYAML() should fail for a missing file")
	}
}
