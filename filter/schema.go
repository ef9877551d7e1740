package filter

import (
	"fmt"
	"reflect"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/schema"
)

// Column describes one addressable database column.
type Column struct {
	Name   string // database column name
	GoName string // struct field name
}

// Relation describes one traversable relation hop. Only single-row relations
// (has-one, belongs-to) are addressable from filter paths; to-many hops
// would multiply result rows and are rejected at schema build time instead
// of producing surprising duplicates at query time.
type Relation struct {
	Name        string // snake_case segment used in filter keys
	JoinSchema  *Schema
	JoinTable   string
	BaseColumns []string // columns on the base table
	JoinColumns []string // matching columns on the joined table
}

// Metadata names the lifecycle columns the engine manages. Empty values mean
// the model does not carry that column.
type Metadata struct {
	PK        string
	CreatedAt string
	UpdatedAt string
	DeletedAt string
}

// Schema is the introspected shape of one entity kind: its columns, its
// traversable relations, and the lifecycle metadata columns. It is built
// once per model and shared read-only afterwards.
type Schema struct {
	Table     string
	ModelName string
	Dialect   dialect.Name
	Columns   map[string]*Column
	Relations map[string]*Relation
	Meta      Metadata
}

// HasColumn reports whether name is an addressable column.
func (s *Schema) HasColumn(name string) bool {
	_, ok := s.Columns[name]
	return ok
}

// RelationFor returns the relation addressed by a path segment.
func (s *Schema) RelationFor(segment string) (*Relation, bool) {
	rel, ok := s.Relations[segment]
	return rel, ok
}

// SchemaOf introspects the bun table metadata for T and returns the schema
// the compiler validates filter paths against. The model must be registered
// with bun struct tags; relations come from bun rel tags.
func SchemaOf[T any](db *bun.DB) (*Schema, error) {
	var zero T
	typ := reflect.TypeOf(zero)
	if typ == nil {
		return nil, fmt.Errorf("filter: cannot introspect schema for untyped nil")
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("filter: model %s is not a struct", typ)
	}
	seen := map[reflect.Type]*Schema{}
	return schemaForType(db, typ, seen)
}

func schemaForType(db *bun.DB, typ reflect.Type, seen map[reflect.Type]*Schema) (*Schema, error) {
	if s, ok := seen[typ]; ok {
		return s, nil
	}

	table := db.Table(typ)
	s := &Schema{
		Table:     table.Name,
		ModelName: SnakeCase(typ.Name()),
		Dialect:   db.Dialect().Name(),
		Columns:   make(map[string]*Column, len(table.Fields)),
		Relations: make(map[string]*Relation, len(table.Relations)),
	}
	seen[typ] = s

	for _, f := range table.Fields {
		s.Columns[f.Name] = &Column{Name: f.Name, GoName: f.GoName}
	}
	s.Meta = metadataFor(s)

	for goName, rel := range table.Relations {
		if rel.Type != schema.HasOneRelation && rel.Type != schema.BelongsToRelation {
			continue
		}
		joinType := rel.JoinTable.Type
		joinSchema, err := schemaForType(db, joinType, seen)
		if err != nil {
			return nil, err
		}
		r := &Relation{
			Name:       SnakeCase(goName),
			JoinSchema: joinSchema,
			JoinTable:  rel.JoinTable.Name,
		}
		for _, f := range rel.BasePKs {
			r.BaseColumns = append(r.BaseColumns, f.Name)
		}
		for _, f := range rel.JoinPKs {
			r.JoinColumns = append(r.JoinColumns, f.Name)
		}
		if len(r.BaseColumns) == 0 || len(r.BaseColumns) != len(r.JoinColumns) {
			return nil, fmt.Errorf("filter: relation %s.%s has no usable join columns", typ.Name(), goName)
		}
		s.Relations[r.Name] = r
	}

	return s, nil
}

// metadataFor picks up the conventional lifecycle columns when present.
func metadataFor(s *Schema) Metadata {
	m := Metadata{}
	if s.HasColumn("id") {
		m.PK = "id"
	}
	if s.HasColumn("created_at") {
		m.CreatedAt = "created_at"
	}
	if s.HasColumn("updated_at") {
		m.UpdatedAt = "updated_at"
	}
	if s.HasColumn("deleted_at") {
		m.DeletedAt = "deleted_at"
	}
	return m
}
