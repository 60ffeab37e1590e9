package authz

import (
	"context"
	"fmt"
	"strings"

	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// Restrictor narrows a resource type's collection to the instances a
// principal may act on for a given action. Filtering happens in the store's
// WHERE clause, never by materializing the collection client-side.
type Restrictor struct {
	db       *store.Store
	resolver *Resolver
}

func NewRestrictor(db *store.Store, resolver *Resolver) *Restrictor {
	return &Restrictor{db: db, resolver: resolver}
}

// Restriction is a compiled row filter for one (principal, type, action)
// triple: everything, nothing, or a SQL predicate.
type Restriction struct {
	none  bool
	all   bool
	where string // empty with all=true: no filtering needed
}

// All reports whether the restriction passes every row through.
func (r *Restriction) All() bool { return r.all }

// None reports whether the restriction yields the empty collection.
func (r *Restriction) None() bool { return r.none }

// compile resolves the principal's constraints for (rt, action) into a
// Restriction, accumulating SQL parameters on pb.
func (r *Restrictor) compile(ctx context.Context, p *metadata.Principal, rt *metadata.ResourceType, action string, pb store.ParamBuilder) (*Restriction, error) {
	if p != nil && p.Superuser && p.Active {
		return &Restriction{all: true}, nil
	}
	if !p.Authenticated() {
		return &Restriction{none: true}, nil
	}

	perms, err := r.resolver.ResolveAll(ctx, p)
	if err != nil {
		return nil, err
	}
	constraints, ok := perms[PermName(rt, action)]
	if !ok {
		return &Restriction{none: true}, nil
	}

	where, err := CompileConstraints(constraints, rt, r.db.Dialect, pb)
	if err != nil {
		return nil, err
	}
	if where == "" {
		return &Restriction{all: true}, nil
	}
	return &Restriction{where: where}, nil
}

// List returns the rows of the resource type's table that the principal may
// perform the action on. An unauthenticated principal, or one without the
// permission, gets an empty slice, not an error.
func (r *Restrictor) List(ctx context.Context, p *metadata.Principal, rt *metadata.ResourceType, action string) ([]map[string]any, error) {
	pb := r.db.Dialect.NewParamBuilder()
	restriction, err := r.compile(ctx, p, rt, action, pb)
	if err != nil {
		return nil, err
	}
	if restriction.none {
		return []map[string]any{}, nil
	}

	columns := strings.Join(rt.FieldNames(), ", ")
	sqlStr := fmt.Sprintf("SELECT %s FROM %s", columns, rt.Table)
	if restriction.where != "" {
		sqlStr += " WHERE " + restriction.where
	}
	sqlStr += " ORDER BY " + rt.PrimaryKey

	rows, err := store.QueryRows(ctx, r.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	if r.db.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, boolFieldNames(rt))
	}
	return rows, nil
}

// Exists reports whether the identified instance is in the principal's
// restricted set for the action. q may be a transaction so the safe-mutation
// recheck observes its own uncommitted write; pass nil to read committed
// state.
func (r *Restrictor) Exists(ctx context.Context, q store.Querier, p *metadata.Principal, rt *metadata.ResourceType, action string, id any) (bool, error) {
	if q == nil {
		q = r.db.DB
	}
	pb := r.db.Dialect.NewParamBuilder()
	idPh := pb.Add(id)
	restriction, err := r.compile(ctx, p, rt, action, pb)
	if err != nil {
		return false, err
	}
	if restriction.none {
		return false, nil
	}

	sqlStr := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s", rt.Table, rt.PrimaryKey, idPh)
	if restriction.where != "" {
		sqlStr += " AND " + restriction.where
	}
	return store.Exists(ctx, q, sqlStr, pb.Params()...)
}

func boolFieldNames(rt *metadata.ResourceType) []string {
	var names []string
	for _, f := range rt.Fields {
		if f.Type == "boolean" {
			names = append(names, f.Name)
		}
	}
	return names
}
