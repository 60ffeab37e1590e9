package authz

import (
	"context"
	"fmt"
	"strings"

	"objectgate/internal/grant"
	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// Object identifies one resource instance for an authorization check.
type Object struct {
	Type *metadata.ResourceType
	ID   any
}

// Engine is the public decision point. It answers "may this principal
// perform this permission", optionally narrowed to a single instance.
type Engine struct {
	db       *store.Store
	reg      *metadata.Registry
	resolver *Resolver
}

func NewEngine(db *store.Store, reg *metadata.Registry, resolver *Resolver) *Engine {
	return &Engine{db: db, reg: reg, resolver: resolver}
}

// Authorize decides whether the principal holds the named permission. With a
// nil obj the check is type-level: does any grant cover the permission at
// all. With an obj, the instance must also satisfy the merged constraints of
// the covering grants, evaluated against its persisted state.
//
// A false return is a denial; a non-nil error is a failure to decide (caller
// bug or store error) and must not be read as "denied".
func (e *Engine) Authorize(ctx context.Context, p *metadata.Principal, perm string, obj *Object) (bool, error) {
	app, _, typeName, err := ResolvePermName(perm)
	if err != nil {
		return false, err
	}

	if !p.Authenticated() {
		return false, nil
	}
	if p.Superuser {
		return true, nil
	}

	perms, err := e.resolver.ResolveAll(ctx, p)
	if err != nil {
		return false, err
	}
	constraints, ok := perms[perm]
	if !ok {
		return false, nil
	}

	if obj == nil {
		return true, nil
	}

	if obj.Type == nil {
		return false, TypeMismatchError(perm, "(nil)")
	}
	if !strings.EqualFold(obj.Type.Label(), app+"."+typeName) {
		return false, TypeMismatchError(perm, obj.Type.Label())
	}

	return e.instanceSatisfies(ctx, e.db.DB, obj, constraints)
}

// AuthorizeID is Authorize for callers that hold only the instance identity;
// the resource type is the one encoded in the permission name.
func (e *Engine) AuthorizeID(ctx context.Context, p *metadata.Principal, perm string, id any) (bool, error) {
	if id == nil || id == "" {
		return e.Authorize(ctx, p, perm, nil)
	}
	rt, _, err := ResourceTypeForPerm(e.reg, perm)
	if err != nil {
		return false, err
	}
	return e.Authorize(ctx, p, perm, &Object{Type: rt, ID: id})
}

// instanceSatisfies asks the store whether a record with the object's
// identity matches the compiled predicate. q may be a transaction, so
// rechecks can observe uncommitted writes.
func (e *Engine) instanceSatisfies(ctx context.Context, q store.Querier, obj *Object, constraints []grant.ConstraintMap) (bool, error) {
	rt := obj.Type
	pb := e.db.Dialect.NewParamBuilder()
	idPh := pb.Add(obj.ID)
	where, err := CompileConstraints(constraints, rt, e.db.Dialect, pb)
	if err != nil {
		return false, err
	}

	sqlStr := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = %s", rt.Table, rt.PrimaryKey, idPh)
	if where != "" {
		sqlStr += " AND " + where
	}
	return store.Exists(ctx, q, sqlStr, pb.Params()...)
}
