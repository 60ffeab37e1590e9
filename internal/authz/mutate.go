package authz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// Mutator performs guarded instance updates: the principal must be able to
// perform the mutating action on the instance both before and after the
// change, the latter checked against the uncommitted write so a principal
// cannot edit itself out of its own access.
type Mutator struct {
	db         *store.Store
	restrictor *Restrictor
}

func NewMutator(db *store.Store, restrictor *Restrictor) *Mutator {
	return &Mutator{db: db, restrictor: restrictor}
}

// ModifySafely applies updates under the "change" action.
func (m *Mutator) ModifySafely(ctx context.Context, p *metadata.Principal, rt *metadata.ResourceType, id any, updates map[string]any) (map[string]any, error) {
	return m.ModifySafelyAction(ctx, p, rt, "change", id, updates)
}

// ModifySafelyAction applies updates under a caller-specified mutating
// action. On any failure nothing is persisted; a post-mutation access loss
// rolls the transaction back and returns PERMISSION_DENIED.
func (m *Mutator) ModifySafelyAction(ctx context.Context, p *metadata.Principal, rt *metadata.ResourceType, action string, id any, updates map[string]any) (map[string]any, error) {
	if len(updates) == 0 {
		return nil, InvalidPayloadError("No fields to update")
	}
	for field := range updates {
		if field == rt.PrimaryKey {
			return nil, InvalidPayloadError(fmt.Sprintf("Field %s is the primary key and cannot be updated", field))
		}
		if !rt.HasField(field) {
			return nil, InvalidPayloadError(fmt.Sprintf("Unknown field: %s", field))
		}
	}

	// Pre-check against committed state.
	ok, err := m.restrictor.Exists(ctx, nil, p, rt, action, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, PermissionDeniedError("You do not have permission to modify this object.")
	}

	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	d := m.db.Dialect
	pb := d.NewParamBuilder()

	// Stable column order for deterministic SQL.
	fields := make([]string, 0, len(updates))
	for field := range updates {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	setClauses := make([]string, 0, len(fields))
	for _, field := range fields {
		setClauses = append(setClauses, fmt.Sprintf("%s = %s", field, pb.Add(updates[field])))
	}
	if rt.HasField("updated_at") {
		if _, explicit := updates["updated_at"]; !explicit {
			setClauses = append(setClauses, "updated_at = "+d.NowExpr())
		}
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		rt.Table, strings.Join(setClauses, ", "), rt.PrimaryKey, pb.Add(id))
	n, err := store.Exec(ctx, tx, sqlStr, pb.Params()...)
	if err != nil {
		return nil, store.MapError(d, err)
	}
	if n == 0 {
		return nil, NotFoundError(rt.Label(), fmt.Sprintf("%v", id))
	}

	// Recheck inside the transaction: the restricted set is re-evaluated
	// against the mutated row before anything becomes visible. The pre-check
	// above warmed the principal's permission cache, so this issues only the
	// probe query on tx; with SQLite's single connection any other store
	// access here would deadlock.
	ok, err = m.restrictor.Exists(ctx, tx, p, rt, action, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, PermissionDeniedError("Your changes would have removed your access to this object. Aborting.")
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return m.fetch(ctx, rt, id)
}

func (m *Mutator) fetch(ctx context.Context, rt *metadata.ResourceType, id any) (map[string]any, error) {
	pb := m.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(rt.FieldNames(), ", "), rt.Table, rt.PrimaryKey, pb.Add(id))
	row, err := store.QueryRow(ctx, m.db.DB, sqlStr, pb.Params()...)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFoundError(rt.Label(), fmt.Sprintf("%v", id))
	}
	if err != nil {
		return nil, err
	}
	if m.db.Dialect.NeedsBoolFix() {
		rows := []map[string]any{row}
		store.NormalizeBooleans(rows, boolFieldNames(rt))
	}
	return row, nil
}
