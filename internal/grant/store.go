package grant

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"objectgate/internal/store"
)

// Store persists grants and answers the engine's read contract: all enabled
// grants covering a principal, directly or through group membership.
type Store struct {
	db *store.Store
}

func NewStore(db *store.Store) *Store {
	return &Store{db: db}
}

// FindEnabledForPrincipal returns every enabled grant whose subjects include
// the user directly or via a group. Both membership sources are tested in a
// single query.
func (s *Store) FindEnabledForPrincipal(ctx context.Context, userID string) ([]*Grant, error) {
	d := s.db.Dialect
	pb := d.NewParamBuilder()
	uph := pb.Add(userID)

	sqlStr := fmt.Sprintf(`
		SELECT g.id, g.name, g.actions, g.constraints, t.object_type
		FROM object_grants g
		JOIN grant_object_types t ON t.grant_id = g.id
		WHERE g.enabled = %s
		  AND (EXISTS (SELECT 1 FROM grant_users gu
		               WHERE gu.grant_id = g.id AND gu.user_id = %s)
		       OR EXISTS (SELECT 1 FROM grant_groups gg
		                  JOIN group_members gm ON gm.group_id = gg.group_id
		                  WHERE gg.grant_id = g.id AND gm.user_id = %s))
		ORDER BY g.id`,
		d.TrueLiteral(), uph, uph)

	rows, err := store.QueryRows(ctx, s.db.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}

	var grants []*Grant
	byID := make(map[string]*Grant)
	for _, row := range rows {
		id, _ := row["id"].(string)
		g, ok := byID[id]
		if !ok {
			g = &Grant{ID: id, Enabled: true}
			g.Name, _ = row["name"].(string)
			if g.Actions, err = DecodeActions(row["actions"]); err != nil {
				return nil, err
			}
			if g.Constraints, err = DecodeConstraints(row["constraints"]); err != nil {
				return nil, err
			}
			byID[id] = g
			grants = append(grants, g)
		}
		if ot, ok := row["object_type"].(string); ok {
			g.ObjectTypes = append(g.ObjectTypes, ot)
		}
	}
	return grants, nil
}

// Get returns a single grant with its subjects and object types loaded.
func (s *Store) Get(ctx context.Context, id string) (*Grant, error) {
	pb := s.db.Dialect.NewParamBuilder()
	row, err := store.QueryRow(ctx, s.db.DB,
		fmt.Sprintf("SELECT id, name, enabled, actions, constraints, created_at, updated_at FROM object_grants WHERE id = %s", pb.Add(id)),
		pb.Params()...)
	if err != nil {
		return nil, err
	}
	g, err := s.scanGrant(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadAssociations(ctx, []*Grant{g}); err != nil {
		return nil, err
	}
	return g, nil
}

// List returns all grants ordered by name, with subjects and object types loaded.
func (s *Store) List(ctx context.Context) ([]*Grant, error) {
	rows, err := store.QueryRows(ctx, s.db.DB,
		"SELECT id, name, enabled, actions, constraints, created_at, updated_at FROM object_grants ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	grants := make([]*Grant, 0, len(rows))
	for _, row := range rows {
		g, err := s.scanGrant(row)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	if err := s.loadAssociations(ctx, grants); err != nil {
		return nil, err
	}
	return grants, nil
}

// Create inserts a grant and its subject/object-type rows in one transaction.
// A missing ID is generated.
func (s *Store) Create(ctx context.Context, g *Grant) error {
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	actions, constraints, err := encodeColumns(g)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	pb := s.db.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO object_grants (id, name, enabled, actions, constraints) VALUES (%s, %s, %s, %s, %s)",
		pb.Add(g.ID), pb.Add(g.Name), pb.Add(g.Enabled), pb.Add(actions), pb.Add(constraints))
	if _, err := store.Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
		return store.MapError(s.db.Dialect, err)
	}
	if err := s.insertAssociations(ctx, tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

// Update rewrites a grant and replaces its subject/object-type rows.
func (s *Store) Update(ctx context.Context, g *Grant) error {
	actions, constraints, err := encodeColumns(g)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	d := s.db.Dialect
	pb := d.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"UPDATE object_grants SET name = %s, enabled = %s, actions = %s, constraints = %s, updated_at = %s WHERE id = %s",
		pb.Add(g.Name), pb.Add(g.Enabled), pb.Add(actions), pb.Add(constraints), d.NowExpr(), pb.Add(g.ID))
	n, err := store.Exec(ctx, tx, sqlStr, pb.Params()...)
	if err != nil {
		return store.MapError(d, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	for _, table := range []string{"grant_users", "grant_groups", "grant_object_types"} {
		pb := d.NewParamBuilder()
		if _, err := store.Exec(ctx, tx,
			fmt.Sprintf("DELETE FROM %s WHERE grant_id = %s", table, pb.Add(g.ID)), pb.Params()...); err != nil {
			return err
		}
	}
	if err := s.insertAssociations(ctx, tx, g); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a grant; join rows cascade.
func (s *Store) Delete(ctx context.Context, id string) error {
	pb := s.db.Dialect.NewParamBuilder()
	n, err := store.Exec(ctx, s.db.DB,
		fmt.Sprintf("DELETE FROM object_grants WHERE id = %s", pb.Add(id)), pb.Params()...)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) insertAssociations(ctx context.Context, tx store.Querier, g *Grant) error {
	d := s.db.Dialect
	insert := func(table, column string, values []string) error {
		for _, v := range values {
			pb := d.NewParamBuilder()
			sqlStr := fmt.Sprintf("INSERT INTO %s (grant_id, %s) VALUES (%s, %s)",
				table, column, pb.Add(g.ID), pb.Add(v))
			if _, err := store.Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
				return store.MapError(d, err)
			}
		}
		return nil
	}
	if err := insert("grant_users", "user_id", g.UserIDs); err != nil {
		return err
	}
	if err := insert("grant_groups", "group_id", g.GroupIDs); err != nil {
		return err
	}
	return insert("grant_object_types", "object_type", g.ObjectTypes)
}

func (s *Store) loadAssociations(ctx context.Context, grants []*Grant) error {
	if len(grants) == 0 {
		return nil
	}
	byID := make(map[string]*Grant, len(grants))
	ids := make([]any, len(grants))
	for i, g := range grants {
		byID[g.ID] = g
		ids[i] = g.ID
	}

	d := s.db.Dialect
	load := func(table, column string, assign func(g *Grant, v string)) error {
		pb := d.NewParamBuilder()
		sqlStr := fmt.Sprintf("SELECT grant_id, %s FROM %s WHERE %s ORDER BY grant_id, %s",
			column, table, d.InExpr("grant_id", pb, ids), column)
		rows, err := store.QueryRows(ctx, s.db.DB, sqlStr, pb.Params()...)
		if err != nil {
			return err
		}
		for _, row := range rows {
			gid, _ := row["grant_id"].(string)
			v, _ := row[column].(string)
			if g := byID[gid]; g != nil {
				assign(g, v)
			}
		}
		return nil
	}

	if err := load("grant_users", "user_id", func(g *Grant, v string) { g.UserIDs = append(g.UserIDs, v) }); err != nil {
		return err
	}
	if err := load("grant_groups", "group_id", func(g *Grant, v string) { g.GroupIDs = append(g.GroupIDs, v) }); err != nil {
		return err
	}
	return load("grant_object_types", "object_type", func(g *Grant, v string) { g.ObjectTypes = append(g.ObjectTypes, v) })
}

func (s *Store) scanGrant(row map[string]any) (*Grant, error) {
	g := &Grant{}
	g.ID, _ = row["id"].(string)
	g.Name, _ = row["name"].(string)
	g.Enabled = asBool(row["enabled"])
	var err error
	if g.Actions, err = DecodeActions(row["actions"]); err != nil {
		return nil, err
	}
	if g.Constraints, err = DecodeConstraints(row["constraints"]); err != nil {
		return nil, err
	}
	if t, ok := row["created_at"].(time.Time); ok {
		g.CreatedAt = t
	}
	if t, ok := row["updated_at"].(time.Time); ok {
		g.UpdatedAt = t
	}
	return g, nil
}

func encodeColumns(g *Grant) (actions string, constraints any, err error) {
	actionsBytes, err := json.Marshal(g.Actions)
	if err != nil {
		return "", nil, fmt.Errorf("encode actions: %w", err)
	}
	if g.Constraints == nil {
		return string(actionsBytes), nil, nil
	}
	constraintBytes, err := json.Marshal(g.Constraints)
	if err != nil {
		return "", nil, fmt.Errorf("encode constraints: %w", err)
	}
	return string(actionsBytes), string(constraintBytes), nil
}

// asBool coerces a column value to bool; SQLite returns BOOLEAN as int64.
func asBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case int:
		return val != 0
	case float64:
		return val != 0
	default:
		return false
	}
}
