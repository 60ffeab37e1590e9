package authz

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"objectgate/internal/config"
	"objectgate/internal/grant"
	"objectgate/internal/metadata"
	"objectgate/internal/store"
)

// newTestDB opens a throwaway SQLite store with the system tables plus the
// locations and installs tables used across these tests.
func newTestDB(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Name:   "authz_test",
		Path:   t.TempDir(),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(s.Close)

	if err := s.Bootstrap(ctx, zerolog.Nop()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	ddl := []string{
		`CREATE TABLE locations (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE installs (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			location_id TEXT REFERENCES locations(id)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("create resource table: %v", err)
		}
	}
	return s
}

func testRegistry() *metadata.Registry {
	reg := metadata.NewRegistry()
	reg.Register(&metadata.ResourceType{
		App:        "installs",
		Name:       "location",
		Table:      "locations",
		PrimaryKey: "id",
		Fields: []metadata.Field{
			{Name: "name", Type: "string"},
			{Name: "description", Type: "string"},
		},
	})
	reg.Register(&metadata.ResourceType{
		App:        "installs",
		Name:       "install",
		Table:      "installs",
		PrimaryKey: "id",
		Fields: []metadata.Field{
			{Name: "name", Type: "string"},
			{Name: "location_id", Type: "string"},
		},
	})
	return reg
}

// testEnv bundles the wired engine components most tests need.
type testEnv struct {
	db         *store.Store
	reg        *metadata.Registry
	grants     *grant.Store
	resolver   *Resolver
	engine     *Engine
	restrictor *Restrictor
	mutator    *Mutator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	reg := testRegistry()
	grants := grant.NewStore(db)
	resolver := NewResolver(grants)
	restrictor := NewRestrictor(db, resolver)
	return &testEnv{
		db:         db,
		reg:        reg,
		grants:     grants,
		resolver:   resolver,
		engine:     NewEngine(db, reg, resolver),
		restrictor: restrictor,
		mutator:    NewMutator(db, restrictor),
	}
}

func (env *testEnv) locationType(t *testing.T) *metadata.ResourceType {
	t.Helper()
	rt := env.reg.Get("installs", "location")
	if rt == nil {
		t.Fatal("location type not registered")
	}
	return rt
}

// createUser inserts an active, non-superuser user row and returns a fresh
// principal snapshot for it.
func (env *testEnv) createUser(t *testing.T, email string) *metadata.Principal {
	t.Helper()
	id := uuid.New().String()
	env.exec(t, "INSERT INTO users (id, email, password_hash) VALUES (?1, ?2, ?3)", id, email, "x")
	return &metadata.Principal{ID: id, Email: email, Active: true}
}

func (env *testEnv) createGroup(t *testing.T, name string, memberIDs ...string) string {
	t.Helper()
	id := uuid.New().String()
	env.exec(t, "INSERT INTO user_groups (id, name) VALUES (?1, ?2)", id, name)
	for _, uid := range memberIDs {
		env.exec(t, "INSERT INTO group_members (group_id, user_id) VALUES (?1, ?2)", id, uid)
	}
	return id
}

func (env *testEnv) createLocation(t *testing.T, name string) string {
	t.Helper()
	id := uuid.New().String()
	env.exec(t, "INSERT INTO locations (id, name) VALUES (?1, ?2)", id, name)
	return id
}

func (env *testEnv) locationName(t *testing.T, id string) string {
	t.Helper()
	row, err := store.QueryRow(context.Background(), env.db.DB,
		"SELECT name FROM locations WHERE id = ?1", id)
	if err != nil {
		t.Fatalf("fetch location %s: %v", id, err)
	}
	name, _ := row["name"].(string)
	return name
}

func (env *testEnv) createGrant(t *testing.T, g *grant.Grant) *grant.Grant {
	t.Helper()
	if err := env.grants.Create(context.Background(), g); err != nil {
		t.Fatalf("create grant %q: %v", g.Name, err)
	}
	return g
}

func (env *testEnv) exec(t *testing.T, sqlStr string, args ...any) {
	t.Helper()
	if _, err := env.db.DB.ExecContext(context.Background(), sqlStr, args...); err != nil {
		t.Fatalf("exec %q: %v", sqlStr, err)
	}
}

// authorize is a shorthand that fails the test on a decision error.
func (env *testEnv) authorize(t *testing.T, p *metadata.Principal, perm string, id any) bool {
	t.Helper()
	allowed, err := env.engine.AuthorizeID(context.Background(), p, perm, id)
	if err != nil {
		t.Fatalf("Authorize(%s, %v): %v", perm, id, err)
	}
	return allowed
}

func appErrCode(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := err.(*AppError)
	if !ok {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}
	return appErr.Code
}
