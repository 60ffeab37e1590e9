package authz

import (
	"context"
	"testing"

	"objectgate/internal/grant"
	"objectgate/internal/metadata"
)

func TestAuthorizeTypeLevel(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	env.createGrant(t, &grant.Grant{
		Name:        "viewers",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})

	if !env.authorize(t, user, "installs.view_location", nil) {
		t.Error("expected type-level view to be allowed")
	}
	if env.authorize(t, user, "installs.change_location", nil) {
		t.Error("change was never granted")
	}
	if env.authorize(t, user, "installs.view_install", nil) {
		t.Error("install type was never granted")
	}
}

func TestAuthorizeUnconstrainedGrantCoversEveryInstance(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	env.createGrant(t, &grant.Grant{
		Name:        "viewers",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})
	locA := env.createLocation(t, "A")
	locB := env.createLocation(t, "B")

	for _, id := range []string{locA, locB} {
		if !env.authorize(t, user, "installs.view_location", id) {
			t.Errorf("location %s should be visible under an unconstrained grant", id)
		}
	}
	if env.authorize(t, user, "installs.view_location", "no-such-id") {
		t.Error("a row that does not exist cannot satisfy an instance check")
	}
}

func TestAuthorizeConstrainedGrant(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	test := env.createLocation(t, "Test Location")
	other := env.createLocation(t, "Main Office")
	env.createGrant(t, &grant.Grant{
		Name:        "test-only",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
		Constraints: []grant.ConstraintMap{{"name__icontains": "test"}},
	})

	if !env.authorize(t, user, "installs.view_location", test) {
		t.Error("constrained instance should be visible")
	}
	if env.authorize(t, user, "installs.view_location", other) {
		t.Error("instance outside the constraint should be denied")
	}
	// Type-level access still holds: some instances are reachable.
	if !env.authorize(t, user, "installs.view_location", nil) {
		t.Error("type-level check should pass when any grant covers the permission")
	}
}

func TestAuthorizeAndWithinMap(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	match := env.createLocation(t, "Test Location")
	half := env.createLocation(t, "Test Annex")
	env.createGrant(t, &grant.Grant{
		Name:        "narrow",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
		Constraints: []grant.ConstraintMap{{
			"name__icontains":  "test",
			"name__startswith": "Test L",
		}},
	})

	if !env.authorize(t, user, "installs.view_location", match) {
		t.Error("instance satisfying both conditions should be visible")
	}
	if env.authorize(t, user, "installs.view_location", half) {
		t.Error("conditions within one map are conjunctive")
	}
}

func TestAuthorizeOrAcrossMapsAndGrants(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	a := env.createLocation(t, "Alpha")
	b := env.createLocation(t, "Beta")
	c := env.createLocation(t, "Gamma")

	// Two maps in one grant.
	env.createGrant(t, &grant.Grant{
		Name:        "two-maps",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
		Constraints: []grant.ConstraintMap{{"name": "Alpha"}, {"name": "Beta"}},
	})
	// A second grant adds a third branch.
	env.createGrant(t, &grant.Grant{
		Name:        "extra",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
		Constraints: []grant.ConstraintMap{{"name": "Gamma"}},
	})

	for _, id := range []string{a, b, c} {
		if !env.authorize(t, user, "installs.view_location", id) {
			t.Errorf("location %s should be visible through one of the branches", id)
		}
	}
	d := env.createLocation(t, "Delta")
	if env.authorize(t, user, "installs.view_location", d) {
		t.Error("no branch matches Delta")
	}
}

func TestAuthorizeMultipleActionsAndTypes(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	env.createGrant(t, &grant.Grant{
		Name:        "wide",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location", "installs.install"},
		Actions:     []string{"view", "change"},
	})

	for _, perm := range []string{
		"installs.view_location",
		"installs.change_location",
		"installs.view_install",
		"installs.change_install",
	} {
		if !env.authorize(t, user, perm, nil) {
			t.Errorf("%s should be held", perm)
		}
	}
	if env.authorize(t, user, "installs.delete_location", nil) {
		t.Error("delete was never granted")
	}
}

func TestAuthorizeViaGroupMembership(t *testing.T) {
	env := newTestEnv(t)
	member := env.createUser(t, "member@example.com")
	outsider := env.createUser(t, "outsider@example.com")
	groupID := env.createGroup(t, "ops", member.ID)
	member.GroupIDs = []string{groupID}

	env.createGrant(t, &grant.Grant{
		Name:        "group-grant",
		Enabled:     true,
		GroupIDs:    []string{groupID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})

	if !env.authorize(t, member, "installs.view_location", nil) {
		t.Error("group member should hold the permission")
	}
	if env.authorize(t, outsider, "installs.view_location", nil) {
		t.Error("non-member should not hold the permission")
	}
}

func TestAuthorizeDisabledGrantIgnored(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	env.createGrant(t, &grant.Grant{
		Name:        "disabled",
		Enabled:     false,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})

	if env.authorize(t, user, "installs.view_location", nil) {
		t.Error("a disabled grant must not confer anything")
	}
}

func TestAuthorizePrincipalStates(t *testing.T) {
	env := newTestEnv(t)

	anon := metadata.AnonymousPrincipal()
	if env.authorize(t, anon, "installs.view_location", nil) {
		t.Error("anonymous principal must be denied")
	}

	inactive := env.createUser(t, "gone@example.com")
	inactive.Active = false
	env.createGrant(t, &grant.Grant{
		Name:        "stale",
		Enabled:     true,
		UserIDs:     []string{inactive.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})
	if env.authorize(t, inactive, "installs.view_location", nil) {
		t.Error("inactive principal must be denied despite grants")
	}

	super := env.createUser(t, "root@example.com")
	super.Superuser = true
	loc := env.createLocation(t, "Anywhere")
	if !env.authorize(t, super, "installs.view_location", nil) {
		t.Error("superuser holds every permission")
	}
	if !env.authorize(t, super, "installs.delete_location", loc) {
		t.Error("superuser holds every permission on every instance")
	}
}

func TestAuthorizeInvalidPermissionName(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	user.Superuser = true // even a superuser check validates the name first

	_, err := env.engine.Authorize(context.Background(), user, "not-a-permission", nil)
	if err == nil {
		t.Fatal("expected error for malformed permission name")
	}
	if code := appErrCode(t, err); code != "INVALID_PERMISSION_NAME" {
		t.Errorf("code = %s, want INVALID_PERMISSION_NAME", code)
	}
}

func TestAuthorizeTypeMismatch(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")
	env.createGrant(t, &grant.Grant{
		Name:        "viewers",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})
	installType := env.reg.Get("installs", "install")

	_, err := env.engine.Authorize(context.Background(), user, "installs.view_location",
		&Object{Type: installType, ID: "x"})
	if err == nil {
		t.Fatal("expected error for mismatched instance type")
	}
	if code := appErrCode(t, err); code != "TYPE_MISMATCH" {
		t.Errorf("code = %s, want TYPE_MISMATCH", code)
	}
}

func TestAuthorizeIDUnknownResourceType(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "alice@example.com")

	_, err := env.engine.AuthorizeID(context.Background(), user, "installs.view_widget", "some-id")
	if err == nil {
		t.Fatal("expected error for unregistered type")
	}
	if code := appErrCode(t, err); code != "UNKNOWN_RESOURCE_TYPE" {
		t.Errorf("code = %s, want UNKNOWN_RESOURCE_TYPE", code)
	}
}

func TestResolveAllCaching(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com")
	env.createGrant(t, &grant.Grant{
		Name:        "viewers",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})

	first, err := env.resolver.ResolveAll(ctx, user)
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if _, ok := first["installs.view_location"]; !ok {
		t.Fatal("expected installs.view_location in permission map")
	}

	// A grant added after the snapshot was computed is not observed until the
	// cache is invalidated.
	env.createGrant(t, &grant.Grant{
		Name:        "later",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.install"},
		Actions:     []string{"view"},
	})
	cached, err := env.resolver.ResolveAll(ctx, user)
	if err != nil {
		t.Fatalf("ResolveAll (cached): %v", err)
	}
	if _, ok := cached["installs.view_install"]; ok {
		t.Error("cached snapshot should not see the new grant")
	}

	user.InvalidatePermCache()
	fresh, err := env.resolver.ResolveAll(ctx, user)
	if err != nil {
		t.Fatalf("ResolveAll (fresh): %v", err)
	}
	if _, ok := fresh["installs.view_install"]; !ok {
		t.Error("invalidated cache should recompute and see the new grant")
	}
}

func TestResolveAllCachesEmptyResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com")

	perms, err := env.resolver.ResolveAll(ctx, user)
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected empty permission map, got %v", perms)
	}
	// The empty result is a computed answer, not a miss.
	if _, loaded := user.PermCache(); !loaded {
		t.Error("empty permission map should still mark the cache loaded")
	}
}

func TestResolveAllUnconstrainedGrantRegistersPermission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "alice@example.com")
	env.createGrant(t, &grant.Grant{
		Name:        "open",
		Enabled:     true,
		UserIDs:     []string{user.ID},
		ObjectTypes: []string{"installs.location"},
		Actions:     []string{"view"},
	})

	perms, err := env.resolver.ResolveAll(ctx, user)
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	constraints, ok := perms["installs.view_location"]
	if !ok {
		t.Fatal("unconstrained grant must still register its permission key")
	}
	if len(constraints) != 1 || constraints[0] != nil {
		t.Errorf("expected a single nil constraint entry, got %v", constraints)
	}
}
