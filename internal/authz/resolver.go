package authz

import (
	"context"

	"objectgate/internal/grant"
	"objectgate/internal/metadata"
)

// Resolver computes the full permission map for a principal: permission name
// to the merged constraint lists of every enabled grant covering it. Results
// are cached on the principal snapshot.
type Resolver struct {
	grants *grant.Store
}

func NewResolver(grants *grant.Store) *Resolver {
	return &Resolver{grants: grants}
}

// ResolveAll returns the principal's effective permission map. Inactive and
// anonymous principals resolve to an empty map without touching the store.
// The first call for a snapshot queries the grant store; later calls return
// the cached map, including when it is empty.
func (r *Resolver) ResolveAll(ctx context.Context, p *metadata.Principal) (map[string][]grant.ConstraintMap, error) {
	if !p.Authenticated() {
		return map[string][]grant.ConstraintMap{}, nil
	}
	if perms, loaded := p.PermCache(); loaded {
		return perms, nil
	}

	grants, err := r.grants.FindEnabledForPrincipal(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	perms := make(map[string][]grant.ConstraintMap)
	for _, g := range grants {
		for _, label := range g.ObjectTypes {
			for _, action := range g.Actions {
				name, err := PermNameForLabel(label, action)
				if err != nil {
					// A malformed label on a stored grant is admin data, not
					// a caller bug; it cannot grant anything, skip it.
					continue
				}
				perms[name] = append(perms[name], g.ConstraintList()...)
			}
		}
	}

	p.SetPermCache(perms)
	return perms, nil
}
