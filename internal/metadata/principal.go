package metadata

import (
	"sync"

	"objectgate/internal/grant"
)

// Principal is a point-in-time snapshot of an authenticated actor, built by
// the auth middleware (or the anonymous sentinel). The resolved permission
// map is cached on the snapshot for its lifetime: a caller that wants fresh
// permissions obtains a fresh snapshot.
type Principal struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	Active    bool     `json:"active"`
	Superuser bool     `json:"superuser"`
	Anonymous bool     `json:"anonymous"`
	GroupIDs  []string `json:"group_ids"`

	mu          sync.Mutex
	perms       map[string][]grant.ConstraintMap
	permsLoaded bool
}

// AnonymousPrincipal returns the unauthenticated sentinel.
func AnonymousPrincipal() *Principal {
	return &Principal{Anonymous: true}
}

// Authenticated reports whether the principal is a usable actor: known,
// active, and not the anonymous sentinel.
func (p *Principal) Authenticated() bool {
	return p != nil && !p.Anonymous && p.Active
}

// PermCache returns the cached permission map and whether it has been
// computed. The loaded flag distinguishes "not yet computed" from
// "computed, empty", so a principal with zero grants does not re-query the
// store on every check.
func (p *Principal) PermCache() (map[string][]grant.ConstraintMap, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perms, p.permsLoaded
}

// SetPermCache stores the resolved permission map on the snapshot.
func (p *Principal) SetPermCache(perms map[string][]grant.ConstraintMap) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perms = perms
	p.permsLoaded = true
}

// InvalidatePermCache clears the cached map; the next resolution re-queries
// the grant store.
func (p *Principal) InvalidatePermCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perms = nil
	p.permsLoaded = false
}
